//go:build linux

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// epollMultiplexer is a Multiplexer backed by Linux epoll, grounded on the
// FastPoller design: direct registration bookkeeping guarded by a mutex,
// syscalls issued outside the lock, EPOLLONESHOT for one-shot semantics.
type epollMultiplexer struct {
	mu     sync.Mutex
	epfd   int
	closed bool
	events []unix.EpollEvent
}

// newEpoll creates and initializes an epoll instance.
func newEpoll() (Multiplexer, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollMultiplexer{epfd: fd, events: make([]unix.EpollEvent, 256)}, nil
}

func toEpollEvents(ev Events) uint32 {
	var flags uint32
	if ev&EventRead != 0 {
		flags |= unix.EPOLLIN
	}
	if ev&EventWrite != 0 {
		flags |= unix.EPOLLOUT
	}
	flags |= unix.EPOLLONESHOT
	return flags
}

func fromEpollEvents(flags uint32) Events {
	var ev Events
	if flags&unix.EPOLLIN != 0 {
		ev |= EventRead
	}
	if flags&unix.EPOLLOUT != 0 {
		ev |= EventWrite
	}
	if flags&unix.EPOLLERR != 0 {
		ev |= EventError
	}
	if flags&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		ev |= EventHangup
	}
	return ev
}

func (m *epollMultiplexer) Add(fd int, events Events) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	ev := &unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	return unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, fd, ev)
}

func (m *epollMultiplexer) Mod(fd int, events Events) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	ev := &unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		if err == unix.ENOENT {
			// Oneshot fds that already fired are implicitly "unarmed" but
			// still registered; ADD is the correct re-arm in that case on
			// some kernels. Fall back to ADD for robustness.
			return unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, fd, ev)
		}
		return err
	}
	return nil
}

func (m *epollMultiplexer) Del(fd int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (m *epollMultiplexer) Wait(timeoutMs int) ([]Ready, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	buf := m.events
	m.mu.Unlock()

	n, err := unix.EpollWait(m.epfd, buf, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Ready, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Ready{FD: int(buf[i].Fd), Events: fromEpollEvents(buf[i].Events)})
	}
	return out, nil
}

func (m *epollMultiplexer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return unix.Close(m.epfd)
}

// newMultiplexer is the platform entry point used by Reactor and Acceptor.
func newMultiplexer() (Multiplexer, error) { return newEpoll() }
