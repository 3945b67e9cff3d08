//go:build !linux

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// pollMultiplexer is the non-Linux fallback Multiplexer, backed by the
// portable unix.Poll syscall. One-shot semantics are emulated: a registered
// fd is removed from the watch set as soon as it is reported ready, and
// must be re-added via Mod to be reported again (mirroring what epoll's
// EPOLLONESHOT gives for free on Linux).
type pollMultiplexer struct {
	mu     sync.Mutex
	closed bool
	fds    map[int]Events
}

func newMultiplexer() (Multiplexer, error) {
	return &pollMultiplexer{fds: make(map[int]Events)}, nil
}

func toPollEvents(ev Events) int16 {
	var flags int16
	if ev&EventRead != 0 {
		flags |= unix.POLLIN
	}
	if ev&EventWrite != 0 {
		flags |= unix.POLLOUT
	}
	return flags
}

func fromPollEvents(revents int16) Events {
	var ev Events
	if revents&unix.POLLIN != 0 {
		ev |= EventRead
	}
	if revents&unix.POLLOUT != 0 {
		ev |= EventWrite
	}
	if revents&unix.POLLERR != 0 {
		ev |= EventError
	}
	if revents&(unix.POLLHUP|unix.POLLNVAL) != 0 {
		ev |= EventHangup
	}
	return ev
}

func (m *pollMultiplexer) Add(fd int, events Events) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.fds[fd] = events
	return nil
}

func (m *pollMultiplexer) Mod(fd int, events Events) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.fds[fd]; !ok {
		return ErrNotRegistered
	}
	m.fds[fd] = events
	return nil
}

func (m *pollMultiplexer) Del(fd int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.fds, fd)
	return nil
}

func (m *pollMultiplexer) Wait(timeoutMs int) ([]Ready, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	fds := make([]unix.PollFd, 0, len(m.fds))
	order := make([]int, 0, len(m.fds))
	for fd, ev := range m.fds {
		if ev == 0 {
			continue // disarmed until Mod re-arms it
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: toPollEvents(ev)})
		order = append(order, fd)
	}
	m.mu.Unlock()

	if len(fds) == 0 {
		return nil, nil
	}
	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	m.mu.Lock()
	out := make([]Ready, 0, n)
	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		out = append(out, Ready{FD: order[i], Events: fromPollEvents(pfd.Revents)})
		if _, ok := m.fds[order[i]]; ok {
			m.fds[order[i]] = 0 // emulate one-shot: stays registered, disarmed
		}
	}
	m.mu.Unlock()
	return out, nil
}

func (m *pollMultiplexer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.fds = nil
	return nil
}
