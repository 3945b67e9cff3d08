package reactor

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// AcceptCallback is invoked for every accepted connection, having already
// round-robin-picked a reactor. Returning false tells the acceptor to
// close the fd (the callback refused it, e.g. due to backpressure).
type AcceptCallback func(fd int, remote unix.Sockaddr, chosen *Reactor) bool

// Acceptor owns a dedicated multiplexer registering one or more listening
// sockets, per spec.md §4.4. It runs on its own goroutine, separate from
// every reactor's I/O goroutine.
type Acceptor struct {
	mux      Multiplexer
	listenFD map[int]struct{}
	cfg      SocketConfig
	pool     *Pool
	callback AcceptCallback
	isEnd    atomic.Bool
}

func newAcceptor(pool *Pool, cfg SocketConfig, callback AcceptCallback) (*Acceptor, error) {
	mux, err := newMultiplexer()
	if err != nil {
		return nil, err
	}
	return &Acceptor{
		mux:      mux,
		listenFD: make(map[int]struct{}),
		cfg:      cfg,
		pool:     pool,
		callback: callback,
	}, nil
}

// RegisterListen registers a listening socket fd with the acceptor's
// multiplexer. fd must already be in listen(2) state and non-blocking.
func (a *Acceptor) RegisterListen(fd int) error {
	a.listenFD[fd] = struct{}{}
	return a.mux.Add(fd, EventRead)
}

// Stop requests the acceptor loop to exit.
func (a *Acceptor) Stop() { a.isEnd.Store(true) }

// Close releases the acceptor's multiplexer.
func (a *Acceptor) Close() error { return a.mux.Close() }

// Run executes the accept loop (spec.md §4.4) until Stop is called.
func (a *Acceptor) Run() {
	for !a.isEnd.Load() {
		ready, err := a.mux.Wait(waitTimeoutMs)
		if err != nil {
			continue
		}
		for _, rd := range ready {
			if _, isListener := a.listenFD[rd.FD]; !isListener {
				continue
			}
			a.drainAccepts(rd.FD)
			// re-arm: listening sockets are registered level-style by
			// re-adding after each drain, since they are never one-shot
			// in the original design (a new connection can arrive at any
			// time, not just after a re-arm).
			_ = a.mux.Mod(rd.FD, EventRead)
		}
	}
}

func (a *Acceptor) drainAccepts(listenFD int) {
	for {
		connFD, sa, err := unix.Accept(listenFD)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			// Real accept failure: stop draining and go back to polling.
			// The error is not logged; the acceptor has no logger.
			return
		}
		if err := ConfigureAccepted(connFD, a.cfg); err != nil {
			_ = unix.Close(connFD)
			continue
		}
		chosen := a.pool.nextReactor()
		if a.callback == nil || !a.callback(connFD, sa, chosen) {
			_ = unix.Close(connFD)
		}
	}
}
