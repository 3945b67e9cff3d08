package reactor

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrNoReactors is returned by NewPool when reactorCount is non-positive.
var ErrNoReactors = errors.New("reactor: pool requires at least one reactor")

// Pool is N reactors plus one dedicated acceptor thread (spec.md §4.4).
type Pool struct {
	reactors []*Reactor
	acceptor *Acceptor
	rr       atomic.Uint64
}

// NewPool creates reactorCount reactors, each with its own time-wheel timer
// capacity hint, dispatching I/O deliveries to callback.
func NewPool(reactorCount int, timerCapacityHint int, callback Callback) (*Pool, error) {
	if reactorCount <= 0 {
		return nil, ErrNoReactors
	}
	p := &Pool{reactors: make([]*Reactor, reactorCount)}
	for i := 0; i < reactorCount; i++ {
		r, err := New(i, timerCapacityHint, callback)
		if err != nil {
			for j := 0; j < i; j++ {
				_ = p.reactors[j].Close()
			}
			return nil, err
		}
		p.reactors[i] = r
	}
	return p, nil
}

// StartAcceptor creates the pool's acceptor and registers listenFDs with
// it; call ReactorStartPoll and then Acceptor.Run (typically on its own
// goroutine) to begin serving.
func (p *Pool) StartAcceptor(cfg SocketConfig, accept AcceptCallback, listenFDs ...int) (*Acceptor, error) {
	a, err := newAcceptor(p, cfg, accept)
	if err != nil {
		return nil, err
	}
	for _, fd := range listenFDs {
		if err := a.RegisterListen(fd); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	p.acceptor = a
	return a, nil
}

// ReactorStartPoll launches one goroutine per reactor, each running its own
// Reactor.Run pass loop, matching the "N I/O threads" model of spec.md
// §4.4. Returns immediately; reactors run until Stop/Close.
func (p *Pool) ReactorStartPoll() {
	for _, r := range p.reactors {
		go r.Run()
	}
}

// GetRoundRobinReactor returns the next reactor in round-robin order
// (spec.md's get_roubin_reactor).
func (p *Pool) GetRoundRobinReactor() *Reactor {
	return p.nextReactor()
}

func (p *Pool) nextReactor() *Reactor {
	n := p.rr.Add(1) - 1
	return p.reactors[int(n)%len(p.reactors)]
}

// Reactors exposes the underlying reactor slice (e.g. for pinning or
// metrics); callers must not mutate it.
func (p *Pool) Reactors() []*Reactor { return p.reactors }

// Stop signals every reactor and the acceptor (if started) to exit their
// loops.
func (p *Pool) Stop() {
	if p.acceptor != nil {
		p.acceptor.Stop()
	}
	for _, r := range p.reactors {
		r.Stop()
	}
}

// Close releases every reactor's and the acceptor's resources. Call only
// after their Run loops have returned.
func (p *Pool) Close() error {
	var first error
	if p.acceptor != nil {
		if err := p.acceptor.Close(); err != nil && first == nil {
			first = err
		}
	}
	for _, r := range p.reactors {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
