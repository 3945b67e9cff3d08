package reactor

import (
	"runtime"
	"sync/atomic"
)

// spinlock is the lightweight user-space lock guarding the short critical
// sections described in spec.md §5 (the fd tables; the embedded time wheel
// has its own mutex). None of these sections block on I/O, so a spin-then-yield loop
// is sufficient; there is no fairness requirement.
type spinlock struct {
	state atomic.Bool
}

func (s *spinlock) Lock() {
	for !s.state.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (s *spinlock) Unlock() {
	s.state.Store(false)
}
