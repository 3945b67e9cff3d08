package reactor

import (
	"sync/atomic"
	"time"

	"github.com/holystardb/cos-sub003/internal/timewheel"
)

// tickInterval is the wheel's tick granularity, matching the 100ms unit
// used throughout spec.md.
const tickInterval = 100 * time.Millisecond

// waitTimeoutMs is the small bounded wait spec.md §4.3 prescribes for both
// multiplexers so that the reactor loop can also service wheel ticks and
// the is_end flag promptly.
const waitTimeoutMs = 1

// Callback is invoked for every delivery: a real I/O readiness, an error,
// or a synthesized timeout. fd is 0 for plain-multiplexer deliveries (the
// handler is expected to dispatch on the connection's own state, per
// spec.md §4.3 step 4).
type Callback func(fd int, events Events, payload Payload)

// Reactor is one I/O thread owning two multiplexers and an embedded time
// wheel for fd timeouts (spec.md §4.3).
type Reactor struct {
	id int

	timeoutMux Multiplexer
	plainMux   Multiplexer

	timeoutTable *fdTable
	plainTable   *fdTable

	wheel    *timewheel.Wheel
	lastTick time.Time

	callback Callback

	isEnd atomic.Bool
}

// New creates a reactor with both multiplexers initialized and its embedded
// time wheel sized for timerCapacityHint concurrent per-fd timeouts.
func New(id int, timerCapacityHint int, callback Callback) (*Reactor, error) {
	timeoutMux, err := newMultiplexer()
	if err != nil {
		return nil, err
	}
	plainMux, err := newMultiplexer()
	if err != nil {
		_ = timeoutMux.Close()
		return nil, err
	}
	return &Reactor{
		id:           id,
		timeoutMux:   timeoutMux,
		plainMux:     plainMux,
		timeoutTable: newFDTable(),
		plainTable:   newFDTable(),
		wheel:        timewheel.New(timerCapacityHint),
		lastTick:     time.Now(),
		callback:     callback,
	}, nil
}

// ID returns the reactor's index within its owning pool.
func (r *Reactor) ID() int { return r.id }

func (r *Reactor) timerFired(timer *timewheel.Timer, arg any) {
	fd, _ := arg.(int)
	d, ok := r.timeoutTable.get(fd)
	if !ok {
		return
	}
	r.timeoutTable.delete(fd)
	_ = r.timeoutMux.Del(fd)
	if r.callback != nil {
		r.callback(fd, EventTimeout, d.payload)
	}
}

func (r *Reactor) armTimeout(fd int, payload Payload, timeout100ms uint32) *timewheel.Timer {
	if timeout100ms == 0 {
		return nil
	}
	timer, err := r.wheel.SetTimer(timeout100ms, r.timerFired, 0, fd)
	if err != nil {
		// Capacity exhausted: proceed without a timeout rather than fail
		// the registration outright; the caller still gets I/O delivery.
		return nil
	}
	return timer
}

// AddRead registers fd on the timeout multiplexer for read readiness,
// arming a timeout of timeout100ms ticks (0 = no timeout).
func (r *Reactor) AddRead(fd int, payload Payload, timeout100ms uint32) error {
	return r.arm(fd, EventRead, payload, timeout100ms, r.timeoutMux.Add)
}

// AddWrite is AddRead for write readiness.
func (r *Reactor) AddWrite(fd int, payload Payload, timeout100ms uint32) error {
	return r.arm(fd, EventWrite, payload, timeout100ms, r.timeoutMux.Add)
}

// ModReadOneshot re-arms fd for read readiness (one-shot).
func (r *Reactor) ModReadOneshot(fd int, payload Payload, timeout100ms uint32) error {
	return r.arm(fd, EventRead, payload, timeout100ms, r.timeoutMux.Mod)
}

// ModWriteOneshot re-arms fd for write readiness (one-shot).
func (r *Reactor) ModWriteOneshot(fd int, payload Payload, timeout100ms uint32) error {
	return r.arm(fd, EventWrite, payload, timeout100ms, r.timeoutMux.Mod)
}

func (r *Reactor) arm(fd int, events Events, payload Payload, timeout100ms uint32, op func(int, Events) error) error {
	if err := op(fd, events); err != nil {
		return err
	}
	d := &data{fd: fd, payload: payload, timeout: timeout100ms}
	d.timer = r.armTimeout(fd, payload, timeout100ms)
	r.timeoutTable.put(d)
	return nil
}

// Del removes fd from the timeout multiplexer, deleting any armed timeout.
func (r *Reactor) Del(fd int) error {
	if d, ok := r.timeoutTable.get(fd); ok {
		if d.timer != nil {
			r.wheel.DelTimer(d.timer)
		}
		r.timeoutTable.delete(fd)
	}
	return r.timeoutMux.Del(fd)
}

// EpollAddRead registers fd on the plain multiplexer for read readiness,
// untracked by the time wheel.
func (r *Reactor) EpollAddRead(fd int, payload Payload) error {
	if err := r.plainMux.Add(fd, EventRead); err != nil {
		return err
	}
	r.plainTable.put(&data{fd: fd, payload: payload})
	return nil
}

// EpollModOneshot re-arms fd on the plain multiplexer for read readiness.
func (r *Reactor) EpollModOneshot(fd int, payload Payload) error {
	if err := r.plainMux.Mod(fd, EventRead); err != nil {
		return err
	}
	r.plainTable.put(&data{fd: fd, payload: payload})
	return nil
}

// EpollDel removes fd from the plain multiplexer.
func (r *Reactor) EpollDel(fd int) error {
	r.plainTable.delete(fd)
	return r.plainMux.Del(fd)
}

// Stop requests the run loop to exit after its current pass.
func (r *Reactor) Stop() { r.isEnd.Store(true) }

// Close releases both multiplexers and the time wheel. Call only after Run
// has returned.
func (r *Reactor) Close() error {
	err1 := r.timeoutMux.Close()
	err2 := r.plainMux.Close()
	r.wheel.Destroy()
	if err1 != nil {
		return err1
	}
	return err2
}

// Run executes the reactor's pass loop (spec.md §4.3) until Stop is called.
// It is intended to be the sole function running on a dedicated reactor
// goroutine/OS thread (pin with runtime.LockOSThread in the caller if exact
// one-thread-per-reactor semantics matter to the deployment).
func (r *Reactor) Run() {
	for !r.isEnd.Load() {
		r.runPass()
	}
}

func (r *Reactor) runPass() {
	// Step 1+2: catch the wheel up to wall-clock and deliver timeouts.
	now := time.Now()
	elapsed := now.Sub(r.lastTick)
	ticks := int(elapsed / tickInterval)
	if ticks > 0 {
		r.lastTick = r.lastTick.Add(time.Duration(ticks) * tickInterval)
		for i := 0; i < ticks; i++ {
			r.wheel.Tick() // timerFired delivers EventTimeout callbacks inline
		}
	}

	// Step 3: timeout-tracked multiplexer.
	ready, err := r.timeoutMux.Wait(waitTimeoutMs)
	if err == nil {
		for _, rd := range ready {
			d, ok := r.timeoutTable.get(rd.FD)
			if !ok {
				continue
			}
			r.timeoutTable.delete(rd.FD)
			if d.timer != nil {
				r.wheel.DelTimer(d.timer) // delivery consumes the timeout
			}
			if r.callback != nil {
				r.callback(rd.FD, rd.Events, d.payload)
			}
		}
	}

	// Step 4: plain multiplexer, fd reported as 0 per spec.md §4.3 step 4.
	ready, err = r.plainMux.Wait(waitTimeoutMs)
	if err == nil {
		for _, rd := range ready {
			d, ok := r.plainTable.get(rd.FD)
			if !ok {
				continue
			}
			r.plainTable.delete(rd.FD)
			if r.callback != nil {
				r.callback(0, rd.Events, d.payload)
			}
		}
	}
}
