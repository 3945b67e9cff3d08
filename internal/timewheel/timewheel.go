// Package timewheel implements a single-level, 600-slot timer wheel with a
// 100ms tick granularity. It backs both the per-fd timeout tracking inside
// every reactor (internal/reactor) and the user timers exposed by the PAT
// messaging layer (internal/pat).
package timewheel

import (
	"sync"

	"github.com/holystardb/cos-sub003/internal/slotpool"
	"github.com/pkg/errors"
)

// Slots is the fixed wheel size from spec §3 (W=600).
const Slots = 600

// ErrOutOfTimers is returned by SetTimer when the backing slot pool is
// exhausted.
var ErrOutOfTimers = errors.New("timewheel: out of timers")

// Callback is invoked when a timer fires. It receives the timer and the
// user argument supplied at SetTimer time.
type Callback func(t *Timer, arg any)

// Timer is a single scheduled entry. Event is an opaque tag the caller uses
// to distinguish timer kinds (e.g. PAT user timer vs reactor fd timeout).
type Timer struct {
	node     *slotpool.Node
	rotation uint32
	slot     uint32
	callback Callback
	Event    uint16
	Arg      any

	prev, next *Timer // intrusive list within a wheel slot
}

// ID returns the timer's stable id, valid until it fires or is deleted.
func (t *Timer) ID() uint32 { return t.node.ID() }

// Wheel is a 600-slot timer wheel. All mutation happens under an internal
// mutex taken by every exported method; the *Locked helpers are unexported
// and used only inside this package.
type Wheel struct {
	mu      sync.Mutex
	slots   [Slots]*Timer // head of each slot's doubly-linked list
	current uint32
	pool    *slotpool.Pool
}

// New creates a wheel with a timer pool sized for capacityHint concurrent
// timers.
func New(capacityHint int) *Wheel {
	return &Wheel{pool: slotpool.New(capacityHint)}
}

// scheduleLocation implements the scheduling formula from spec §3:
// t = max(d, 1); rotation = t / W; slot = (current + t % W) % W.
func scheduleLocation(current uint32, delay100ms uint32) (rotation, slot uint32) {
	t := delay100ms
	if t < 1 {
		t = 1
	}
	rotation = t / Slots
	slot = (current + t%Slots) % Slots
	return
}

func (w *Wheel) linkLocked(timer *Timer) {
	head := w.slots[timer.slot]
	timer.next = head
	timer.prev = nil
	if head != nil {
		head.prev = timer
	}
	w.slots[timer.slot] = timer
}

func (w *Wheel) unlinkLocked(timer *Timer) {
	if timer.prev != nil {
		timer.prev.next = timer.next
	} else {
		w.slots[timer.slot] = timer.next
	}
	if timer.next != nil {
		timer.next.prev = timer.prev
	}
	timer.prev, timer.next = nil, nil
}

// SetTimer schedules callback to fire after delay100ms ticks (100ms units),
// per the formula in spec §3.
func (w *Wheel) SetTimer(delay100ms uint32, callback Callback, event uint16, arg any) (*Timer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.setTimerLocked(delay100ms, callback, event, arg)
}

func (w *Wheel) setTimerLocked(delay100ms uint32, callback Callback, event uint16, arg any) (*Timer, error) {
	node, err := w.pool.Alloc()
	if err != nil {
		return nil, ErrOutOfTimers
	}
	rotation, slot := scheduleLocation(w.current, delay100ms)
	timer := &Timer{
		node:     node,
		rotation: rotation,
		slot:     slot,
		callback: callback,
		Event:    event,
		Arg:      arg,
	}
	node.Value = timer
	w.linkLocked(timer)
	return timer, nil
}

// ResetTimer re-schedules an existing timer relative to the wheel's current
// slot, without reallocating its node.
func (w *Wheel) ResetTimer(timer *Timer, delay100ms uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetTimerLocked(timer, delay100ms)
}

func (w *Wheel) resetTimerLocked(timer *Timer, delay100ms uint32) {
	w.unlinkLocked(timer)
	rotation, slot := scheduleLocation(w.current, delay100ms)
	timer.rotation = rotation
	timer.slot = slot
	w.linkLocked(timer)
}

// DelTimer removes a timer before it fires. Safe to call at most once per
// timer; calling it on an already-fired timer is a no-op.
func (w *Wheel) DelTimer(timer *Timer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.delTimerLocked(timer)
}

func (w *Wheel) delTimerLocked(timer *Timer) {
	if n, alloc, err := w.pool.GetByID(timer.ID()); err != nil || !alloc || n.Value != timer {
		return // already fired or deleted
	}
	w.unlinkLocked(timer)
	w.pool.FreeToTail(timer.node)
}

// GetTimer looks up a live timer by id. ok is false if the id is stale
// (already fired or deleted).
func (w *Wheel) GetTimer(id uint32) (timer *Timer, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	node, alloc, err := w.pool.GetByID(id)
	if err != nil || !alloc {
		return nil, false
	}
	t, _ := node.Value.(*Timer)
	return t, t != nil
}

// Tick advances the wheel by one slot, firing and removing any timer in the
// current slot whose rotation has reached zero, and decrementing the
// rotation of the rest. Returns the timers that fired, after their
// callbacks have already been invoked.
func (w *Wheel) Tick() []*Timer {
	w.mu.Lock()
	var fired []*Timer
	w.current = (w.current + 1) % Slots
	cur := w.current
	node := w.slots[cur]
	for node != nil {
		next := node.next
		if node.rotation == 0 {
			w.unlinkLocked(node)
			w.pool.FreeToTail(node.node)
			fired = append(fired, node)
		} else {
			node.rotation--
		}
		node = next
	}
	w.mu.Unlock()

	for _, t := range fired {
		if t.callback != nil {
			t.callback(t, t.Arg)
		}
	}
	return fired
}

// Destroy releases the wheel's backing slot pool.
func (w *Wheel) Destroy() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pool.Destroy()
	for i := range w.slots {
		w.slots[i] = nil
	}
}
