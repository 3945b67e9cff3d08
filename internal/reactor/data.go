package reactor

import "github.com/holystardb/cos-sub003/internal/timewheel"

// Payload is the caller-supplied opaque value associated with a registered
// fd. In the original C design this was a raw void*; here it is just an
// any, since the handler downcasts it itself.
type Payload any

// data is the per-fd bookkeeping record described in spec.md §3 ("Reactor
// data"): the user payload, the current timeout (in 100ms units, 0 = none),
// and the linkage into the reactor's embedded time wheel.
type data struct {
	fd      int
	payload Payload
	timeout uint32 // 100ms units; 0 = no timeout armed
	timer   *timewheel.Timer
}

// fdTable is the (unordered) index from fd to *data, guarded by a
// spinlock per spec.md §4.3 ("red-black tree... protected by a spinlock").
// A plain map plus a spinlock gives the same semantics Go idiomatically;
// iteration order is not relied upon anywhere in this package, so no actual
// balanced-tree container is needed (the original's sortedness existed only
// to support a Windows select()-style fallback this port does not carry).
type fdTable struct {
	lock spinlock
	m    map[int]*data
}

func newFDTable() *fdTable {
	return &fdTable{m: make(map[int]*data)}
}

func (t *fdTable) put(d *data) {
	t.lock.Lock()
	t.m[d.fd] = d
	t.lock.Unlock()
}

func (t *fdTable) get(fd int) (*data, bool) {
	t.lock.Lock()
	d, ok := t.m[fd]
	t.lock.Unlock()
	return d, ok
}

func (t *fdTable) delete(fd int) {
	t.lock.Lock()
	delete(t.m, fd)
	t.lock.Unlock()
}

func (t *fdTable) len() int {
	t.lock.Lock()
	n := len(t.m)
	t.lock.Unlock()
	return n
}
