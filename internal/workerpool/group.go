package workerpool

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrNoSuchGroup is returned when a group index is out of range.
var ErrNoSuchGroup = errors.New("workerpool: no such group")

// groupTask is the free-task-bank unit (spec.md §4.7 thread-group variant,
// grounded on the original's `cm_thread_group.c`): reused across groups
// instead of allocated per submission.
type groupTask struct {
	fn   Task
	data any
	high bool
}

// Group is one of a GroupPool's fixed G groups: T pre-started workers
// draining two channels, high-priority before normal.
type Group struct {
	id      int
	highCh  chan *groupTask
	normCh  chan *groupTask
	pool    *GroupPool
	wg      sync.WaitGroup
}

func newGroup(id, t int, pool *GroupPool, queueDepth int) *Group {
	g := &Group{
		id:     id,
		highCh: make(chan *groupTask, queueDepth),
		normCh: make(chan *groupTask, queueDepth),
		pool:   pool,
	}
	for i := 0; i < t; i++ {
		g.wg.Add(1)
		go g.runWorker()
	}
	return g
}

func (g *Group) runWorker() {
	defer g.wg.Done()
	highCh, normCh := g.highCh, g.normCh
	for highCh != nil || normCh != nil {
		// Drain anything already waiting in the high lane first.
		select {
		case t, ok := <-highCh:
			if !ok {
				highCh = nil
				continue
			}
			g.execute(t)
			continue
		default:
		}

		select {
		case t, ok := <-highCh:
			if !ok {
				highCh = nil
				continue
			}
			g.execute(t)
		case t, ok := <-normCh:
			if !ok {
				normCh = nil
				continue
			}
			g.execute(t)
		}
	}
}

func (g *Group) execute(t *groupTask) {
	t.fn(t.data)
	g.pool.release(t)
}

func (g *Group) close() {
	close(g.highCh)
	close(g.normCh)
	g.wg.Wait()
}

// GroupPool holds a fixed set of G groups, each with T pre-started
// workers, sharing one free-task bank under a single lock (spec.md §4.7:
// "a shared free-task bank (refilled from a common pool under a
// group-pool lock)").
type GroupPool struct {
	groups []*Group

	mu   sync.Mutex
	free []*groupTask
}

// NewGroupPool starts g groups of t workers each. queueDepth bounds each
// group's high/normal channel capacity.
func NewGroupPool(g, t, queueDepth int) *GroupPool {
	gp := &GroupPool{groups: make([]*Group, g)}
	for i := 0; i < g; i++ {
		gp.groups[i] = newGroup(i, t, gp, queueDepth)
	}
	return gp
}

// acquire draws a groupTask from the shared free bank, allocating one if
// the bank is empty.
func (gp *GroupPool) acquire() *groupTask {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	if n := len(gp.free); n > 0 {
		t := gp.free[n-1]
		gp.free = gp.free[:n-1]
		return t
	}
	return &groupTask{}
}

func (gp *GroupPool) release(t *groupTask) {
	t.fn, t.data, t.high = nil, nil, false
	gp.mu.Lock()
	gp.free = append(gp.free, t)
	gp.mu.Unlock()
}

// Submit enqueues fn onto group groupIdx's high or normal lane.
func (gp *GroupPool) Submit(groupIdx int, data any, fn Task, high bool) error {
	if groupIdx < 0 || groupIdx >= len(gp.groups) {
		return ErrNoSuchGroup
	}
	t := gp.acquire()
	t.fn, t.data, t.high = fn, data, high

	g := gp.groups[groupIdx]
	if high {
		g.highCh <- t
	} else {
		g.normCh <- t
	}
	return nil
}

// Close stops every group's workers, waiting for in-flight tasks to
// finish draining from each group's channels.
func (gp *GroupPool) Close() {
	for _, g := range gp.groups {
		g.close()
	}
}
