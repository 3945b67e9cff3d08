// Package workerpool implements the thread pool described in spec.md §4.7:
// a fixed set of workers, `get_worker`/`release_worker` checkout semantics,
// and `worker_task_start`/`worker_task_join` single-task submission. Each
// worker takes one task at a time over an unbuffered channel; there is no
// per-worker free-task ring and no overflow list. Go has no
// analogue to the teacher corpus's goroutine-pool library (none of the
// example repos carry one), so this package is built directly on
// goroutines, channels, and sync primitives, matching how the teacher repo
// itself implements its reactor's thread-per-id model (internal/reactor).
package workerpool

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrTimeout is returned by GetWorker when no worker becomes idle within
// the requested wait.
var ErrTimeout = errors.New("workerpool: timed out waiting for an idle worker")

// ErrBusy is returned by TaskStart when the worker already has a task in
// flight (spec.md §4.7: "enqueues exactly one task").
var ErrBusy = errors.New("workerpool: worker already has a task in flight")

// Task is the unit of work a worker executes.
type Task func(data any)

// Worker is one pool member: a single goroutine that executes at most one
// task at a time, reporting completion via TaskJoin.
type Worker struct {
	id int

	mu   sync.Mutex
	busy bool

	taskCh chan taskItem
	done   chan struct{}

	pool *Pool
}

type taskItem struct {
	fn   Task
	data any
}

// ID returns the worker's index within its pool.
func (w *Worker) ID() int { return w.id }

func (w *Worker) run() {
	for item := range w.taskCh {
		item.fn(item.data)
		close(w.done)
		w.mu.Lock()
		w.busy = false
		w.mu.Unlock()
		w.pool.release(w)
	}
}

// TaskStart enqueues exactly one task onto w (spec.md §4.7). Returns
// ErrBusy if w already has a task in flight.
func (w *Worker) TaskStart(data any, fn Task) error {
	w.mu.Lock()
	if w.busy {
		w.mu.Unlock()
		return ErrBusy
	}
	w.busy = true
	w.done = make(chan struct{})
	w.mu.Unlock()

	w.taskCh <- taskItem{fn: fn, data: data}
	return nil
}

// TaskJoin blocks until w's in-flight task count reaches zero.
func (w *Worker) TaskJoin() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Pool holds N workers with an idle free-list (spec.md §4.7), modeled as a
// buffered channel acting as the checkout semaphore.
type Pool struct {
	workers []*Worker
	idle    chan *Worker
}

// New starts n workers, all initially idle.
func New(n int) *Pool {
	p := &Pool{
		workers: make([]*Worker, n),
		idle:    make(chan *Worker, n),
	}
	for i := 0; i < n; i++ {
		w := &Worker{id: i, taskCh: make(chan taskItem), pool: p}
		p.workers[i] = w
		p.idle <- w
		go w.run()
	}
	return p
}

// GetWorker returns an idle worker, blocking up to wait for one to become
// available (spec.md §4.7 `get_worker(wait_us)`).
func (p *Pool) GetWorker(wait time.Duration) (*Worker, error) {
	select {
	case w := <-p.idle:
		return w, nil
	case <-time.After(wait):
		return nil, ErrTimeout
	}
}

// ReleaseWorker returns w to the idle free-list.
func (p *Pool) ReleaseWorker(w *Worker) { p.release(w) }

func (p *Pool) release(w *Worker) { p.idle <- w }

// Close releases resources held by the pool's workers. Callers must not
// have any task in flight when calling Close.
func (p *Pool) Close() {
	for _, w := range p.workers {
		close(w.taskCh)
	}
}
