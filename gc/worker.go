package gc

import (
	"sync/atomic"
)

// WorkerState is the lifecycle of one tracing worker within a cycle.
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerRunning
	WorkerStalled
	WorkerDone
)

// WorkerContext is the per-worker state the reachability phase threads
// through a single goroutine's lifetime: its index (used to address the
// worker's ARO queue), its own work queue, and a state word other workers and the coordinator can observe
// without synchronizing on anything but atomics.
//
// Grounded on chazu-maggie/vm/concurrency.go's ProcessObject (id + atomic
// state + done signaling), generalized from one Smalltalk goroutine to one
// collector worker; the result/err/WaitGroup fields are replaced here by
// the coordinator's errgroup, since spec.md §4.6 already specifies
// fork/join at the phase level rather than per worker.
type WorkerContext struct {
	Index int
	Queue *WorkQueue

	state atomic.Int32
}

// NewWorkerContext creates a worker bound to index i.
func NewWorkerContext(i int) *WorkerContext {
	return &WorkerContext{Index: i, Queue: NewWorkQueue()}
}

// State returns the worker's current lifecycle state.
func (w *WorkerContext) State() WorkerState {
	return WorkerState(w.state.Load())
}

// SetState records a new lifecycle state.
func (w *WorkerContext) SetState(s WorkerState) {
	w.state.Store(int32(s))
}

// WorkerPool is the fixed set of workers a cycle runs with, sized once at
// Collector construction time (spec.md §4.6: worker count is fixed for
// the collector's lifetime, not renegotiated per cycle).
type WorkerPool struct {
	workers []*WorkerContext
}

// NewWorkerPool creates n workers.
func NewWorkerPool(n int) *WorkerPool {
	p := &WorkerPool{workers: make([]*WorkerContext, n)}
	for i := range p.workers {
		p.workers[i] = NewWorkerContext(i)
	}
	return p
}

// Len returns the number of workers in the pool.
func (p *WorkerPool) Len() int { return len(p.workers) }

// Worker returns the worker at index i.
func (p *WorkerPool) Worker(i int) *WorkerContext { return p.workers[i] }

// ResetAll returns every worker to WorkerIdle, called once per cycle after
// the mark phase, just before the workers are seeded.
func (p *WorkerPool) ResetAll() {
	for _, w := range p.workers {
		w.SetState(WorkerIdle)
	}
}

// StealFrom scans the pool starting just past fromIndex for a victim with
// stealable work, returning the stolen batch and the victim's index, or
// nil, -1 if every other worker is empty. Used when a worker's own queue
// (ring and overflow) runs dry mid-phase (spec.md §4.2's steal protocol).
func (p *WorkerPool) StealFrom(fromIndex int) ([]ObjectIndex, int) {
	n := len(p.workers)
	for i := 1; i < n; i++ {
		idx := (fromIndex + i) % n
		if idx == fromIndex {
			continue
		}
		if batch := p.workers[idx].Queue.Steal(); len(batch) > 0 {
			return batch, idx
		}
	}
	return nil, -1
}
