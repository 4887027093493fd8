package gc

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// MaxWorkers is the ceiling on reachability-phase parallelism (spec.md
// §4.6).
const MaxWorkers = 16

// idleSpinAttempts bounds how long a workless worker polls for global
// quiescence before giving up and going back to look for work itself.
// Pure backoff, no blocking primitive: the pool is small (≤ MaxWorkers)
// and a missed wakeup only costs one more lap of the outer loop, never
// correctness.
const idleSpinAttempts = 64

// Coordinator drives one reachability phase across a WorkerPool, ending
// it once every worker has simultaneously reported no work left (spec.md
// §4.6).
//
// Grounded on chazu-maggie/vm/registry_gc.go's Start/Stop/ticker
// lifecycle, generalized from a periodic background sweep to a one-shot
// fork/join phase; idle is this spec's direct analog of that file's
// running/stopped bookkeeping.
type Coordinator struct {
	Pool      *WorkerPool
	Processor func(*WorkerContext) *ReachabilityProcessor

	idle atomic.Int32
}

// NewCoordinator creates a coordinator driving pool, whose
// ReachabilityProcessor for worker w is produced by mkProcessor.
func NewCoordinator(pool *WorkerPool, mkProcessor func(*WorkerContext) *ReachabilityProcessor) *Coordinator {
	return &Coordinator{Pool: pool, Processor: mkProcessor}
}

// Run drives the reachability phase to completion: every worker processes
// its local queue, steals when idle, drains its own ARO queue, and
// reports workless; once every worker is simultaneously workless the
// phase ends. The initial reachable set from MarkPhase.Run is distributed
// round-robin across the workers' queues (Collector.seedWorkers) before
// Run is called (spec.md §4.6).
func (c *Coordinator) Run(ctx context.Context) error {
	n := c.Pool.Len()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return c.runWorker(gctx, i)
		})
	}
	return g.Wait()
}

func (c *Coordinator) runWorker(ctx context.Context, i int) error {
	w := c.Pool.Worker(i)
	w.SetState(WorkerRunning)
	proc := c.Processor(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if idx, ok := w.Queue.PopLocal(); ok {
			c.visit(proc, idx)
			continue
		}

		if batch, _ := c.Pool.StealFrom(i); len(batch) > 0 {
			for _, idx := range batch {
				c.visit(proc, idx)
			}
			continue
		}

		// Drain this worker's own Unbalanced/ExtraSlow callbacks before
		// considering it workless: EnqueueARO only ever pushes from the
		// owning worker, so nobody else will ever drain these, and a
		// callback may report fresh references that reopen the queue.
		if drainOwnARO(proc) {
			continue
		}

		if c.reportWorkless(i) {
			w.SetState(WorkerDone)
			return nil
		}
	}
}

func drainOwnARO(proc *ReachabilityProcessor) bool {
	drained := false
	proc.AROQueue.DrainAll(func(obj ManagedObject, cb *AROCallback) {
		drained = true
		proc.ProcessARO(obj, cb)
	})
	return drained
}

// visit traces one already-reachable object's own references, discovered
// through its class's schema and ARO callbacks, feeding each one through
// Process. The object itself was already decided reachable by whichever
// call pushed idx onto the queue (MarkPhase's root sweep or a prior
// Process call) — visit's job is purely to find what it, in turn, points
// at.
func (c *Coordinator) visit(proc *ReachabilityProcessor, idx ObjectIndex) {
	entry := proc.Table.IndexToItem(idx)
	if entry == nil {
		return
	}
	proc.Trace(entry.Object)
}

// reportWorkless implements spec.md §4.6's termination barrier: a worker
// with nothing left to pop, steal, or drain announces itself idle, and
// the phase ends only once every worker in the pool has made that
// announcement without having since found more work. A worker only ever
// pushes to its own queue (PushLocal) while it is itself still active, so
// idle reaching Pool.Len() proves no producer remains anywhere.
//
// There is no early-exit allowance for a handful of workers: a fixed
// budget of workers permitted to leave before the rest reach quiescence
// shrinks the effective pool those survivors are compared against
// without shrinking the divisor they're compared with, so for any pool
// larger than the budget the survivors can never again reach "everyone
// idle" — the workers that already left can never re-report. Every
// worker here stays in the spin/recheck loop until it personally
// observes the whole pool idle.
func (c *Coordinator) reportWorkless(i int) bool {
	w := c.Pool.Worker(i)
	w.SetState(WorkerStalled)
	n := int32(c.Pool.Len())

	if c.idle.Add(1) == n {
		return true
	}

	for attempt := 0; attempt < idleSpinAttempts; attempt++ {
		if c.idle.Load() == n {
			return true
		}
		runtime.Gosched()
	}

	c.idle.Add(-1)
	w.SetState(WorkerRunning)
	return false
}
