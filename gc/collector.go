package gc

import (
	"context"
	"time"

	_ "go.uber.org/automaxprocs" // sizes GOMAXPROCS to the container's real CPU quota before NewCollector picks a worker count

	"github.com/sasha-s/go-deadlock"
)

// PurgeState is the resumable state machine spec.md §4.10 names.
type PurgeState int

const (
	PurgeIdle PurgeState = iota
	PurgeMarkDone
	PurgeUnhashInProgress
	PurgeUnhashDone
	PurgeBeginDestroyDone
	PurgeFinishDestroyInProgress
	PurgeFinishDestroyDone
	PurgeInProgress
)

// CollectStats is recorded at the end of every cycle for logging and for
// tests that assert on timing/counts.
type CollectStats struct {
	Cycle           CycleID
	NumObjects      int
	NumUnreachable  int
	Duration        time.Duration
	GarbageRefs     []GarbageReference
}

// Collector is the top-level, process-wide entry point spec.md §4.10
// describes: it owns the GC lock, the "is collecting" flag, the last
// cycle's timing, and the incremental purge state machine. Spec.md §9
// explicitly asks implementations to centralize global state here rather
// than scatter ad-hoc package-level globals.
//
// Grounded on chazu-maggie/vm/registry_gc.go's RegistryGC
// (Start/Stop/mutex-guarded lifecycle, atomic enabled flag), generalized
// from "periodic background sweep with a ticker" to "on-demand cycle with
// an explicit state machine," since spec.md §4.10 has no ticker of its
// own — TryCollect/Collect are caller-driven.
type Collector struct {
	gcLock deadlock.Mutex

	Table    *ChunkedObjectTable
	Clusters *ClusterTable
	Classes  ClassReflection
	Roots    RootEnumerator
	Allocator Allocator
	Pool      PermanentObjectPool

	Config Config
	Events *EventBus

	collecting   bool
	skipCount    int
	lastStats    CollectStats
	state        PurgeState
	currentCycle CycleID

	unhash        *UnhashPhase
	finishDestroy *FinishDestroyPhase
	purge         *PurgePhase
	asyncPurgeDone chan struct{}

	workers *WorkerPool
	aroQueues []*AROQueue
	weakScratches []*WeakScratchList
	pendingUnreachable []ObjectIndex
}

// NewCollector creates a Collector over table/clusters/classes/roots,
// sized per cfg.NumWorkers (clamped to [1, MaxWorkers]).
func NewCollector(table *ChunkedObjectTable, clusters *ClusterTable, classes ClassReflection, roots RootEnumerator, alloc Allocator, pool PermanentObjectPool, cfg Config) *Collector {
	n := cfg.NumWorkers
	if n < 1 {
		n = 1
	}
	if n > MaxWorkers {
		n = MaxWorkers
	}
	c := &Collector{
		Table:     table,
		Clusters:  clusters,
		Classes:   classes,
		Roots:     roots,
		Allocator: alloc,
		Pool:      pool,
		Config:    cfg,
		Events:    NewEventBus(),
		workers:   NewWorkerPool(n),
	}
	c.aroQueues = make([]*AROQueue, n)
	c.weakScratches = make([]*WeakScratchList, n)
	for i := 0; i < n; i++ {
		c.aroQueues[i] = NewAROQueue()
		c.weakScratches[i] = NewWeakScratchList()
	}
	return c
}

// IsCollecting reports whether a cycle is currently running.
func (c *Collector) IsCollecting() bool {
	return c.collecting
}

// IsIncrementalPurgePending reports whether a purge state machine is
// mid-flight and needs further IncrementalPurgeGarbage calls.
func (c *Collector) IsIncrementalPurgePending() bool {
	return c.state != PurgeIdle
}

// IsIncrementalUnhashPending reports whether the unhash sub-phase has
// more work.
func (c *Collector) IsIncrementalUnhashPending() bool {
	return c.unhash != nil && !c.unhash.Done()
}

// IsLockedForHashTables reports whether the GC lock is currently held,
// mirroring spec.md §6's exposed query of the same name.
func (c *Collector) IsLockedForHashTables() bool {
	locked := c.gcLock.TryLock()
	if locked {
		c.gcLock.Unlock()
		return false
	}
	return true
}

// TryCollect implements spec.md §4.10: a non-blocking attempt to acquire
// the GC lock; on failure, bump the skip counter, forcing a blocking
// acquisition once it exceeds Config.NumRetriesBeforeForcingGC.
func (c *Collector) TryCollect(ctx context.Context, keepFlags Flags, fullPurge bool) error {
	if !c.gcLock.TryLock() {
		c.skipCount++
		if c.skipCount <= c.Config.NumRetriesBeforeForcingGC {
			return &ErrGCBusy{SkipCount: c.skipCount}
		}
		c.gcLock.Lock()
	}
	c.skipCount = 0
	defer c.gcLock.Unlock()
	return c.runCycle(ctx, keepFlags, fullPurge)
}

// Collect implements spec.md §4.10: a full, blocking cycle. If a prior
// incremental purge is still in progress, it is driven to completion
// first.
func (c *Collector) Collect(ctx context.Context, keepFlags Flags, fullPurge bool) error {
	c.gcLock.Lock()
	defer c.gcLock.Unlock()
	if c.state != PurgeIdle {
		if err := c.driveIncrementalPurge(0); err != nil {
			return err
		}
	}
	return c.runCycle(ctx, keepFlags, fullPurge)
}

func (c *Collector) runCycle(ctx context.Context, keepFlags Flags, fullPurge bool) error {
	c.collecting = true
	defer func() { c.collecting = false }()

	cycle := NewCycleID()
	c.currentCycle = cycle
	start := time.Now()
	numObjects := int(c.Table.Num())
	logCycleStart(cycle, numObjects)

	c.Events.Broadcast(Event{Kind: EventPreCollect, Cycle: cycle})

	numThreads := 1
	if c.Config.AllowParallel {
		numThreads = c.workers.Len()
	}

	markStart := time.Now()
	mark := &MarkPhase{Table: c.Table, Clusters: c.Clusters, Roots: c.Roots, KeepFlags: keepFlags}
	initial, err := mark.Run(ctx, numThreads)
	if err != nil {
		return err
	}
	logPhase(cycle, "mark", time.Since(markStart).Seconds())
	c.seedWorkers(initial)

	reachStart := time.Now()
	coord := NewCoordinator(c.workers, func(w *WorkerContext) *ReachabilityProcessor {
		return &ReachabilityProcessor{
			Table: c.Table, Clusters: c.Clusters, Worker: w,
			AROQueue: c.aroQueues[w.Index], Classes: c.Classes,
			Walker: &SchemaWalker{}, Batcher: NewBatcher(c.Pool),
		}
	})
	if err := coord.Run(ctx); err != nil {
		return err
	}
	logPhase(cycle, "reachability", time.Since(reachStart).Seconds())
	c.Events.Broadcast(Event{Kind: EventReachabilityComplete, Cycle: cycle})

	gatherStart := time.Now()
	gather := &GatherPhase{Table: c.Table, Clusters: c.Clusters}
	unreachable, garbageRefs, err := gather.Run(ctx, numThreads, c.weakScratches)
	if err != nil {
		return err
	}
	logPhase(cycle, "gather", time.Since(gatherStart).Seconds())
	logGarbageReferences(cycle, garbageRefs)

	VerifyAssumptions(c.Table, c.Clusters, c.Config.VerifyAssumptionsChance)

	c.pendingUnreachable = unreachable
	c.state = PurgeMarkDone
	c.lastStats = CollectStats{
		Cycle: cycle, NumObjects: numObjects,
		NumUnreachable: len(unreachable), GarbageRefs: garbageRefs,
	}

	if fullPurge {
		if err := c.driveIncrementalPurge(0); err != nil {
			return err
		}
	}

	c.lastStats.Duration = time.Since(start)
	logCycleEnd(cycle, len(unreachable), c.lastStats.Duration.Seconds())
	c.Events.Broadcast(Event{Kind: EventPostCollect, Cycle: cycle, NumUnreachable: len(unreachable)})
	return nil
}

func (c *Collector) seedWorkers(initial []ObjectIndex) {
	c.workers.ResetAll()
	n := c.workers.Len()
	if n == 0 {
		return
	}
	for i, idx := range initial {
		c.workers.Worker(i % n).Queue.PushLocal(idx)
	}
}

// IncrementalPurgeGarbage implements spec.md §4.10's per-tick driver,
// advancing the purge state machine by at most budgetSeconds of wall
// clock (useTimeLimit=false runs to completion in one call).
func (c *Collector) IncrementalPurgeGarbage(useTimeLimit bool, budgetSeconds float64) error {
	budget := time.Duration(0)
	if useTimeLimit {
		budget = time.Duration(budgetSeconds * float64(time.Second))
	}
	return c.driveIncrementalPurge(budget)
}

func (c *Collector) driveIncrementalPurge(budget time.Duration) error {
	for c.state != PurgeIdle {
		switch c.state {
		case PurgeMarkDone, PurgeUnhashInProgress:
			if c.unhash == nil {
				c.unhash = &UnhashPhase{Objects: c.pendingUnreachable, Table: c.Table}
			}
			c.state = PurgeUnhashInProgress
			if !c.Config.IncrementalBeginDestroyEnabled {
				c.unhash.Run(0)
			} else {
				c.unhash.Run(budget)
			}
			logUnhashProgress(c.currentCycle, c.unhash.cursor, len(c.unhash.Objects))
			if c.unhash.Done() {
				c.state = PurgeUnhashDone
				continue
			}
			return nil

		case PurgeUnhashDone:
			c.state = PurgeBeginDestroyDone
			continue

		case PurgeBeginDestroyDone, PurgeFinishDestroyInProgress:
			if c.finishDestroy == nil {
				c.finishDestroy = &FinishDestroyPhase{
					Objects: c.pendingUnreachable, Table: c.Table,
					Policy: c.Config.ResolvedStallPolicy(), Cycle: c.currentCycle,
					AdditionalTimeout: time.Duration(c.Config.AdditionalFinishDestroyTime * float64(time.Second)),
				}
			}
			c.state = PurgeFinishDestroyInProgress
			if err := c.finishDestroy.Run(budget); err != nil {
				if _, ok := err.(*ErrStalledDestruction); ok {
					return nil // caller should keep ticking
				}
				return err
			}
			if c.finishDestroy.Done() {
				c.state = PurgeFinishDestroyDone
				continue
			}
			return nil

		case PurgeFinishDestroyDone, PurgeInProgress:
			if c.purge == nil {
				c.purge = &PurgePhase{Objects: c.pendingUnreachable, Table: c.Table, Allocator: c.Allocator}
			}
			c.state = PurgeInProgress

			if c.Config.MultithreadedDestructionEnabled {
				if c.asyncPurgeDone == nil {
					c.asyncPurgeDone = make(chan struct{})
					go func(p *PurgePhase, done chan struct{}) {
						p.RunAsync()
						close(done)
					}(c.purge, c.asyncPurgeDone)
				}
			} else {
				for !c.purge.asyncDone() {
					c.purge.RunAsync()
					if budget > 0 {
						break
					}
				}
			}
			c.purge.RunMainSlice(budget)
			if budget <= 0 {
				// No time limit: this call is expected to converge the
				// purge fully before returning, so keep slicing the
				// main-thread side (100 objects per slice) until both
				// cursors and the async goroutine, if any, have drained.
				for !c.purge.Done() {
					c.purge.RunMainSlice(budget)
				}
			}

			if c.purge.Done() {
				if c.asyncPurgeDone != nil {
					<-c.asyncPurgeDone
				}
				logPurgeComplete(c.currentCycle, len(c.pendingUnreachable))
				c.state = PurgeIdle
				c.unhash = nil
				c.finishDestroy = nil
				c.purge = nil
				c.asyncPurgeDone = nil
				c.pendingUnreachable = nil
				return nil
			}
			return nil
		}
	}
	return nil
}

// LastStats returns the most recently completed cycle's statistics.
func (c *Collector) LastStats() CollectStats {
	return c.lastStats
}
