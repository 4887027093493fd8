package gc

import (
	"sync/atomic"
	"time"
)

// unhashTimeCheckInterval and finishDestroyTimeCheckInterval are the N's
// spec.md §5 names ("N = 10 for unhash/finish-destroy, 100 for free").
const (
	unhashTimeCheckInterval       = 10
	finishDestroyTimeCheckInterval = 10
	freeTimeCheckInterval         = 100
)

// defaultStallTimeout and defaultAdditionalStallTimeout are the resolved
// defaults from original_source/GarbageCollection.cpp (see DESIGN.md's
// Open Question decision): 10s base, extensible to 40s before StallAbort
// policy would fire.
const (
	defaultStallTimeout           = 10 * time.Second
	defaultAdditionalStallTimeout = 40 * time.Second
)

// UnhashPhase implements spec.md §4.8: iterate UnreachableObjects calling
// ConditionalBeginDestroy exactly once per object, checking the wall
// clock every unhashTimeCheckInterval objects against a caller-supplied
// budget, saving the cursor and returning when the budget is exceeded.
type UnhashPhase struct {
	Objects []ObjectIndex
	Table   ObjectTable
	cursor  int
}

// Done reports whether every object has had ConditionalBeginDestroy
// invoked.
func (u *UnhashPhase) Done() bool { return u.cursor >= len(u.Objects) }

// Run advances the cursor until Done or the budget is exceeded. budget<=0
// means unlimited (run to completion in one call).
func (u *UnhashPhase) Run(budget time.Duration) {
	start := time.Now()
	for ; u.cursor < len(u.Objects); u.cursor++ {
		entry := u.Table.IndexToItem(u.Objects[u.cursor])
		if entry == nil {
			continue
		}
		if lc, ok := entry.Object.(ObjectLifecycle); ok {
			if entry.Flags.SetIfClear(FlagBeginDestroyCalled) {
				lc.ConditionalBeginDestroy()
			}
		}
		if budget > 0 && (u.cursor+1)%unhashTimeCheckInterval == 0 {
			if time.Since(start) >= budget {
				u.cursor++
				return
			}
		}
	}
}

// FinishDestroyPhase implements spec.md §4.9's first sub-phase: iterate
// UnreachableObjects, routing ready objects to ConditionalFinishDestroy
// and not-ready ones to a revisited PendingDestruction list, with a
// stall timer escalating per StallPolicy once PendingDestruction fails
// to converge within the configured timeout.
//
// Grounded on chazu-maggie/vm/concurrency.go's ProcessObject fork/join
// (a done channel plus a WaitGroup the main thread waits on), generalized
// from "wait for one goroutine to finish" to "repeatedly poll many
// objects' IsReadyForFinishDestroy until all converge or a stall fires" —
// the same "can't proceed until this subordinate is done" shape, without
// blocking since this core never blocks on mutator-owned readiness.
type FinishDestroyPhase struct {
	Objects []ObjectIndex
	Table   ObjectTable
	Policy  StallPolicy
	Cycle   CycleID
	Timeout time.Duration // defaults to defaultStallTimeout if zero
	AdditionalTimeout time.Duration // defaults to defaultAdditionalStallTimeout if zero

	cursor  int
	pending []ObjectIndex
	stallStart time.Time
	extended   bool
}

// Done reports whether both the main cursor and PendingDestruction have
// drained.
func (f *FinishDestroyPhase) Done() bool {
	return f.cursor >= len(f.Objects) && len(f.pending) == 0
}

// Run advances as far as budget allows (budget<=0 means unlimited),
// returning ErrStalledDestruction if Policy is StallLogAndContinue and
// PendingDestruction has not converged within Timeout+AdditionalTimeout,
// or panicking via abort() if Policy is StallAbort and both timeouts have
// elapsed. With a positive budget it also returns ErrStalledDestruction,
// under either policy, from any call in which a pass over
// PendingDestruction made no progress.
func (f *FinishDestroyPhase) Run(budget time.Duration) error {
	start := time.Now()
	timeout := f.Timeout
	if timeout == 0 {
		timeout = defaultStallTimeout
	}
	additional := f.AdditionalTimeout
	if additional == 0 {
		additional = defaultAdditionalStallTimeout
	}

	n := 0
	for ; f.cursor < len(f.Objects); f.cursor++ {
		idx := f.Objects[f.cursor]
		entry := f.Table.IndexToItem(idx)
		if entry == nil {
			continue
		}
		f.tryFinish(entry, idx)
		n++
		if n%finishDestroyTimeCheckInterval == 0 && budget > 0 && time.Since(start) >= budget {
			f.cursor++
			return nil
		}
	}

	for len(f.pending) > 0 {
		progressed := f.drainPendingOnce()
		n++
		if !progressed {
			if f.stallStart.IsZero() {
				f.stallStart = time.Now()
			}
			elapsed := time.Since(f.stallStart)
			if elapsed >= timeout {
				logStall(f.Cycle, f.pending)
				if !f.extended && elapsed >= timeout+additional {
					f.extended = true
				}
				if f.extended {
					if f.Policy == StallAbort {
						abort("gc: FinishDestroy stalled for %s, %d objects never became ready", elapsed, len(f.pending))
					}
					return &ErrStalledDestruction{NonReady: append([]ObjectIndex(nil), f.pending...)}
				}
			}
			if budget > 0 {
				return &ErrStalledDestruction{NonReady: append([]ObjectIndex(nil), f.pending...)}
			}
			continue
		}
		f.stallStart = time.Time{}
		if n%finishDestroyTimeCheckInterval == 0 && budget > 0 && time.Since(start) >= budget {
			return nil
		}
	}
	return nil
}

func (f *FinishDestroyPhase) tryFinish(entry *ObjectTableEntry, idx ObjectIndex) {
	lc, ok := entry.Object.(ObjectLifecycle)
	if !ok || lc.IsReadyForFinishDestroy() {
		if ok {
			lc.ConditionalFinishDestroy()
		}
		return
	}
	f.pending = append(f.pending, idx)
}

// drainPendingOnce walks PendingDestruction once, removing every
// now-ready object by swap-with-last, and reports whether at least one
// object became ready.
func (f *FinishDestroyPhase) drainPendingOnce() bool {
	progressed := false
	for i := 0; i < len(f.pending); {
		entry := f.Table.IndexToItem(f.pending[i])
		if entry == nil {
			f.pending[i] = f.pending[len(f.pending)-1]
			f.pending = f.pending[:len(f.pending)-1]
			progressed = true
			continue
		}
		lc, ok := entry.Object.(ObjectLifecycle)
		if ok && lc.IsReadyForFinishDestroy() {
			lc.ConditionalFinishDestroy()
			f.pending[i] = f.pending[len(f.pending)-1]
			f.pending = f.pending[:len(f.pending)-1]
			progressed = true
			continue
		}
		i++
	}
	return progressed
}

// PurgePhase implements spec.md §4.9's destructor+free sub-phase: a
// dedicated AsyncPurge worker thread walks UnreachableObjects from the
// front, destroying and freeing every thread-safe-to-destroy object under
// short batched lock acquisitions; the main thread drains the
// thread-unsafe remainder from the back, batching up to 100 destructors
// per 10ms slice.
type PurgePhase struct {
	Objects   []ObjectIndex
	Table     *ChunkedObjectTable
	Allocator Allocator

	asyncCursor   atomic.Int64
	mainCursor    atomic.Int64
	unsafeCount   atomic.Int64
	mainDestroyed atomic.Int64
}

// Done reports whether both cursors have reached the end and every
// thread-unsafe object has been accounted for by the main thread (spec.md
// §4.9: "complete when both cursors reach the end and the unsafe counter
// equals the number already main-thread-destroyed"). Safe to call while
// RunAsync is running concurrently on another goroutine.
func (p *PurgePhase) Done() bool {
	n := int64(len(p.Objects))
	return p.asyncCursor.Load() >= n && p.mainCursor.Load() >= n &&
		p.mainDestroyed.Load() == p.unsafeCount.Load()
}

// asyncDone reports whether the async cursor alone has reached the end,
// used by the single-threaded-destruction fallback to decide whether to
// keep calling RunAsync.
func (p *PurgePhase) asyncDone() bool {
	return p.asyncCursor.Load() >= int64(len(p.Objects))
}

// RunAsync advances the AsyncPurge cursor forward through every
// thread-safe object, called from the dedicated purge goroutine. Safe to
// run concurrently with RunMainSlice: each visits every index at most
// once and they only ever destroy disjoint objects — RunAsync acts on
// thread-safe ones, RunMainSlice on thread-unsafe ones — with
// LockTable/UnlockTable shared around the destructor call itself, as
// spec.md §4.9 describes.
func (p *PurgePhase) RunAsync() int {
	destroyed := 0
	for {
		i := p.asyncCursor.Load()
		if i >= int64(len(p.Objects)) {
			return destroyed
		}
		p.asyncCursor.Store(i + 1)
		idx := p.Objects[i]
		entry := p.Table.IndexToItem(idx)
		if entry == nil {
			// RunMainSlice only ever frees an object after judging it
			// thread-unsafe; a slot that's gone by the time this cursor
			// reaches it was unsafe and already accounted for there.
			p.unsafeCount.Add(1)
			continue
		}
		lc, ok := entry.Object.(ObjectLifecycle)
		if !ok || !lc.IsDestructionThreadSafe() {
			p.unsafeCount.Add(1)
			continue
		}
		p.Table.LockTable()
		lc.Destroy()
		entry.Flags.Flip(FlagDestroyed, set)
		p.Allocator.FreeObject(entry.Object)
		p.Table.UnlockTable()
		p.Table.Free(idx) // takes the object-table lock itself
		destroyed++
	}
}

// RunMainSlice destroys up to freeTimeCheckInterval thread-unsafe objects
// from the back of Objects within budget, called once per tick from the
// main thread.
func (p *PurgePhase) RunMainSlice(budget time.Duration) int {
	start := time.Now()
	destroyed := 0
	batch := 0
	for {
		if batch >= freeTimeCheckInterval {
			break
		}
		doneSoFar := p.mainCursor.Load()
		i := int64(len(p.Objects)) - 1 - doneSoFar
		if i < 0 {
			break
		}
		p.mainCursor.Store(doneSoFar + 1)
		idx := p.Objects[i]
		entry := p.Table.IndexToItem(idx)
		if entry == nil {
			continue
		}
		lc, ok := entry.Object.(ObjectLifecycle)
		if !ok || lc.IsDestructionThreadSafe() {
			continue // handled by RunAsync
		}
		p.Table.LockTable()
		lc.Destroy()
		entry.Flags.Flip(FlagDestroyed, set)
		p.Allocator.FreeObject(entry.Object)
		p.Table.UnlockTable()
		p.Table.Free(idx) // takes the object-table lock itself
		destroyed++
		p.mainDestroyed.Add(1)
		batch++
		if budget > 0 && time.Since(start) >= budget {
			break
		}
	}
	return destroyed
}
