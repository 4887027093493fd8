package gc

import "sync/atomic"

// Flags is the atomic bitmask carried by every ObjectTableEntry. All
// mutation happens through CompareAndSwap so that concurrent tracers never
// need a per-object lock.
type Flags uint32

const (
	// FlagUnreachable marks an object as not (yet) proven reachable this
	// cycle. Set by the mark phase, cleared by the reachability processor
	// the first time a live reference to the object is traced.
	FlagUnreachable Flags = 1 << iota
	// FlagReachableInCluster marks a non-root cluster member that has been
	// reached independently of its root (but whose root may still be
	// unreachable at the moment the flag is set).
	FlagReachableInCluster
	// FlagClusterRoot marks the one object in a cluster that owns the
	// cluster's fate.
	FlagClusterRoot
	// FlagRootSet marks an object persistently in the root set; the mark
	// sweep seeds it as initially reachable. Objects reported by the
	// RootEnumerator are not given this flag.
	FlagRootSet
	// FlagKeepFlags marks an object carrying caller/user-level "keep"
	// flags, tested only during mark.
	FlagKeepFlags
	// FlagKillable marks an object whose incoming killable references may
	// be nulled once the object is flagged garbage.
	FlagKillable
	// FlagGarbage marks a cluster root explicitly condemned before mark
	// runs (equivalent to PendingKill in spec.md §3).
	FlagGarbage
	// FlagDestroyed marks an object whose destructor has already run.
	FlagDestroyed
	// FlagPendingConstruction marks an object still being constructed;
	// never eligible for the reachable initial set on its own, but never
	// swept either.
	FlagPendingConstruction
	// FlagBeginDestroyCalled marks that ConditionalBeginDestroy has run
	// exactly once for this object.
	FlagBeginDestroyCalled
)

// bit is a tiny named bool to make call sites self-documenting
// (word.Flip(FlagUnreachable, clear) reads better than a bare false).
type bit = bool

const (
	set   bit = true
	clear bit = false
)

// FlagWord is the atomic flags word carried by an object table entry or a
// cluster. All mutation goes through Flip, which implements the
// "this-thread-cleared-flag" idiom of spec.md §9: readers snapshot the
// word, compute the next value, and CAS; only the winner acts on the flip.
type FlagWord struct {
	v atomic.Uint32
}

// Load returns the current flag set.
func (w *FlagWord) Load() Flags {
	return Flags(w.v.Load())
}

// Has reports whether every bit in mask is currently set.
func (w *FlagWord) Has(mask Flags) bool {
	return Flags(w.v.Load())&mask == mask
}

// Flip atomically sets (to=set) or clears (to=clear) every bit in mask,
// returning whether this call actually changed the word (i.e. at least one
// bit's previous state differed from the requested one). Only the caller
// for which Flip returns true "won the race" and should act on the flip —
// e.g. enqueue follow-up tracing work.
func (w *FlagWord) Flip(mask Flags, to bit) bool {
	for {
		old := w.v.Load()
		var next uint32
		if to {
			next = old | uint32(mask)
		} else {
			next = old &^ uint32(mask)
		}
		if next == old {
			return false
		}
		if w.v.CompareAndSwap(old, next) {
			return true
		}
	}
}

// ClearUnreachableIfSet atomically clears FlagUnreachable, returning true
// iff this call is the one that cleared it. Only the winner should enqueue
// follow-up work — spec.md §4.4 step 2 and §9.
func (w *FlagWord) ClearUnreachableIfSet() bool {
	return w.Flip(FlagUnreachable, clear)
}

// SetIfClear atomically sets mask, returning true iff this call is the one
// that set it (i.e. every bit in mask was previously clear).
func (w *FlagWord) SetIfClear(mask Flags) bool {
	return w.Flip(mask, set)
}
