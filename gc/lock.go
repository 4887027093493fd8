package gc

import (
	deadlock "github.com/sasha-s/go-deadlock"
)

// Lock and RWLock back the two locks spec.md §5 calls out by name: the GC
// lock and the object-table lock. Both use go-deadlock rather than
// sync.Mutex/sync.RWMutex — a drop-in replacement that reports a stack
// trace instead of hanging when lock discipline is violated (e.g. a
// pre/post-collection subscriber that re-enters Collect while the GC lock
// it expects to be free is actually held by its own caller). This
// directly supports the testable property in spec.md §8: "the GC lock is
// released before any external post-phase subscriber is invoked."
type Lock = deadlock.Mutex

// RWLock is the read-write variant, used where many readers (tracing
// workers) coexist with occasional writers (table growth).
type RWLock = deadlock.RWMutex
