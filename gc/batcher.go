package gc

// validationBatchSize is the fixed capacity of each staging batch in the
// reference pipeline (spec.md §4.3). Kept a power of two so compaction
// cursors and prefetch-distance arithmetic stay cheap.
const validationBatchSize = 64

// prefetchDistance is the validated stage's lookahead distance from
// spec.md §4.3. Validate does not prefetch, and nothing in this package
// reads this constant.
const prefetchDistance = 64

// RawRef is one not-yet-validated reference slot: the value presently
// stored there (possibly nil, a permanent-pool pointer, or an unresolved
// handle) and, when the walker knows it, the slot's address for in-place
// clearing. The processor clears the slot only when Killable is set.
type RawRef struct {
	Target    ManagedObject
	Killable  bool
	slot      *ManagedObject // nil when the slot address is unknown
}

// SetSlot records the address the processor may overwrite with nil if
// this reference turns out killable-and-garbage. Called by schema
// walkers that own the backing storage.
func (r *RawRef) SetSlot(addr *ManagedObject) { r.slot = addr }

// Null clears the backing slot, if one was recorded.
func (r *RawRef) Null() {
	if r.slot != nil {
		*r.slot = nil
	}
}

// ValidatedRef is a RawRef that has survived the validation stage: its
// target is non-nil, not in the permanent pool, and its handle (if any)
// resolved.
type ValidatedRef = RawRef

// PermanentObjectPool is the consumed interface (spec.md §6) reporting
// whether a pointer belongs to the permanent pool and is therefore never
// traced.
type PermanentObjectPool interface {
	Contains(obj ManagedObject) bool
}

// ObjectHandle is the consumed interface (spec.md §6) for duck-typed
// unresolved handles; the batcher skips slots whose handle has not
// resolved rather than forcing resolution.
type ObjectHandle interface {
	IsResolved() bool
}

// Batcher drains a slice of RawRef through the validation stage,
// producing validated references without shrinking the backing array —
// surviving entries are copied, in order, to the front of the output
// slice with a single cursor. No validity bitmask is built and no
// entries are prefetched; this is plain Go slice code.
//
// Grounded on other_examples/Voryla-golang-followme__mgcwork.go's
// put/putBatch buffer discipline, generalized from "copy pointers into a
// work buffer" to "validate in place, then copy survivors forward."
type Batcher struct {
	pool    PermanentObjectPool
	scratch [validationBatchSize]RawRef
}

// NewBatcher creates a batcher that consults pool during validation. pool
// may be nil if no permanent pool is configured.
func NewBatcher(pool PermanentObjectPool) *Batcher {
	return &Batcher{pool: pool}
}

// Validate drains raw, writing surviving (non-nil, non-permanent,
// resolved) entries into out and returning the count written. out must
// have capacity ≥ len(raw); reusing a pre-sized slice across calls avoids
// reallocation on the hot path.
func (b *Batcher) Validate(raw []RawRef, out []ValidatedRef) int {
	n := 0
	for i := range raw {
		r := raw[i]
		if r.Target == nil {
			continue
		}
		if h, ok := r.Target.(ObjectHandle); ok && !h.IsResolved() {
			continue
		}
		if b.pool != nil && b.pool.Contains(r.Target) {
			continue
		}
		out[n] = r
		n++
	}
	return n
}
