package gc

import "fmt"

// Error taxonomy from spec.md §7. Only two of the five categories surface
// as Go errors: mutator contention (TryCollect's busy return) and stalled
// destruction's continue-vs-abort policy choice. Programming invariant
// violations and invalid-object validation failures are fatal and abort
// the process via abort(); resource exhaustion at the ARO boundary is
// handled locally by falling back to synchronous dispatch (gc/reach.go's
// EnqueueARO) and never surfaces as an error value at all.

// ErrGCBusy is returned by TryCollect when the GC lock is already held
// and the caller's skip-count has not yet exceeded NumRetriesBeforeForcingGC.
type ErrGCBusy struct {
	SkipCount int
}

func (e *ErrGCBusy) Error() string {
	return fmt.Sprintf("gc: busy, skip count %d", e.SkipCount)
}

// StallPolicy chooses what happens when FinishDestroy's PendingDestruction
// list fails to converge within AdditionalFinishDestroyTime (spec.md §7,
// §9's first Open Question).
type StallPolicy int

const (
	// StallLogAndContinue logs every non-ready object and keeps the
	// purge pipeline alive for another tick, retrying convergence.
	// Resolved as this module's default — see DESIGN.md's Open Question
	// decision, grounded on original_source/GarbageCollection.cpp's
	// platform-conditional warn-then-extend behavior.
	StallLogAndContinue StallPolicy = iota
	// StallAbort aborts the process once the extended timeout also
	// elapses.
	StallAbort
)

// ErrStalledDestruction is returned by the FinishDestroy driver when
// StallPolicy is StallLogAndContinue and convergence is still pending, and
// by any time-budgeted call whose pass over PendingDestruction made no
// progress; callers should keep calling IncrementalPurgeGarbage.
type ErrStalledDestruction struct {
	NonReady []ObjectIndex
}

func (e *ErrStalledDestruction) Error() string {
	return fmt.Sprintf("gc: %d objects not ready for FinishDestroy", len(e.NonReady))
}

// abort reports a programming invariant violation (spec.md §7: "treated
// as fatal: emit a structured diagnostic and abort") or an invalid-object
// validation failure. It never returns.
func abort(format string, args ...any) {
	logFatal(format, args...)
	panic(fmt.Sprintf(format, args...))
}
