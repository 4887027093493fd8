package gc

import "unsafe"

// SchemaBase is implemented by a ManagedObject whose class carries a
// ReferenceSchema with byte-offset entries: it exposes the address schema
// offsets are relative to. Objects whose references are entirely
// describable through ARO callbacks instead need not implement it.
//
// Grounded on other_examples/*mgcmark.go's unsafe.Pointer-based field
// scanning (the Go runtime's own scanner walks object memory the same
// way, through type pointer bitmaps rather than reflection) — schema
// offsets are only actionable in Go through unsafe.Pointer arithmetic,
// since ManagedObject is an opaque interface with no reflectable layout
// of its own.
type SchemaBase interface {
	GCBase() unsafe.Pointer
}

// SchemaWalker turns a ReferenceSchema plus an object into a stream of
// RawRefs, handing them to report. This is the tracer-facing half of
// spec.md §4.3's batcher/dispatcher pipeline: Walk produces the raw,
// not-yet-validated references that Batcher.Validate then filters.
// SchemaWalker carries no state of its own and is safe to share across
// workers.
type SchemaWalker struct{}

// Walk visits every entry of schema against obj, calling report for each
// memory-described reference discovered. Entries whose Kind is
// MemberCallback are handed to onCallback instead of read directly, since
// only the caller knows the owning class's callback table and how to tier
// the dispatch (spec.md §4.4: Fast runs inline, Unbalanced/ExtraSlow
// queue). Objects that don't implement SchemaBase are assumed to carry no
// memory-described references and are skipped entirely.
func (w *SchemaWalker) Walk(obj ManagedObject, schema *ReferenceSchema, report func(RawRef), onCallback func(callbackIndex int)) {
	if schema == nil {
		return
	}
	sb, ok := obj.(SchemaBase)
	if !ok {
		return
	}
	w.walkEntries(sb.GCBase(), schema.Entries(), report, onCallback)
}

func (w *SchemaWalker) walkEntries(base unsafe.Pointer, entries []SchemaEntry, report func(RawRef), onCallback func(int)) {
	for _, e := range entries {
		switch e.Kind {
		case KindReference:
			w.walkSingle(base, e, report)

		case KindReferenceArray, KindFreezableReferenceArray:
			w.walkSlice(base, e, report)

		case KindOptional:
			if *(*bool)(unsafe.Pointer(uintptr(base) + e.Offset)) && e.Nested != nil {
				w.walkEntries(base, e.Nested.Entries(), report, onCallback)
			}

		case KindStructArray, KindSparseStructArray, KindFreezableStructArray:
			w.walkStructArray(base, e, report, onCallback)

		case KindMemberCallback:
			if onCallback != nil {
				onCallback(e.CallbackIndex)
			}

		case KindFieldPath, KindFieldPathArray:
			// Field paths resolve through a higher-level property system
			// this core does not own; classes needing them register a
			// MemberCallback instead (spec.md §4.4's escape hatch).
			continue
		}
	}
}

func (w *SchemaWalker) walkSingle(base unsafe.Pointer, e SchemaEntry, report func(RawRef)) {
	slot := (*ManagedObject)(unsafe.Pointer(uintptr(base) + e.Offset))
	if *slot == nil {
		return
	}
	report(RawRef{Target: *slot, slot: slot})
}

func (w *SchemaWalker) walkSlice(base unsafe.Pointer, e SchemaEntry, report func(RawRef)) {
	hdr := (*[]ManagedObject)(unsafe.Pointer(uintptr(base) + e.Offset))
	for i := range *hdr {
		slot := &(*hdr)[i]
		if *slot == nil {
			continue
		}
		report(RawRef{Target: *slot, slot: slot})
	}
}

func (w *SchemaWalker) walkStructArray(base unsafe.Pointer, e SchemaEntry, report func(RawRef), onCallback func(int)) {
	if e.Nested == nil {
		return
	}
	countPtr := (*int)(unsafe.Pointer(uintptr(base) + e.Offset))
	dataPtr := *(*unsafe.Pointer)(unsafe.Pointer(uintptr(base) + e.Offset + unsafe.Sizeof(int(0))))
	n := *countPtr
	for i := 0; i < n; i++ {
		elemBase := unsafe.Pointer(uintptr(dataPtr) + uintptr(i)*e.Stride)
		w.walkEntries(elemBase, e.Nested.Entries(), report, onCallback)
	}
}
