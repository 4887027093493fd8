package gc

// SchemaKind is the closed set of reference-schema entry kinds from
// spec.md §3.
type SchemaKind uint8

const (
	KindReference SchemaKind = iota
	KindReferenceArray
	KindStructArray
	KindSparseStructArray
	KindOptional
	KindFieldPath
	KindFieldPathArray
	KindMemberCallback
	KindFreezableReferenceArray
	KindFreezableStructArray
)

// SchemaEntry describes one reference-bearing member of a class: where it
// lives (Offset, bytes from the object's base), how wide each element is
// (Stride, for array/struct kinds), and how to visit it (Kind). Nested
// describes the element layout for StructArray/SparseStructArray/Optional
// entries. CallbackIndex names a MemberCallback's slot in its class's ARO
// callback table (spec.md §4.4).
type SchemaEntry struct {
	Offset        uintptr
	Kind          SchemaKind
	Stride        uintptr
	Nested        *ReferenceSchema
	CallbackIndex int
	// Freezable marks FreezableReferenceArray/FreezableStructArray
	// entries, whose backing store comes from an alternative allocator
	// the tracer must not assume is heap-owned.
	Freezable bool
}

// ReferenceSchema is the immutable, reference-counted, per-class byte
// sequence describing where a class's strong references live. Built once
// per class by a SchemaBuilder; structural stride is always a multiple of
// 8 (spec.md §3's invariant), enforced by SchemaBuilder.Add.
//
// Grounded on chazu-maggie/vm/class.go's InstVarIndex/instVarOffset slot
// walk, generalized from "named slot, resolved by linear scan of a name
// list" to "byte offset, resolved once at class-build time" so the tracer
// never does a name lookup on the hot path — the same "dynamic dispatch on
// objects" tradeoff spec.md §9 calls out.
type ReferenceSchema struct {
	entries  []SchemaEntry
	refCount *refCounter
}

// refCounter is a tiny reference count, incremented when a class adopts a
// parent's schema view (spec.md §3: "schemas are reference-counted").
type refCounter struct {
	n int
}

// Entries returns the packed entry sequence. Callers must not mutate it.
func (s *ReferenceSchema) Entries() []SchemaEntry {
	if s == nil {
		return nil
	}
	return s.entries
}

// Retain increments the schema's reference count; Release decrements it.
// Neither frees memory (Go's GC owns that) — they exist so
// ClassRegistry.Register's "subclasses reuse a parent's schema view"
// invariant is observable and testable, matching the original's
// refcounted FGCReferenceTokenStream.
func (s *ReferenceSchema) Retain() {
	if s != nil {
		s.refCount.n++
	}
}

func (s *ReferenceSchema) Release() {
	if s != nil {
		s.refCount.n--
	}
}

// SchemaBuilder accumulates entries for one class's schema. Entries must
// be added in ascending Offset order, the same "packed sequence" shape as
// the original's token stream.
type SchemaBuilder struct {
	entries []SchemaEntry
}

// NewSchemaBuilder creates an empty builder.
func NewSchemaBuilder() *SchemaBuilder {
	return &SchemaBuilder{}
}

// Add appends one entry, panicking (a programming-invariant violation,
// spec.md §7) if a struct-array kind's stride is not a multiple of 8 or
// if entries are not added in non-decreasing offset order.
func (b *SchemaBuilder) Add(e SchemaEntry) *SchemaBuilder {
	switch e.Kind {
	case KindStructArray, KindSparseStructArray, KindFreezableStructArray:
		if e.Stride%8 != 0 {
			abort("reference schema: struct stride %d is not a multiple of 8", e.Stride)
		}
	}
	if len(b.entries) > 0 && e.Offset < b.entries[len(b.entries)-1].Offset {
		abort("reference schema: entry offset %d out of order after %d", e.Offset, b.entries[len(b.entries)-1].Offset)
	}
	b.entries = append(b.entries, e)
	return b
}

// Reference adds a single-slot reference entry.
func (b *SchemaBuilder) Reference(offset uintptr) *SchemaBuilder {
	return b.Add(SchemaEntry{Offset: offset, Kind: KindReference})
}

// ReferenceArray adds a dynamic array of reference slots.
func (b *SchemaBuilder) ReferenceArray(offset uintptr) *SchemaBuilder {
	return b.Add(SchemaEntry{Offset: offset, Kind: KindReferenceArray})
}

// StructArray adds a dynamic array of compound elements visited through
// nested.
func (b *SchemaBuilder) StructArray(offset, stride uintptr, nested *ReferenceSchema) *SchemaBuilder {
	return b.Add(SchemaEntry{Offset: offset, Kind: KindStructArray, Stride: stride, Nested: nested})
}

// SparseStructArray adds a set/map backing-store entry.
func (b *SchemaBuilder) SparseStructArray(offset, stride uintptr, nested *ReferenceSchema) *SchemaBuilder {
	return b.Add(SchemaEntry{Offset: offset, Kind: KindSparseStructArray, Stride: stride, Nested: nested})
}

// Optional adds a present-or-absent slot visited through nested when
// present.
func (b *SchemaBuilder) Optional(offset uintptr, nested *ReferenceSchema) *SchemaBuilder {
	return b.Add(SchemaEntry{Offset: offset, Kind: KindOptional, Nested: nested})
}

// MemberCallback adds an out-of-band user callback, indexed into the
// owning class's ARO callback table.
func (b *SchemaBuilder) MemberCallback(callbackIndex int) *SchemaBuilder {
	return b.Add(SchemaEntry{Kind: KindMemberCallback, CallbackIndex: callbackIndex})
}

// Build finalizes the schema. The builder must not be reused afterwards.
func (b *SchemaBuilder) Build() *ReferenceSchema {
	entries := make([]SchemaEntry, len(b.entries))
	copy(entries, b.entries)
	return &ReferenceSchema{entries: entries, refCount: &refCounter{n: 1}}
}
