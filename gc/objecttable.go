package gc

import (
	"sync"
	"sync/atomic"
)

// ObjectIndex addresses one slot of the global object table.
type ObjectIndex uint32

// invalidIndex is never a live slot index: it sits one past ObjectIndex's
// range of realistically assignable values, so it can't collide with a
// genuine index the way 0 (a legitimate first slot) would.
const invalidIndex ObjectIndex = ^ObjectIndex(0)

// ManagedObject is the opaque user record the collector traces and
// destroys. The collector never touches its fields directly outside of
// the flags word it owns via ObjectTableEntry; everything else is reached
// through ReferenceSchema and the Object lifecycle hooks.
type ManagedObject interface {
	// Class returns the class used to look up this object's schema and
	// slow ARO callbacks.
	Class() *Class
}

// ObjectLifecycle is implemented by ManagedObject values that need a
// two-phase destruction handshake (spec.md §4.8, §4.9). Objects that don't
// implement it are destroyed immediately once unhashed.
type ObjectLifecycle interface {
	// IsDestructionThreadSafe reports whether the destructor may run on
	// the AsyncPurge worker thread without the object-table lock beyond
	// the short batched acquisition around the destructor call itself.
	IsDestructionThreadSafe() bool
	// IsReadyForFinishDestroy reports whether ConditionalFinishDestroy may
	// be called yet. May be called repeatedly.
	IsReadyForFinishDestroy() bool
	// ConditionalBeginDestroy runs the object's teardown start. Called at
	// most once per object per cycle.
	ConditionalBeginDestroy()
	// ConditionalFinishDestroy runs the object's teardown completion.
	// Called at most once per object per cycle, only after
	// IsReadyForFinishDestroy has returned true.
	ConditionalFinishDestroy()
	// Destroy runs the object's destructor proper, immediately before its
	// storage is freed.
	Destroy()
}

// ObjectTableEntry is one slot of the global object table: the raw object
// pointer, its atomic flags, and the cluster-ownership fields from
// spec.md §3.
type ObjectTableEntry struct {
	Object      ManagedObject
	Flags       FlagWord
	OwnerIndex  int32 // 0: standalone; >0: +rootIndex; <0: -clusterIndex (root)
	ClusterIndex ObjectIndex
	Class       *Class
}

// IsClusterRoot reports whether this entry owns a cluster, i.e. whether
// FlagClusterRoot is set; OwnerIndex is not consulted.
func (e *ObjectTableEntry) IsClusterRoot() bool {
	return e.Flags.Has(FlagClusterRoot)
}

// IsClusterMember reports whether this entry is a non-root cluster member.
func (e *ObjectTableEntry) IsClusterMember() bool {
	return e.OwnerIndex > 0
}

// Allocator is the consumed interface for freeing an object's backing
// storage once its destructor has returned (spec.md §6). It must be safe
// to call from the AsyncPurge worker thread while the object-table lock is
// held.
type Allocator interface {
	FreeObject(obj ManagedObject)
}

// tableChunkSize matches the teacher's chunked-registry growth shape
// (chazu-maggie/vm/object_registry.go splits by kind; here we split one
// table by fixed-size chunk instead of growing a single slice, mirroring
// the Go runtime heap arena chunking in other_examples/*mheap.go).
const tableChunkSize = 16384

type tableChunk struct {
	entries [tableChunkSize]ObjectTableEntry
}

// ObjectTable is the consumed interface the core traces against
// (spec.md §6): index-to-object mapping with per-slot atomic flags.
type ObjectTable interface {
	IndexToItem(i ObjectIndex) *ObjectTableEntry
	ObjectToIndex(o ManagedObject) ObjectIndex
	GetFirstGCIndex() ObjectIndex
	Num() ObjectIndex
}

// ChunkedObjectTable is the reference ObjectTable implementation used by
// tests and the demo driver. Growth requires the object-table lock
// (spec.md §5); lookups and flag flips do not.
type ChunkedObjectTable struct {
	lock Lock // object-table lock; guards growth and index<->object binding

	mu      sync.RWMutex // protects chunks slice growth and the index map
	chunks  []*tableChunk
	num     atomic.Uint32 // one past the highest-ever-assigned index
	firstGC ObjectIndex
	byObj   map[ManagedObject]ObjectIndex
}

// NewChunkedObjectTable creates an empty table. firstGCIndex excludes a
// prefix of permanently-rooted bootstrap slots from the mark sweep, as in
// spec.md §3's "FirstGCIndex".
func NewChunkedObjectTable(firstGCIndex ObjectIndex) *ChunkedObjectTable {
	return &ChunkedObjectTable{
		firstGC: firstGCIndex,
		byObj:   make(map[ManagedObject]ObjectIndex),
	}
}

// Add registers obj, returning its new index. Requires the object-table
// lock (acquired internally): no sweep may run concurrently with growth.
func (t *ChunkedObjectTable) Add(obj ManagedObject, class *Class) ObjectIndex {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := ObjectIndex(t.num.Add(1) - 1)
	chunkIdx := int(idx) / tableChunkSize
	for len(t.chunks) <= chunkIdx {
		t.chunks = append(t.chunks, &tableChunk{})
	}
	entry := &t.chunks[chunkIdx].entries[int(idx)%tableChunkSize]
	entry.Object = obj
	entry.Class = class
	t.byObj[obj] = idx
	return idx
}

// Free clears a slot once the object has been destroyed and its storage
// released. Takes the object-table lock itself, so the caller must not
// hold it.
func (t *ChunkedObjectTable) Free(idx ObjectIndex) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	chunkIdx := int(idx) / tableChunkSize
	if chunkIdx >= len(t.chunks) {
		return
	}
	entry := &t.chunks[chunkIdx].entries[int(idx)%tableChunkSize]
	delete(t.byObj, entry.Object)
	*entry = ObjectTableEntry{}
}

// IndexToItem returns the slot at i, or nil if i is out of range. Safe to
// call concurrently with flag flips; must not be called concurrently with
// Add/Free without the object-table lock held by the caller when strict
// consistency of the slot count is required (readers tolerate a stale
// Num() during growth, per spec.md §5's "readable without locking").
func (t *ChunkedObjectTable) IndexToItem(i ObjectIndex) *ObjectTableEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	chunkIdx := int(i) / tableChunkSize
	if chunkIdx < 0 || chunkIdx >= len(t.chunks) {
		return nil
	}
	entry := &t.chunks[chunkIdx].entries[int(i)%tableChunkSize]
	if entry.Object == nil {
		return nil
	}
	return entry
}

// ObjectToIndex resolves an object back to its index, or invalidIndex if
// not registered.
func (t *ChunkedObjectTable) ObjectToIndex(o ManagedObject) ObjectIndex {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.byObj[o]
	if !ok {
		return invalidIndex
	}
	return idx
}

// GetFirstGCIndex returns the first index eligible for sweeping.
func (t *ChunkedObjectTable) GetFirstGCIndex() ObjectIndex {
	return t.firstGC
}

// Num returns one past the highest-ever-assigned index.
func (t *ChunkedObjectTable) Num() ObjectIndex {
	return ObjectIndex(t.num.Load())
}

// LockTable and UnlockTable expose the object-table lock so the purge pipeline (spec.md §4.9)
// can take short batched acquisitions around destructor calls.
func (t *ChunkedObjectTable) LockTable()   { t.lock.Lock() }
func (t *ChunkedObjectTable) UnlockTable() { t.lock.Unlock() }
