package gc

import "unsafe"

// demoTraceObject is the shared test double used across gc's tests: a
// single outgoing strong reference (next) plus trivial lifecycle hooks
// that are always immediately ready, so FinishDestroy/purge never stall
// in tests that don't care about that behavior.
type demoTraceObject struct {
	name       string
	class      *Class
	next       ManagedObject
	destroyed  bool
	threadSafe bool
}

func (o *demoTraceObject) Class() *Class       { return o.class }
func (o *demoTraceObject) GCBase() unsafe.Pointer { return unsafe.Pointer(&o.next) }

func (o *demoTraceObject) IsDestructionThreadSafe() bool { return o.threadSafe }
func (o *demoTraceObject) IsReadyForFinishDestroy() bool { return true }
func (o *demoTraceObject) ConditionalBeginDestroy()      {}
func (o *demoTraceObject) ConditionalFinishDestroy()     {}
func (o *demoTraceObject) Destroy()                      { o.destroyed = true }

type testAllocator struct {
	freed []ManagedObject
}

func (a *testAllocator) FreeObject(o ManagedObject) { a.freed = append(a.freed, o) }

// testRoots enumerates a fixed set of roots, splitting round-robin across
// workers the way a real embedder's stack/native-root scan would.
type testRoots struct {
	roots []ObjectIndex
}

func (r *testRoots) EnumerateRoots(workerIndex, numWorkers int, report func(ObjectIndex)) {
	for i, idx := range r.roots {
		if i%numWorkers == workerIndex {
			report(idx)
		}
	}
}

// linkedTestClass registers a class whose only instance field is a
// strong reference at offset 0, matching demoTraceObject.next's layout.
func linkedTestClass(classes *ClassRegistry, name string) *Class {
	b := NewSchemaBuilder().Reference(0)
	return classes.Register(&Class{Name: name}, b, nil)
}

// demoFanObject is a test double with a variable-length set of outgoing
// references, used to build wide trees that spread initial work thin
// across many workers and force real stealing.
type demoFanObject struct {
	name       string
	class      *Class
	children   []ManagedObject
	threadSafe bool
}

func (o *demoFanObject) Class() *Class           { return o.class }
func (o *demoFanObject) GCBase() unsafe.Pointer  { return unsafe.Pointer(&o.children) }
func (o *demoFanObject) IsDestructionThreadSafe() bool { return o.threadSafe }
func (o *demoFanObject) IsReadyForFinishDestroy() bool { return true }
func (o *demoFanObject) ConditionalBeginDestroy()      {}
func (o *demoFanObject) ConditionalFinishDestroy()     {}
func (o *demoFanObject) Destroy()                      {}

// fanTestClass registers a class whose only instance field is a
// reference array at offset 0, matching demoFanObject.children's layout.
func fanTestClass(classes *ClassRegistry, name string) *Class {
	b := NewSchemaBuilder().ReferenceArray(0)
	return classes.Register(&Class{Name: name}, b, nil)
}
