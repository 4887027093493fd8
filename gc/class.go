package gc

// Class is the collector's view of the type/class system, which is an
// external collaborator per spec.md §1 — this core never builds a Class,
// only consumes one through ClassReflection. It carries the pieces the
// tracer actually needs: a name for diagnostics, an immutable schema, and
// any slow ARO callbacks.
//
// Grounded on chazu-maggie/vm/class.go's Class/Superclass/InstVars shape,
// generalized from "named instance variable, looked up by name" to
// "reference-bearing member, described once by a schema" — the tracer
// never does a name lookup on the hot path.
type Class struct {
	Name       string
	Superclass *Class

	schema      *ReferenceSchema
	aroCallbacks []AROCallback

	// classValueID mirrors chazu-maggie/vm/object_registry.go's
	// RegisterClassValue idempotent-registration pattern. ClassRegistry
	// does not assign it; it stays zero.
	classValueID int
}

// IsSubclassOf reports whether c is a subclass of other, or is other.
func (c *Class) IsSubclassOf(other *Class) bool {
	for cur := c; cur != nil; cur = cur.Superclass {
		if cur == other {
			return true
		}
	}
	return false
}

// ClassReflection is the consumed interface (spec.md §6) that produces a
// ReferenceSchema for any class and reports its registered slow ARO
// callbacks. The default implementation, ClassRegistry, is a simple
// in-process registry used by tests and the demo driver; production
// embedders are expected to back this with their real type system.
type ClassReflection interface {
	SchemaFor(c *Class) *ReferenceSchema
	SlowAROCallbacks(c *Class) []AROCallback
}

// ClassRegistry is a minimal ClassReflection backed by a map, grounded on
// chazu-maggie/vm/class.go's ClassTable (sync.RWMutex + map[string]*Class).
type ClassRegistry struct {
	mu      RWLock
	classes map[string]*Class
}

// NewClassRegistry creates an empty registry.
func NewClassRegistry() *ClassRegistry {
	return &ClassRegistry{classes: make(map[string]*Class)}
}

// Register installs c's schema and ARO callbacks, inheriting the
// superclass's schema view when c adds no new reference-bearing members
// and no new callback (spec.md §3's schema-reuse invariant).
func (r *ClassRegistry) Register(c *Class, b *SchemaBuilder, callbacks []AROCallback) *Class {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b == nil || len(b.entries) == 0 {
		if c.Superclass != nil && len(callbacks) == 0 {
			c.schema = c.Superclass.schema
			c.schema.Retain()
			c.aroCallbacks = c.Superclass.aroCallbacks
			r.classes[c.Name] = c
			return c
		}
	}
	c.schema = b.Build()
	c.aroCallbacks = callbacks
	r.classes[c.Name] = c
	return c
}

// SchemaFor implements ClassReflection.
func (r *ClassRegistry) SchemaFor(c *Class) *ReferenceSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c == nil {
		return nil
	}
	return c.schema
}

// SlowAROCallbacks implements ClassReflection.
func (r *ClassRegistry) SlowAROCallbacks(c *Class) []AROCallback {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c == nil {
		return nil
	}
	return c.aroCallbacks
}

// Lookup finds a previously registered class by name.
func (r *ClassRegistry) Lookup(name string) *Class {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.classes[name]
}
