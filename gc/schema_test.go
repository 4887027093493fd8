package gc

import "testing"

func TestSchemaBuilderRejectsOutOfOrderOffsets(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Add to panic on an out-of-order offset")
		}
	}()
	NewSchemaBuilder().Reference(16).Reference(8)
}

func TestSchemaBuilderRejectsUnalignedStride(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Add to panic on a misaligned struct stride")
		}
	}()
	NewSchemaBuilder().StructArray(0, 7, nil)
}

func TestSchemaRegistrySubclassReusesParentSchema(t *testing.T) {
	classes := NewClassRegistry()
	base := classes.Register(&Class{Name: "Base"}, NewSchemaBuilder().Reference(0), nil)
	sub := &Class{Name: "Sub", Superclass: base}
	classes.Register(sub, NewSchemaBuilder(), nil)

	if classes.SchemaFor(sub) != classes.SchemaFor(base) {
		t.Fatalf("subclass with no new schema entries should reuse its parent's schema view")
	}
}

func TestSchemaWalkerWalksSingleReference(t *testing.T) {
	classes := NewClassRegistry()
	link := linkedTestClass(classes, "Link")

	child := &demoTraceObject{name: "child", class: link}
	parent := &demoTraceObject{name: "parent", class: link, next: child}

	schema := classes.SchemaFor(link)
	w := &SchemaWalker{}

	var found []ManagedObject
	w.Walk(parent, schema, func(r RawRef) {
		found = append(found, r.Target)
	}, nil)

	if len(found) != 1 || found[0] != child {
		t.Fatalf("expected walker to report exactly [child], got %v", found)
	}
}

func TestSchemaWalkerSkipsNilReference(t *testing.T) {
	classes := NewClassRegistry()
	link := linkedTestClass(classes, "Link")
	leaf := &demoTraceObject{name: "leaf", class: link} // next is nil

	var found []ManagedObject
	(&SchemaWalker{}).Walk(leaf, classes.SchemaFor(link), func(r RawRef) {
		found = append(found, r.Target)
	}, nil)

	if len(found) != 0 {
		t.Fatalf("expected no references from a nil slot, got %v", found)
	}
}

func TestSchemaWalkerDispatchesMemberCallback(t *testing.T) {
	classes := NewClassRegistry()
	b := NewSchemaBuilder().MemberCallback(0)
	called := false
	cb := AROCallback{Tier: AROFast, Visit: func(obj ManagedObject, report Reporter) {
		called = true
	}}
	cls := classes.Register(&Class{Name: "Cb"}, b, []AROCallback{cb})

	obj := &demoTraceObject{name: "x", class: cls}
	gotIdx := -1
	(&SchemaWalker{}).Walk(obj, classes.SchemaFor(cls), func(RawRef) {}, func(idx int) {
		gotIdx = idx
	})
	if gotIdx != 0 {
		t.Fatalf("expected callback index 0 to be reported, got %d", gotIdx)
	}
	_ = called // the walker itself never invokes Visit; the caller does
}
