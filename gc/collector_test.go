package gc

import (
	"context"
	"testing"
)

// buildChain registers a Link class and a slice of chained
// demoTraceObjects (chain[i].next == chain[i+1]), returning their table
// indices in the same order.
func buildChain(t *testing.T, classes *ClassRegistry, table *ChunkedObjectTable, names ...string) []ObjectIndex {
	t.Helper()
	link := linkedTestClass(classes, "Link")
	objs := make([]*demoTraceObject, len(names))
	for i := len(names) - 1; i >= 0; i-- {
		o := &demoTraceObject{name: names[i], class: link, threadSafe: true}
		if i+1 < len(names) {
			o.next = objs[i+1]
		}
		objs[i] = o
	}
	idxs := make([]ObjectIndex, len(names))
	for i, o := range objs {
		idxs[i] = table.Add(o, link)
	}
	return idxs
}

func TestCollectorLinearChainAllReachable(t *testing.T) {
	classes := NewClassRegistry()
	table := NewChunkedObjectTable(0)
	idxs := buildChain(t, classes, table, "A", "B", "C", "D")

	clusters := NewClusterTable()
	roots := &testRoots{roots: []ObjectIndex{idxs[0]}}
	cfg := DefaultConfig()
	cfg.NumWorkers = 2
	alloc := &testAllocator{}

	c := NewCollector(table, clusters, classes, roots, alloc, nil, cfg)
	if err := c.Collect(context.Background(), 0, true); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	stats := c.LastStats()
	if stats.NumUnreachable != 0 {
		t.Fatalf("expected 0 unreachable in a fully rooted chain, got %d", stats.NumUnreachable)
	}
	if len(alloc.freed) != 0 {
		t.Fatalf("expected nothing freed, got %d", len(alloc.freed))
	}
	for _, idx := range idxs {
		if table.IndexToItem(idx) == nil {
			t.Fatalf("object at index %d should still be live", idx)
		}
	}
}

func TestCollectorDeadChainAllCollected(t *testing.T) {
	classes := NewClassRegistry()
	table := NewChunkedObjectTable(0)
	idxs := buildChain(t, classes, table, "A", "B", "C")

	clusters := NewClusterTable()
	roots := &testRoots{} // nothing rooted this cycle
	cfg := DefaultConfig()
	cfg.NumWorkers = 2
	alloc := &testAllocator{}

	c := NewCollector(table, clusters, classes, roots, alloc, nil, cfg)
	if err := c.Collect(context.Background(), 0, true); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	stats := c.LastStats()
	if stats.NumUnreachable != len(idxs) {
		t.Fatalf("expected all %d objects unreachable, got %d", len(idxs), stats.NumUnreachable)
	}
	if len(alloc.freed) != len(idxs) {
		t.Fatalf("expected all %d objects freed by the full purge, got %d", len(idxs), len(alloc.freed))
	}
	for _, idx := range idxs {
		if table.IndexToItem(idx) != nil {
			t.Fatalf("object at index %d should have been freed from the table", idx)
		}
	}
}

func TestCollectorPartialChainKeepsOnlyReachablePrefix(t *testing.T) {
	// A -> B is rooted; C stands alone and unrooted, so only C should die.
	classes := NewClassRegistry()
	table := NewChunkedObjectTable(0)
	link := linkedTestClass(classes, "Link")

	b := &demoTraceObject{name: "B", class: link, threadSafe: true}
	a := &demoTraceObject{name: "A", class: link, next: b, threadSafe: true}
	c := &demoTraceObject{name: "C", class: link, threadSafe: true}

	idxA := table.Add(a, link)
	table.Add(b, link)
	idxC := table.Add(c, link)

	clusters := NewClusterTable()
	roots := &testRoots{roots: []ObjectIndex{idxA}}
	cfg := DefaultConfig()
	cfg.NumWorkers = 1
	alloc := &testAllocator{}

	coll := NewCollector(table, clusters, classes, roots, alloc, nil, cfg)
	if err := coll.Collect(context.Background(), 0, true); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if coll.LastStats().NumUnreachable != 1 {
		t.Fatalf("expected exactly 1 unreachable object (C), got %d", coll.LastStats().NumUnreachable)
	}
	if table.IndexToItem(idxC) != nil {
		t.Fatalf("C should have been collected")
	}
	if table.IndexToItem(idxA) == nil {
		t.Fatalf("A should still be live")
	}
}

func TestCollectorIncrementalPurgeDrainsOverMultipleTicks(t *testing.T) {
	classes := NewClassRegistry()
	table := NewChunkedObjectTable(0)
	idxs := buildChain(t, classes, table, "A", "B", "C", "D", "E")

	clusters := NewClusterTable()
	roots := &testRoots{} // all dead
	cfg := DefaultConfig()
	cfg.NumWorkers = 1
	cfg.MultithreadedDestructionEnabled = false
	alloc := &testAllocator{}

	c := NewCollector(table, clusters, classes, roots, alloc, nil, cfg)
	// fullPurge=false: only run mark/reachability/gather, leaving the
	// purge state machine parked for the caller to drive incrementally.
	if err := c.Collect(context.Background(), 0, false); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if !c.IsIncrementalPurgePending() {
		t.Fatalf("expected an incremental purge to be pending after a non-full collect")
	}

	for i := 0; i < 20 && c.IsIncrementalPurgePending(); i++ {
		if err := c.IncrementalPurgeGarbage(true, 0.002); err != nil {
			t.Fatalf("IncrementalPurgeGarbage: %v", err)
		}
	}
	if c.IsIncrementalPurgePending() {
		t.Fatalf("expected incremental purge to converge within 20 ticks")
	}
	if len(alloc.freed) != len(idxs) {
		t.Fatalf("expected all %d objects eventually freed, got %d", len(idxs), len(alloc.freed))
	}
}

func TestCollectorEventsFireInOrder(t *testing.T) {
	classes := NewClassRegistry()
	table := NewChunkedObjectTable(0)
	idxs := buildChain(t, classes, table, "A")

	clusters := NewClusterTable()
	roots := &testRoots{roots: []ObjectIndex{idxs[0]}}
	cfg := DefaultConfig()
	cfg.NumWorkers = 1
	c := NewCollector(table, clusters, classes, roots, &testAllocator{}, nil, cfg)

	var seen []EventKind
	ch, id := c.Events.Subscribe()
	defer c.Events.Unsubscribe(id)

	done := make(chan struct{})
	go func() {
		for ev := range ch {
			seen = append(seen, ev.Kind)
			if ev.Kind == EventPostCollect {
				close(done)
				return
			}
		}
	}()

	if err := c.Collect(context.Background(), 0, true); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	<-done

	want := []EventKind{EventPreCollect, EventReachabilityComplete, EventPostCollect}
	if len(seen) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(seen), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("event %d: expected %v, got %v", i, want[i], seen[i])
		}
	}
}
