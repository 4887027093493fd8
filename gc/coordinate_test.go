package gc

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// TestCoordinatorManyWorkersDrainWithoutLivelock seeds all initial work
// behind a single root so every worker but one starts empty and must
// steal, with a pool size (5) larger than the two-worker grace window
// the termination protocol used to allow — regressing the livelock where
// survivors could never again observe a quiescent pool once a couple of
// workers had already exited early.
func TestCoordinatorManyWorkersDrainWithoutLivelock(t *testing.T) {
	classes := NewClassRegistry()
	table := NewChunkedObjectTable(0)
	fan := fanTestClass(classes, "Fan")

	const numChildren = 40
	children := make([]*demoFanObject, numChildren)
	for i := range children {
		children[i] = &demoFanObject{name: fmt.Sprintf("leaf%d", i), class: fan, threadSafe: true}
	}
	root := &demoFanObject{name: "root", class: fan, threadSafe: true}
	for _, c := range children {
		root.children = append(root.children, c)
	}

	rootIdx := table.Add(root, fan)
	for _, c := range children {
		table.Add(c, fan)
	}

	clusters := NewClusterTable()
	roots := &testRoots{roots: []ObjectIndex{rootIdx}}
	cfg := DefaultConfig()
	cfg.NumWorkers = 5
	alloc := &testAllocator{}

	coll := NewCollector(table, clusters, classes, roots, alloc, nil, cfg)

	done := make(chan error, 1)
	go func() {
		done <- coll.Collect(context.Background(), 0, true)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Collect: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("reachability phase did not terminate with NumWorkers=5")
	}

	if coll.LastStats().NumUnreachable != 0 {
		t.Fatalf("expected every object reachable through root, got %d unreachable", coll.LastStats().NumUnreachable)
	}
	for _, c := range children {
		if table.ObjectToIndex(c) == invalidIndex {
			t.Fatalf("child %s should still be registered", c.name)
		}
	}
}
