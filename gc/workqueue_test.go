package gc

import (
	"sort"
	"sync"
	"testing"
)

func TestWorkQueuePushPopLIFO(t *testing.T) {
	q := NewWorkQueue()
	for i := ObjectIndex(1); i <= 10; i++ {
		q.PushLocal(i)
	}
	for i := ObjectIndex(10); i >= 1; i-- {
		got, ok := q.PopLocal()
		if !ok {
			t.Fatalf("PopLocal: expected item %d, got empty", i)
		}
		if got != i {
			t.Fatalf("PopLocal: expected %d, got %d", i, got)
		}
	}
	if _, ok := q.PopLocal(); ok {
		t.Fatalf("PopLocal on empty queue should report false")
	}
}

func TestWorkQueueOverflowSpills(t *testing.T) {
	q := NewWorkQueue()
	total := workQueueCapacity + overflowBlockCapacity + 5
	for i := ObjectIndex(0); i < ObjectIndex(total); i++ {
		q.PushLocal(i)
	}
	seen := map[ObjectIndex]bool{}
	for {
		idx, ok := q.PopLocal()
		if !ok {
			break
		}
		seen[idx] = true
	}
	if len(seen) != total {
		t.Fatalf("expected %d distinct items drained, got %d", total, len(seen))
	}
	if !q.Empty() {
		t.Fatalf("queue should be empty after full drain")
	}
}

func TestWorkQueueStealTakesFromRingOnly(t *testing.T) {
	q := NewWorkQueue()
	for i := ObjectIndex(0); i < 20; i++ {
		q.PushLocal(i)
	}
	batch := q.Steal()
	if len(batch) == 0 {
		t.Fatalf("expected Steal to take a non-empty batch")
	}
	if len(batch) > 10 {
		t.Fatalf("Steal should take at most half of the ring, got %d of 20", len(batch))
	}
}

func TestWorkQueueStealNeverDuplicatesWithOwnerPop(t *testing.T) {
	// Regression for the single-element race between PopLocal and Steal:
	// every item pushed must be observed by exactly one of the owner's
	// PopLocal calls or a concurrent stealer's Steal call, never both and
	// never neither.
	const n = 4000
	q := NewWorkQueue()
	for i := ObjectIndex(0); i < n; i++ {
		q.PushLocal(i)
	}

	var mu sync.Mutex
	var stolen []ObjectIndex
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				batch := q.Steal()
				if len(batch) == 0 {
					continue
				}
				mu.Lock()
				stolen = append(stolen, batch...)
				mu.Unlock()
			}
		}()
	}

	var popped []ObjectIndex
	for {
		idx, ok := q.PopLocal()
		if !ok {
			if q.Empty() {
				break
			}
			continue
		}
		popped = append(popped, idx)
	}
	close(stop)
	wg.Wait()

	all := append(popped, stolen...)
	if len(all) != n {
		t.Fatalf("expected exactly %d items total across pop+steal, got %d", n, len(all))
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	for i, v := range all {
		if v != ObjectIndex(i) {
			t.Fatalf("item %d missing or duplicated: got %d at sorted position %d", i, v, i)
		}
	}
}

func TestAROQueuePushAndDrainAll(t *testing.T) {
	q := NewAROQueue()
	var objs []ManagedObject
	cbs := make([]*AROCallback, 0)
	for i := 0; i < aroBlockCapacity*3+7; i++ {
		o := &demoTraceObject{name: "x"}
		cb := &AROCallback{Tier: AROFast}
		objs = append(objs, o)
		cbs = append(cbs, cb)
		q.Push(o, cb)
	}

	seen := 0
	q.DrainAll(func(obj ManagedObject, cb *AROCallback) {
		seen++
	})
	if seen != len(objs) {
		t.Fatalf("expected DrainAll to visit %d entries, got %d", len(objs), seen)
	}

	// Draining again must be a no-op: DrainAll empties the queue.
	seen2 := 0
	q.DrainAll(func(obj ManagedObject, cb *AROCallback) { seen2++ })
	if seen2 != 0 {
		t.Fatalf("expected second DrainAll to see 0 entries, got %d", seen2)
	}
}
