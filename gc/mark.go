package gc

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RootEnumerator is the consumed interface (spec.md §6) enumerating the
// initial root references for a cycle, split across workers.
type RootEnumerator interface {
	// EnumerateRoots calls report for every object directly reachable as
	// a root. Implementations may enumerate a disjoint subset per
	// workerIndex/numWorkers, matching spec.md §4.6's "initial objects
	// ... evenly split across workers."
	EnumerateRoots(workerIndex, numWorkers int, report func(ObjectIndex))
}

// KeepClusterRef records a cluster reference that survived mark's first
// pass and needs second-pass propagation (spec.md §4.5).
type KeepClusterRef struct {
	Cluster ClusterIndex
}

// markResult is what one stripe's pass produces for the coordinator to
// fold together.
type markResult struct {
	initialReachable []ObjectIndex
	keepClusterRefs  []KeepClusterRef
	dissolveClusters []ClusterIndex
}

// MarkPhase implements spec.md §4.5: a parallel sweep over
// [FirstGCIndex, Num) split into stripes, classifying every object as
// initially reachable, unreachable, or cluster-deferred, with no decision
// depending on stripe boundaries (the determinism property spec.md §4.5
// and §8 require).
//
// Grounded on spec.md §4.5 directly; parallelism via
// golang.org/x/sync/errgroup, the same fan-out primitive wired in
// gc/gather.go, matching the errgroup usage already present (indirectly)
// in chazu-maggie's dependency graph and directly in
// joeycumines-go-utilpkg's submodules.
type MarkPhase struct {
	Table    ObjectTable
	Clusters *ClusterTable
	Roots    RootEnumerator
	KeepFlags Flags
}

// Run executes the mark phase with numThreads stripes (numThreads ≤ 1
// degrades to a single sequential pass, preserving spec.md §8's parallel-
// determinism property). Returns the flattened initial-reachable set that
// seeds the reachability pipeline.
func (m *MarkPhase) Run(ctx context.Context, numThreads int) ([]ObjectIndex, error) {
	if numThreads < 1 {
		numThreads = 1
	}
	first := m.Table.GetFirstGCIndex()
	total := m.Table.Num()
	if total <= first {
		return nil, nil
	}

	results := make([]markResult, numThreads)
	g, gctx := errgroup.WithContext(ctx)
	span := (uint32(total-first) + uint32(numThreads) - 1) / uint32(numThreads)
	for t := 0; t < numThreads; t++ {
		t := t
		lo := first + ObjectIndex(uint32(t)*span)
		hi := lo + ObjectIndex(span)
		if hi > total {
			hi = total
		}
		g.Go(func() error {
			results[t] = m.sweepStripe(gctx, lo, hi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range results {
		for _, ci := range r.dissolveClusters {
			m.dissolveCluster(ci)
		}
	}

	visited := make(map[ClusterIndex]bool)
	for _, r := range results {
		for _, kr := range r.keepClusterRefs {
			m.Clusters.PropagateFromRoot(m.Table, kr.Cluster, visited)
		}
	}

	var initial []ObjectIndex
	for _, r := range results {
		initial = append(initial, r.initialReachable...)
	}

	// Seed the per-cycle external root set (stack roots, native globals —
	// anything the embedder reports through RootEnumerator rather than a
	// persistent FlagRootSet) now that every object's Unreachable flag
	// reflects the sweep above.
	if m.Roots != nil {
		extra := make([][]ObjectIndex, numThreads)
		g2, gctx2 := errgroup.WithContext(ctx)
		for t := 0; t < numThreads; t++ {
			t := t
			g2.Go(func() error {
				extra[t] = m.enumerateExternalRoots(gctx2, t, numThreads)
				return nil
			})
		}
		if err := g2.Wait(); err != nil {
			return nil, err
		}
		for _, xs := range extra {
			initial = append(initial, xs...)
		}
	}

	return initial, nil
}

func (m *MarkPhase) enumerateExternalRoots(ctx context.Context, workerIndex, numThreads int) []ObjectIndex {
	var out []ObjectIndex
	m.Roots.EnumerateRoots(workerIndex, numThreads, func(idx ObjectIndex) {
		if ctx.Err() != nil {
			return
		}
		entry := m.Table.IndexToItem(idx)
		if entry == nil {
			return
		}
		if entry.Flags.ClearUnreachableIfSet() {
			out = append(out, idx)
			if entry.IsClusterRoot() || entry.IsClusterMember() {
				visited := make(map[ClusterIndex]bool)
				m.Clusters.PropagateFromRoot(m.Table, entry.ClusterIndex, visited)
			}
		}
	})
	return out
}

func (m *MarkPhase) sweepStripe(ctx context.Context, lo, hi ObjectIndex) markResult {
	var res markResult
	for i := lo; i < hi; i++ {
		entry := m.Table.IndexToItem(i)
		if entry == nil {
			continue
		}
		entry.Flags.Flip(FlagReachableInCluster, clear)

		switch {
		case entry.Flags.Has(FlagRootSet):
			res.initialReachable = append(res.initialReachable, i)
			if entry.IsClusterRoot() || entry.IsClusterMember() {
				res.keepClusterRefs = append(res.keepClusterRefs, KeepClusterRef{Cluster: entry.ClusterIndex})
			}
		case entry.IsClusterMember():
			if entry.Flags.Has(FlagKeepFlags) {
				res.initialReachable = append(res.initialReachable, i)
			}
			// Otherwise left alone: the cluster root decides.
		default:
			keep := entry.Flags.Has(FlagKeepFlags) || (m.KeepFlags != 0 && entry.Flags.Has(m.KeepFlags))
			switch {
			case keep:
				res.initialReachable = append(res.initialReachable, i)
			case entry.Flags.Has(FlagPendingConstruction):
				// Neither seeded nor marked Unreachable: never swept.
			case entry.IsClusterRoot() && entry.Flags.Has(FlagGarbage):
				res.dissolveClusters = append(res.dissolveClusters, entry.ClusterIndex)
			default:
				entry.Flags.Flip(FlagUnreachable, set)
			}
		}
	}
	return res
}

// dissolveCluster marks every member individually unreachable so the
// sweep treats them as ordinary objects from here on (spec.md §4.5: "marks
// their members as individually tracked and adds them to the unreachable
// sweep").
func (m *MarkPhase) dissolveCluster(ci ClusterIndex) {
	c := m.Clusters.Get(ci)
	if c == nil {
		return
	}
	c.NeedsDissolving = true
	for _, memberIdx := range c.Members {
		entry := m.Table.IndexToItem(memberIdx)
		if entry == nil {
			continue
		}
		entry.Flags.Flip(FlagUnreachable, set)
		entry.Flags.Flip(FlagClusterRoot, clear)
	}
}
