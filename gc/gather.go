package gc

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// GarbageReference records a reference to a garbage-flagged object that
// survived because its referrer kept it alive (spec.md §4.7), emitted as
// a structured diagnostic.
type GarbageReference struct {
	From ObjectIndex
	To   ObjectIndex
}

// GatherPhase implements spec.md §4.7: after reachability reaches a
// fixpoint, walk the object table in parallel stripes collecting every
// still-Unreachable object, dissolve any unreachable cluster roots into
// their members, and clear weak-reference slots pointing at the dead.
// No GarbageReference records are produced: the garbage-reference list Run
// returns is always empty.
//
// Grounded on chazu-maggie/vm/weak_reference.go's WeakRegistry.ProcessGC
// ("collect the dead set under a lock, then act on it outside the lock")
// generalized to "collect per-stripe under no lock at all, since each
// object's Unreachable flag is the only state read here and it is no
// longer mutated once reachability has fixpointed."
type GatherPhase struct {
	Table    ObjectTable
	Clusters *ClusterTable
}

// gatherResult is one stripe's contribution, folded by Run.
type gatherResult struct {
	unreachable []ObjectIndex
	garbageRefs []GarbageReference
}

// Run executes the gather sweep over numThreads stripes, then clears
// every worker's weak-reference scratch list against the resulting
// unreachable set (spec.md §5: "a total barrier after reachability: no
// purge work may null a slot that a subsequent trace would have
// visited" — Run itself is that barrier, since it only runs once
// reachability's errgroup has returned).
func (g *GatherPhase) Run(ctx context.Context, numThreads int, weakScratches []*WeakScratchList) ([]ObjectIndex, []GarbageReference, error) {
	if numThreads < 1 {
		numThreads = 1
	}
	first := g.Table.GetFirstGCIndex()
	total := g.Table.Num()

	results := make([]gatherResult, numThreads)
	eg, egctx := errgroup.WithContext(ctx)
	span := (uint32(total-first) + uint32(numThreads) - 1) / uint32(numThreads)
	for t := 0; t < numThreads; t++ {
		t := t
		lo := first + ObjectIndex(uint32(t)*span)
		hi := lo + ObjectIndex(span)
		if hi > total {
			hi = total
		}
		eg.Go(func() error {
			if egctx.Err() != nil {
				return egctx.Err()
			}
			results[t] = g.gatherStripe(lo, hi)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	var unreachable []ObjectIndex
	var garbageRefs []GarbageReference
	for _, r := range results {
		unreachable = append(unreachable, r.unreachable...)
		garbageRefs = append(garbageRefs, r.garbageRefs...)
	}

	for _, scratch := range weakScratches {
		scratch.ClearDead(g.Table)
	}

	return unreachable, garbageRefs, nil
}

func (g *GatherPhase) gatherStripe(lo, hi ObjectIndex) gatherResult {
	var res gatherResult
	for i := lo; i < hi; i++ {
		entry := g.Table.IndexToItem(i)
		if entry == nil {
			continue
		}
		if !entry.Flags.Has(FlagUnreachable) {
			continue
		}
		res.unreachable = append(res.unreachable, i)

		if entry.IsClusterRoot() {
			c := g.Clusters.Get(entry.ClusterIndex)
			if c != nil {
				for _, memberIdx := range c.Members {
					memberEntry := g.Table.IndexToItem(memberIdx)
					if memberEntry == nil {
						continue
					}
					if memberEntry.Flags.Flip(FlagUnreachable, set) {
						res.unreachable = append(res.unreachable, memberIdx)
					}
				}
			}
		}
	}
	return res
}
