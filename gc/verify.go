package gc

import "math/rand"

// VerifyAssumptions runs the invariant checks spec.md §7 treats as
// "programming invariant violation ⇒ fatal": every cluster's root index
// has a live table entry carrying FlagClusterRoot, and every live non-root
// member has a positive OwnerIndex. Weak slots and the root's own
// OwnerIndex are not checked.
// Sampled at a configurable chance per cycle (spec.md §6's
// VerifyAssumptionsChance), mirroring original_source's GShouldVerifyGC
// sampling knob (see SPEC_FULL.md's SUPPLEMENTED FEATURES section) rather than
// running unconditionally, since a full walk of the object table is not
// free.
func VerifyAssumptions(table ObjectTable, clusters *ClusterTable, chance float64) {
	if chance <= 0 {
		return
	}
	if chance < 1 && rand.Float64() >= chance {
		return
	}

	clusters.ForEach(func(idx ClusterIndex, c *Cluster) {
		rootEntry := table.IndexToItem(c.Root)
		if rootEntry == nil {
			abort("gc: cluster %d's root index %d has no live table entry", idx, c.Root)
		}
		if !rootEntry.Flags.Has(FlagClusterRoot) {
			abort("gc: cluster %d's root entry %d is missing FlagClusterRoot", idx, c.Root)
		}
		for _, memberIdx := range c.Members {
			memberEntry := table.IndexToItem(memberIdx)
			if memberEntry == nil {
				continue // already freed; not a violation on its own
			}
			if memberEntry.OwnerIndex <= 0 && memberIdx != c.Root {
				abort("gc: cluster %d member %d has non-positive OwnerIndex %d", idx, memberIdx, memberEntry.OwnerIndex)
			}
		}
	})
}
