package gc

// ClusterIndex addresses one entry of the cluster table.
type ClusterIndex = ObjectIndex

// Cluster is a set of object indices sharing reachability fate (spec.md
// §3). Its Flags word carries FlagClusterRoot/FlagGarbage/FlagUnreachable
// exactly like an ObjectTableEntry, so the CAS idiom in gc/flags.go
// applies identically to clusters and objects.
type Cluster struct {
	Flags FlagWord

	Root    ObjectIndex
	Members []ObjectIndex

	// ReferencedClusters and ReferencedMutables are the cluster's
	// outgoing edges to other clusters' roots and to non-clustered
	// objects, walked during mark's cluster-propagation pass and during
	// reachability's cluster fast path (spec.md §4.4 step 4).
	ReferencedClusters []ClusterIndex
	ReferencedMutables []ObjectIndex

	// NeedsDissolving is set when a referenced entry turns out to be
	// garbage-flagged (spec.md §4.4 step 4) and when mark dissolves the
	// cluster. Nothing in this package reads it; setting it does not by
	// itself dissolve the cluster.
	NeedsDissolving bool
}

// ClusterTable is the consumed-equivalent collection of clusters, indexed
// by ClusterIndex. Unlike ObjectTable it is not a spec.md §6 consumed
// interface — clusters are core-owned state — so this is the only
// implementation.
//
// Grounded on chazu-maggie/vm/registry_gc.go's sweep-and-reclaim shape,
// generalized from "periodic pass over one flat registry" to "indexed
// table of cluster records with atomic per-record flags."
type ClusterTable struct {
	lock     RWLock
	clusters []*Cluster
}

// NewClusterTable creates an empty table.
func NewClusterTable() *ClusterTable {
	return &ClusterTable{}
}

// Add registers a new cluster rooted at root, returning its index.
func (t *ClusterTable) Add(root ObjectIndex, members []ObjectIndex) ClusterIndex {
	t.lock.Lock()
	defer t.lock.Unlock()
	c := &Cluster{Root: root, Members: members}
	c.Flags.Flip(FlagClusterRoot, set)
	idx := ClusterIndex(len(t.clusters))
	t.clusters = append(t.clusters, c)
	return idx
}

// Get returns the cluster at idx, or nil if out of range.
func (t *ClusterTable) Get(idx ClusterIndex) *Cluster {
	t.lock.RLock()
	defer t.lock.RUnlock()
	if int(idx) >= len(t.clusters) {
		return nil
	}
	return t.clusters[idx]
}

// Num returns the number of registered clusters.
func (t *ClusterTable) Num() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return len(t.clusters)
}

// ForEach calls fn for every registered cluster. fn must not add clusters.
func (t *ClusterTable) ForEach(fn func(idx ClusterIndex, c *Cluster)) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	for i, c := range t.clusters {
		fn(ClusterIndex(i), c)
	}
}

// PropagateFromRoot walks c's referenced-clusters graph, clearing
// Unreachable on every live referenced root and recursing into clusters
// reached for the first time. Used by mark's single-threaded
// cluster-propagation pass (spec.md §4.5: "single-threaded recursion is
// acceptable here since the set is small") and by the reachability
// processor's cluster fast path (spec.md §4.4 step 4).
func (t *ClusterTable) PropagateFromRoot(table ObjectTable, idx ClusterIndex, visited map[ClusterIndex]bool) {
	if visited[idx] {
		return
	}
	visited[idx] = true
	c := t.Get(idx)
	if c == nil {
		return
	}
	for _, refIdx := range c.ReferencedClusters {
		refCluster := t.Get(refIdx)
		if refCluster == nil {
			continue
		}
		rootEntry := table.IndexToItem(refCluster.Root)
		if rootEntry == nil {
			continue
		}
		if rootEntry.Flags.ClearUnreachableIfSet() {
			refCluster.Flags.Flip(FlagUnreachable, clear)
		}
		t.PropagateFromRoot(table, refIdx, visited)
	}
}
