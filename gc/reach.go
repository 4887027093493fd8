package gc

// ReachabilityProcessor implements spec.md §4.4: given a validated
// reference to an object, decide whether to null it (killable + garbage),
// enqueue it for tracing (first time reached), or fold it into its
// cluster's fate. Bound to one worker; never shared.
//
// Grounded on chazu-maggie/vm/weak_reference.go's ProcessGC "collect the
// dead set, then act outside any lock" shape, generalized here to act
// immediately under CAS rather than batching, since spec.md §4.4 requires
// per-reference atomic decisions rather than a batched sweep.
type ReachabilityProcessor struct {
	Table    ObjectTable
	Clusters *ClusterTable
	Worker   *WorkerContext
	AROQueue *AROQueue
	Classes  ClassReflection
	Walker   *SchemaWalker
	Batcher  *Batcher
}

// Trace walks obj's class schema and ARO callbacks, validating the raw
// references it discovers and running Process on each survivor. This is
// what a worker does with an object once popped off its queue; Process
// itself only ever decides the fate of a single already-discovered
// reference (spec.md §4.4's split between "find the targets" and "decide
// a target's fate").
func (p *ReachabilityProcessor) Trace(obj ManagedObject) {
	cls := obj.Class()
	schema := p.Classes.SchemaFor(cls)
	callbacks := p.Classes.SlowAROCallbacks(cls)

	var raw []RawRef
	p.Walker.Walk(obj, schema, func(r RawRef) {
		raw = append(raw, r)
	}, func(callbackIndex int) {
		if callbackIndex < 0 || callbackIndex >= len(callbacks) {
			abort("gc: class %s's schema references ARO callback index %d out of range (%d registered)", cls.Name, callbackIndex, len(callbacks))
		}
		cb := &callbacks[callbackIndex]
		if cb.Tier == AROFast {
			p.ProcessARO(obj, cb)
		} else {
			p.EnqueueARO(obj, cb)
		}
	})
	if len(raw) == 0 {
		return
	}

	out := make([]ValidatedRef, len(raw))
	n := p.Batcher.Validate(raw, out)
	for i := 0; i < n; i++ {
		p.Process(out[i])
	}
}

// Process runs the full decision tree of spec.md §4.4 for one validated
// reference. Returns true if this call is the one that enqueued O (or
// propagated its cluster), false if O had already been claimed by another
// worker or was nulled.
func (p *ReachabilityProcessor) Process(ref ValidatedRef) bool {
	idx := p.Table.ObjectToIndex(ref.Target)
	if idx == invalidIndex {
		return false
	}
	entry := p.Table.IndexToItem(idx)
	if entry == nil {
		return false
	}

	// 1. Killable nulling.
	if ref.Killable && entry.Flags.Has(FlagKillable) {
		ref.Null()
		return false
	}

	// 2. First-time reach: clear Unreachable, act on the winner only.
	if entry.Flags.ClearUnreachableIfSet() {
		if !entry.IsClusterRoot() {
			p.Worker.Queue.PushLocal(idx)
		} else {
			p.markReferencedClusters(entry.ClusterIndex)
			p.Worker.Queue.PushLocal(idx)
		}
		return true
	}

	// 3. Cluster-member first-time reach.
	if entry.IsClusterMember() && entry.Flags.SetIfClear(FlagReachableInCluster) {
		root := p.Table.IndexToItem(ObjectIndex(entry.OwnerIndex))
		if root != nil && root.Flags.ClearUnreachableIfSet() {
			p.markReferencedClusters(entry.ClusterIndex)
		}
		return true
	}

	return false
}

// markReferencedClusters implements spec.md §4.4 step 4: walk
// clusterIdx's referenced-clusters and referenced-mutables sets, clearing
// Unreachable on live targets and enqueuing or propagating as needed.
// Garbage-flagged referenced entries are skipped and the cluster's
// NeedsDissolving is set; the entries stay in the cluster's lists, and
// nothing in this package reads NeedsDissolving to dissolve the cluster.
func (p *ReachabilityProcessor) markReferencedClusters(clusterIdx ClusterIndex) {
	c := p.Clusters.Get(clusterIdx)
	if c == nil {
		return
	}
	for _, refIdx := range c.ReferencedClusters {
		ref := p.Clusters.Get(refIdx)
		if ref == nil {
			continue
		}
		if ref.Flags.Has(FlagGarbage) {
			c.NeedsDissolving = true
			continue
		}
		rootEntry := p.Table.IndexToItem(ref.Root)
		if rootEntry == nil {
			continue
		}
		if rootEntry.Flags.ClearUnreachableIfSet() {
			p.Worker.Queue.PushLocal(ref.Root)
		}
	}
	for _, objIdx := range c.ReferencedMutables {
		entry := p.Table.IndexToItem(objIdx)
		if entry == nil {
			continue
		}
		if entry.Flags.Has(FlagGarbage) {
			c.NeedsDissolving = true
			continue
		}
		if entry.IsClusterMember() {
			if entry.Flags.SetIfClear(FlagReachableInCluster) {
				root := p.Table.IndexToItem(ObjectIndex(entry.OwnerIndex))
				if root != nil && root.Flags.ClearUnreachableIfSet() {
					p.markReferencedClusters(entry.ClusterIndex)
				}
			}
			continue
		}
		if entry.Flags.ClearUnreachableIfSet() {
			p.Worker.Queue.PushLocal(objIdx)
		}
	}
}

// ProcessARO runs one registered ARO callback for obj, reporting its
// targets back through p. Fast-tier callbacks run synchronously here;
// Unbalanced/ExtraSlow are expected to have already been queued by the
// caller (spec.md §4.4: "drained from the calling worker's own ARO
// queue").
func (p *ReachabilityProcessor) ProcessARO(obj ManagedObject, cb *AROCallback) {
	cb.Visit(obj, aroReporter{p})
}

type aroReporter struct{ p *ReachabilityProcessor }

func (r aroReporter) Report(ref ManagedObject) {
	r.p.Process(ValidatedRef{Target: ref})
}

// EnqueueARO routes obj's class's Unbalanced/ExtraSlow callback onto the
// worker's ARO queue, falling back to synchronous dispatch if the queue
// reports resource exhaustion (spec.md §7: "push fails, caller falls
// back to synchronous dispatch"). The reference implementation's queue is
// unbounded and therefore never reports exhaustion, but the fallback path
// is kept so an embedder substituting a bounded queue stays correct.
func (p *ReachabilityProcessor) EnqueueARO(obj ManagedObject, cb *AROCallback) {
	defer func() {
		if recover() != nil {
			p.ProcessARO(obj, cb)
		}
	}()
	p.AROQueue.Push(obj, cb)
}
