package gc

import "sync/atomic"

// workQueueCapacity is the bounded local ring's slot count (spec.md §4.2:
// "a bounded SPMC lock-free circular buffer"). Half of a full ring is
// stolen at a time, so this must be even.
const workQueueCapacity = 256

// overflowBlockCapacity sizes each block of the unbounded owner-local
// overflow chain.
const overflowBlockCapacity = pageSize / 8

// overflowBlock is one link of the owner-only overflow stack; never
// touched by a stealer.
type overflowBlock struct {
	items [overflowBlockCapacity]ObjectIndex
	n     int
	next  *overflowBlock
}

// WorkQueue is one worker's unit of tracing work: gray object indices
// awaiting a visit. The bounded ring is the only part stealers ever touch,
// using the classic SPMC head/tail protocol (owner pushes/pops at tail,
// stealers take from head); the overflow chain backstops the ring when the
// owner produces faster than it can drain, and is never visible to
// stealers — a stolen-from queue simply looks emptier than it really is,
// matching spec.md §4.2's accepted trade-off that overflow is not steal
// target.
//
// Grounded directly on other_examples/Voryla-golang-followme__mgcwork.go's
// gcWork: that type's wbuf1/wbuf2 hysteresis pair is replaced here by a
// single fixed ring (so stealing can use plain index arithmetic instead of
// a buffer handoff), and its global lock-free stack of full/empty workbufs
// becomes the owner-local overflow chain, since spec.md §4.2 keeps
// overflow unshared rather than globally pooled.
type WorkQueue struct {
	ring [workQueueCapacity]atomic.Uint32 // stores ObjectIndex+1; 0 means empty slot
	head atomic.Uint32                    // next slot a stealer takes
	tail atomic.Uint32                    // next slot the owner fills

	overflow *overflowBlock // owner-only; nil when empty
}

// NewWorkQueue creates an empty queue.
func NewWorkQueue() *WorkQueue {
	return &WorkQueue{}
}

// PushLocal enqueues idx, called only by the owning worker. Falls back to
// the overflow chain when the ring is full.
func (q *WorkQueue) PushLocal(idx ObjectIndex) {
	for {
		h := q.head.Load()
		t := q.tail.Load()
		if t-h < workQueueCapacity {
			q.ring[t%workQueueCapacity].Store(uint32(idx) + 1)
			q.tail.Store(t + 1)
			return
		}
		break
	}
	q.pushOverflow(idx)
}

func (q *WorkQueue) pushOverflow(idx ObjectIndex) {
	b := q.overflow
	if b == nil || b.n == overflowBlockCapacity {
		nb := &overflowBlock{next: b}
		q.overflow = nb
		b = nb
	}
	b.items[b.n] = idx
	b.n++
}

// PopLocal dequeues the most recently pushed item, called only by the
// owning worker. Checks overflow first (LIFO, so locality is preserved for
// items that just spilled), then the ring.
func (q *WorkQueue) PopLocal() (ObjectIndex, bool) {
	if b := q.overflow; b != nil {
		b.n--
		idx := b.items[b.n]
		if b.n == 0 {
			q.overflow = b.next
		}
		return idx, true
	}
	for {
		t := q.tail.Load()
		if t == q.head.Load() {
			return 0, false
		}
		nt := t - 1
		// Publish the shrunk tail before reading head, so a stealer that
		// reads tail afterwards can no longer reach slot nt.
		q.tail.Store(nt)
		h := q.head.Load()
		if int32(nt-h) < 0 {
			// Stealers emptied the ring meanwhile.
			q.tail.Store(h)
			return 0, false
		}
		v := q.ring[nt%workQueueCapacity].Load()
		if nt == h {
			// Last element: a concurrent Steal may be racing for it.
			// Claim it the same way a stealer would, via CAS on head,
			// and leave head == tail whichever side wins.
			won := q.head.CompareAndSwap(h, h+1)
			q.tail.Store(h + 1)
			if !won {
				return 0, false
			}
		}
		if v == 0 {
			continue
		}
		return ObjectIndex(v - 1), true
	}
}

// Steal removes up to half of the ring's current contents and returns
// them, called by any worker other than the owner. Never touches the
// owner's overflow chain.
func (q *WorkQueue) Steal() []ObjectIndex {
	for {
		h := q.head.Load()
		t := q.tail.Load()
		n := t - h
		if int32(n) <= 0 {
			// Empty, or the owner is mid-way through claiming the last item.
			return nil
		}
		take := n / 2
		if take == 0 {
			take = 1
		}
		out := make([]ObjectIndex, 0, take)
		for i := uint32(0); i < take; i++ {
			v := q.ring[(h+i)%workQueueCapacity].Load()
			if v == 0 {
				continue
			}
			out = append(out, ObjectIndex(v-1))
		}
		if q.head.CompareAndSwap(h, h+take) {
			return out
		}
	}
}

// Empty reports whether the queue (ring and overflow both) currently has
// no work. Racy with concurrent pushes by design — callers use it only as
// a heuristic to decide whether to look for steal victims.
func (q *WorkQueue) Empty() bool {
	return q.overflow == nil && q.head.Load() == q.tail.Load()
}
