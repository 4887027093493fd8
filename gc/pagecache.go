package gc

import (
	"sync"
	"sync/atomic"

	"github.com/pbnjay/memory"
)

// pageSize is the fixed scratch-page size spec.md §4.1 requires: 4KiB,
// matching the host's typical allocation granularity.
const pageSize = 4096

// page is one scratch page, allocated once and reused across cycles.
type page struct {
	bytes [pageSize]byte
}

// PageCache hands out 4KiB scratch pages, backed by a per-worker pool
// with a shared free list behind a mutex, matching spec.md §4.1's
// "per-worker plus shared pool" shape. Nothing else in this package
// allocates through it: the work queues' overflow blocks and the ARO
// queue's blocks are allocated directly.
//
// Grounded on other_examples/*mheap.go and *mcache.go's per-P free list +
// shared mheap pattern: cheap path never takes a lock, only the shared
// pool does.
type PageCache struct {
	mu    sync.Mutex
	free  []*page
	local []*sync.Pool // one sync.Pool per worker, indexed by worker index

	// budget is an advisory cap derived from host memory
	// (github.com/pbnjay/memory), used only to report pressure through
	// Budget(); it does not size the shared pool, and the cache never
	// refuses an allocation because of it — spec.md has no "GC of the
	// GC's own scratch memory" concept, so this is advisory only.
	budget atomic.Uint64
}

// NewPageCache creates a cache sized for numWorkers local pools. budgetFrac
// is the fraction of total host memory (from github.com/pbnjay/memory)
// advisable for scratch pages; 0 disables the advisory budget.
func NewPageCache(numWorkers int, budgetFrac float64) *PageCache {
	c := &PageCache{local: make([]*sync.Pool, numWorkers)}
	for i := range c.local {
		c.local[i] = &sync.Pool{New: func() any { return &page{} }}
	}
	if budgetFrac > 0 {
		total := memory.TotalMemory()
		c.budget.Store(uint64(float64(total) * budgetFrac))
	}
	return c
}

// Get returns a page for workerIndex's exclusive use until returned via
// Put. For a valid workerIndex the page comes from that worker's local
// pool, which allocates a fresh page when it is empty; the shared free
// list is used only for an out-of-range workerIndex.
func (c *PageCache) Get(workerIndex int) *page {
	if workerIndex >= 0 && workerIndex < len(c.local) {
		if p, ok := c.local[workerIndex].Get().(*page); ok {
			return p
		}
	}
	c.mu.Lock()
	if n := len(c.free); n > 0 {
		p := c.free[n-1]
		c.free = c.free[:n-1]
		c.mu.Unlock()
		return p
	}
	c.mu.Unlock()
	return &page{}
}

// Put returns p to workerIndex's local pool.
func (c *PageCache) Put(workerIndex int, p *page) {
	if workerIndex >= 0 && workerIndex < len(c.local) {
		c.local[workerIndex].Put(p)
		return
	}
	c.mu.Lock()
	c.free = append(c.free, p)
	c.mu.Unlock()
}

// Budget reports the advisory scratch-memory ceiling in bytes, or 0 if
// none was configured.
func (c *PageCache) Budget() uint64 {
	return c.budget.Load()
}
