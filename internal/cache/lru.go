// Package cache implements the bounded in-memory hot-vector cache.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/embedcache/internal/resource"
)

// VectorCache is an LRU cache of decoded vectors, keyed by key hash.
//
// It is never the system of record: any entry may be dropped and
// reconstructed from the record log. Entries are bounded by a fixed
// capacity (entry count) and, optionally, by the byte budget of a
// resource.Controller.
//
// Returned vectors are shared with the cache; callers must copy before
// handing them across an ownership boundary.
type VectorCache struct {
	mu        sync.Mutex
	capacity  int
	items     map[uint64]*list.Element
	evictList *list.List
	rc        *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	hash   uint64
	key    string
	vector []float32
}

// New creates a VectorCache with the given entry capacity.
// If rc is non-nil, vector bytes are charged against its memory budget.
func New(capacity int, rc *resource.Controller) *VectorCache {
	return &VectorCache{
		capacity:  capacity,
		items:     make(map[uint64]*list.Element),
		evictList: list.New(),
		rc:        rc,
	}
}

func vectorBytes(v []float32) int64 {
	return int64(len(v)) * 4
}

// Get returns the cached vector for hash, verifying that the stored key
// matches (hash collisions must not surface a different key's vector).
// A hit moves the entry to the front of the recency list.
func (c *VectorCache) Get(hash uint64, key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[hash]; ok {
		e := ent.Value.(*entry)
		if e.key != key {
			c.misses.Add(1)
			return nil, false
		}
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return e.vector, true
	}
	c.misses.Add(1)
	return nil, false
}

// Put inserts or refreshes the entry for hash as the most recently used.
// When at capacity the least-recently-used entry is evicted first; entries
// inserted earlier lose recency ties by list order.
func (c *VectorCache) Put(hash uint64, key string, vector []float32) {
	if c.capacity <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[hash]; ok {
		e := ent.Value.(*entry)
		delta := vectorBytes(vector) - vectorBytes(e.vector)
		if delta > 0 && !c.rc.TryAcquireMemory(delta) {
			// Budget denied the growth; drop the stale entry instead.
			c.removeElement(ent)
			return
		}
		if delta < 0 {
			c.rc.ReleaseMemory(-delta)
		}
		e.key = key
		e.vector = vector
		c.evictList.MoveToFront(ent)
		return
	}

	// Evict before acquiring so released bytes are available again.
	for c.evictList.Len() >= c.capacity {
		c.evictOldest()
	}

	if !c.rc.TryAcquireMemory(vectorBytes(vector)) {
		return
	}

	ent := c.evictList.PushFront(&entry{hash: hash, key: key, vector: vector})
	c.items[hash] = ent
}

// Len returns the current number of cached entries.
func (c *VectorCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Capacity returns the configured entry bound.
func (c *VectorCache) Capacity() int {
	return c.capacity
}

// Stats returns the hit and miss counters.
func (c *VectorCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Purge drops all entries.
func (c *VectorCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.evictList.Len() > 0 {
		c.evictOldest()
	}
}

func (c *VectorCache) evictOldest() {
	if ent := c.evictList.Back(); ent != nil {
		c.removeElement(ent)
	}
}

func (c *VectorCache) removeElement(ent *list.Element) {
	c.evictList.Remove(ent)
	e := ent.Value.(*entry)
	delete(c.items, e.hash)
	c.rc.ReleaseMemory(vectorBytes(e.vector))
}
