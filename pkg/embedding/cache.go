package embedding

import (
	"container/list"
	"sync"

	"github.com/toolgateway/registry/pkg/telemetry"
)

// Cache is a process-local LRU keyed by the exact input string (§4.2). A
// single mutex is sufficient: there is no cross-process coherence promise,
// and swaps are cheap relative to the embedding call they avoid.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
	recorder telemetry.Recorder
}

type cacheEntry struct {
	key   string
	value []float32
}

// NewCache builds an LRU cache bounded by capacity entries.
func NewCache(capacity int, recorder telemetry.Recorder) *Cache {
	if recorder == nil {
		recorder = telemetry.NoOp{}
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		recorder: recorder,
	}
}

// Get returns the cached vector for text, if present, promoting it to
// most-recently-used.
func (c *Cache) Get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[text]
	if !ok {
		c.recorder.Counter("embedding_cache_misses_total", 1)
		return nil, false
	}
	c.order.MoveToFront(el)
	c.recorder.Counter("embedding_cache_hits_total", 1)
	return el.Value.(*cacheEntry).value, true
}

// Put inserts or refreshes the cached vector for text, evicting the least
// recently used entry if over capacity.
func (c *Cache) Put(text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[text]; ok {
		el.Value.(*cacheEntry).value = vec
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&cacheEntry{key: text, value: vec})
	c.items[text] = el

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len reports the number of cached entries, for tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
