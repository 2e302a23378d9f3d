package cache

import (
	"container/list"
	"fmt"
	"sync"
)

// Stats holds the hit/miss counters for one cache layer.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// TieredCache is a bounded hierarchy of LRU layers ordered
// fastest/smallest (layer 0) to slowest/largest (layer N-1). It is a
// read-through, write-everywhere cache: it never originates a write to
// a backend; callers write the source of truth separately.
type TieredCache struct {
	mu     sync.Mutex
	layers []*lruLayer
}

type lruLayer struct {
	capacity int
	items    map[string]*list.Element
	lru      *list.List
	hits     uint64
	misses   uint64
}

type entry struct {
	key   string
	value any
}

// NewTieredCache creates a cache with one LRU layer per size, smallest
// first. Every size must be positive.
func NewTieredCache(sizes ...int) (*TieredCache, error) {
	if len(sizes) == 0 {
		sizes = []int{128}
	}
	layers := make([]*lruLayer, len(sizes))
	for i, size := range sizes {
		if size <= 0 {
			return nil, fmt.Errorf("cache layer %d has non-positive size %d", i, size)
		}
		layers[i] = newLRULayer(size)
	}
	return &TieredCache{layers: layers}, nil
}

func newLRULayer(capacity int) *lruLayer {
	return &lruLayer{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		lru:      list.New(),
	}
}

// Get scans layers in order. On a hit at layer i the value is promoted
// into every faster layer and returned; every layer scanned before the
// hit counts a miss.
func (c *TieredCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, layer := range c.layers {
		if value, ok := layer.get(key); ok {
			layer.hits++
			for j := 0; j < i; j++ {
				c.layers[j].set(key, value)
			}
			return value, true
		}
		layer.misses++
	}
	return nil, false
}

// Set writes the value into every layer so a subsequent Get is
// satisfied at layer 0 regardless of where earlier copies lived.
func (c *TieredCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, layer := range c.layers {
		layer.set(key, value)
	}
}

// Clear empties all layers and zeroes all counters.
func (c *TieredCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, layer := range c.layers {
		c.layers[i] = newLRULayer(layer.capacity)
	}
}

// Stats returns a snapshot of per-layer counters, fastest layer first.
func (c *TieredCache) Stats() []Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := make([]Stats, len(c.layers))
	for i, layer := range c.layers {
		stats[i] = Stats{Hits: layer.hits, Misses: layer.misses}
	}
	return stats
}

// Layers returns the number of configured layers.
func (c *TieredCache) Layers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.layers)
}

func (l *lruLayer) get(key string) (any, bool) {
	elem, ok := l.items[key]
	if !ok {
		return nil, false
	}
	l.lru.MoveToFront(elem)
	return elem.Value.(*entry).value, true
}

func (l *lruLayer) set(key string, value any) {
	if elem, ok := l.items[key]; ok {
		l.lru.MoveToFront(elem)
		elem.Value.(*entry).value = value
		return
	}
	elem := l.lru.PushFront(&entry{key: key, value: value})
	l.items[key] = elem

	// Evict the least-recently-used key in this layer only.
	if l.lru.Len() > l.capacity {
		oldest := l.lru.Back()
		if oldest != nil {
			l.lru.Remove(oldest)
			delete(l.items, oldest.Value.(*entry).key)
		}
	}
}
