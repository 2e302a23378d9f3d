package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestTieredCachePromotion(t *testing.T) {
	c, err := NewTieredCache(2, 4)
	if err != nil {
		t.Fatalf("NewTieredCache: %v", err)
	}

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v.(int) != 1 {
		t.Fatalf("expected hit for a, got %v %v", v, ok)
	}
	stats := c.Stats()
	if stats[0].Hits != 1 || stats[0].Misses != 0 {
		t.Fatalf("layer 0 stats after direct hit: %+v", stats[0])
	}

	// Evict "a" from layer 0 only: capacity 2, so two fresh keys push
	// it out while layer 1 (capacity 4) keeps it.
	c.Set("b", 2)
	c.Set("c", 3)

	v, ok := c.Get("a")
	if !ok || v.(int) != 1 {
		t.Fatalf("expected layer 1 hit for a, got %v %v", v, ok)
	}
	stats = c.Stats()
	if stats[0].Misses != 1 {
		t.Fatalf("layer 0 misses = %d, want 1", stats[0].Misses)
	}
	if stats[1].Hits != 1 {
		t.Fatalf("layer 1 hits = %d, want 1", stats[1].Hits)
	}

	// The hit promoted "a" back into layer 0.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be present after promotion")
	}
	stats = c.Stats()
	if stats[0].Hits != 2 {
		t.Fatalf("layer 0 hits after promotion = %d, want 2", stats[0].Hits)
	}
}

func TestTieredCacheMissCountsEveryLayer(t *testing.T) {
	c, err := NewTieredCache(2, 2)
	if err != nil {
		t.Fatalf("NewTieredCache: %v", err)
	}
	if _, ok := c.Get("absent"); ok {
		t.Fatal("unexpected hit")
	}
	for i, s := range c.Stats() {
		if s.Misses != 1 || s.Hits != 0 {
			t.Fatalf("layer %d stats = %+v, want 1 miss", i, s)
		}
	}
}

func TestTieredCacheEviction(t *testing.T) {
	c, err := NewTieredCache(2)
	if err != nil {
		t.Fatalf("NewTieredCache: %v", err)
	}
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3) // evicts "a", the least recently used
	if _, ok := c.Get("a"); ok {
		t.Fatal("a should have been evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("b should still be cached")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("c should still be cached")
	}
}

func TestTieredCacheClear(t *testing.T) {
	c, err := NewTieredCache(2, 4)
	if err != nil {
		t.Fatalf("NewTieredCache: %v", err)
	}
	c.Set("a", 1)
	c.Get("a")
	c.Get("missing")
	c.Clear()

	for i, s := range c.Stats() {
		if s.Hits != 0 || s.Misses != 0 {
			t.Fatalf("layer %d counters not zeroed: %+v", i, s)
		}
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("a should be gone after Clear")
	}
}

func TestTieredCacheRejectsBadSizes(t *testing.T) {
	if _, err := NewTieredCache(4, 0); err == nil {
		t.Fatal("expected error for zero layer size")
	}
	if _, err := NewTieredCache(-1); err == nil {
		t.Fatal("expected error for negative layer size")
	}
}

func TestTieredCacheConcurrentAccess(t *testing.T) {
	c, err := NewTieredCache(8, 32)
	if err != nil {
		t.Fatalf("NewTieredCache: %v", err)
	}

	const goroutines = 8
	const iterations = 200
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				key := fmt.Sprintf("k%d", i%16)
				switch {
				case i%5 == 0:
					c.Set(key, g*iterations+i)
				case g == 0 && i%67 == 1:
					c.Clear()
				default:
					c.Get(key)
				}
			}
		}(g)
	}
	wg.Wait()

	c.Clear()
	for i, s := range c.Stats() {
		if s.Hits != 0 || s.Misses != 0 {
			t.Fatalf("layer %d counters not zeroed after Clear: %+v", i, s)
		}
	}
}

func TestTieredCacheDefaultLayer(t *testing.T) {
	c, err := NewTieredCache()
	if err != nil {
		t.Fatalf("NewTieredCache: %v", err)
	}
	if c.Layers() != 1 {
		t.Fatalf("Layers() = %d, want 1", c.Layers())
	}
}
