// Package tilecache provides a content-addressed, bounded LRU cache for
// per-tile detection results. Identical tile pixels hash to the same
// fingerprint, so repeated symbols, repeated pages, and repeated runs all
// hit the cache regardless of tile position.
package tilecache

import (
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"

	"github.com/planscan-tech/planscan/internal/detector"
)

// DefaultMaxSize bounds the cache when no size is configured.
const DefaultMaxSize = 1000

// Stats reports cache effectiveness since the last Clear.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Size    int     `json:"size"`
}

// Cache maps tile fingerprints to detection results with LRU eviction.
// All operations are safe for concurrent use; the unit of atomicity is a
// single Get or Set call.
type Cache struct {
	mu     sync.Mutex
	lru    *simplelru.LRU
	hits   uint64
	misses uint64
}

// New creates a cache bounded to maxSize entries.
func New(maxSize int) (*Cache, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxSize)
	}
	lru, err := simplelru.NewLRU(maxSize, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU backing: %w", err)
	}
	return &Cache{lru: lru}, nil
}

// Get returns the cached detections for a fingerprint. A hit marks the
// entry most-recently-used. The returned slice is an independent copy;
// callers may mutate it (e.g. coordinate remapping) without corrupting
// the cached value.
func (c *Cache) Get(fingerprint string) ([]detector.Detection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(fingerprint)
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return copyDetections(v.([]detector.Detection)), true
}

// Set stores detections for a fingerprint, marking it most-recently-used
// and evicting from the least-recently-used end if the cache is over
// capacity. The stored entry is a copy, detached from the caller's slice.
func (c *Cache) Set(fingerprint string, dets []detector.Detection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(fingerprint, copyDetections(dets))
}

// Clear removes all entries and resets the hit/miss counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.hits = 0
	c.misses = 0
}

// Stats returns current cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Hits: c.hits, Misses: c.misses, Size: c.lru.Len()}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func copyDetections(dets []detector.Detection) []detector.Detection {
	out := make([]detector.Detection, len(dets))
	copy(out, dets)
	return out
}
