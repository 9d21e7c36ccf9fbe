// Package cache implements the pipeline's memory and disk blob-store
// abstractions plus the coordinator that derives cache keys and
// enforces read/write policy (spec.md §4.3).
package cache

import (
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

// Entry is what the memory cache stores: an opaque payload plus the
// cost (approximated bytes of decoded pixels) the caller is charging
// against the cache's budget.
type Entry struct {
	Value     any
	Cost      int64
	IsPreview bool
}

type memoryEntry struct {
	value     any
	cost      int64
	isPreview bool
	expiresAt time.Time
}

// MemoryCache is a cost- and count-bounded, TTL-expiring blob store.
// Eviction order is LRU, delegated to groupcache's lru.Cache (which
// natively bounds by count only); this wrapper adds the cost budget
// and per-entry expiry the spec requires on top of it.
type MemoryCache struct {
	mu  sync.Mutex
	lru *lru.Cache

	maxCost          int64
	currentCost      int64
	ttl              time.Duration
	storePreviews    bool
}

// Config controls a MemoryCache's bounds.
type Config struct {
	MaxCost int64
	// MaxCount is passed straight through to lru.Cache.MaxEntries; 0
	// means unbounded by count (cost is then the only bound).
	MaxCount int
	TTL      time.Duration
	// StorePreviews, when false, silently discards any Set call whose
	// Entry.IsPreview is true (spec §4.3: "isStoringPreviewsInMemoryCache").
	StorePreviews bool
}

func NewMemoryCache(cfg Config) *MemoryCache {
	c := &MemoryCache{
		lru:           lru.New(cfg.MaxCount),
		maxCost:       cfg.MaxCost,
		ttl:           cfg.TTL,
		storePreviews: cfg.StorePreviews,
	}
	c.lru.OnEvicted = func(key lru.Key, value any) {
		if me, ok := value.(*memoryEntry); ok {
			c.currentCost -= me.cost
		}
	}
	return c
}

// Get returns the entry for key if present and not expired. An
// expired entry is evicted on access rather than by a background sweep.
func (c *MemoryCache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok := c.lru.Get(key)
	if !ok {
		return Entry{}, false
	}
	me := raw.(*memoryEntry)
	if !me.expiresAt.IsZero() && timeNow().After(me.expiresAt) {
		c.lru.Remove(key)
		return Entry{}, false
	}
	return Entry{Value: me.value, Cost: me.cost, IsPreview: me.isPreview}, true
}

// Set inserts or replaces key's entry, evicting by cost (oldest first)
// until the new entry fits within MaxCost. A preview entry is silently
// dropped when StorePreviews is false (spec §4.3).
func (c *MemoryCache) Set(key string, entry Entry) {
	if entry.IsPreview && !c.storePreviews {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lru.Get(key); ok {
		c.lru.Remove(key)
	}

	expiresAt := time.Time{}
	if c.ttl > 0 {
		expiresAt = timeNow().Add(c.ttl)
	}
	me := &memoryEntry{value: entry.Value, cost: entry.Cost, isPreview: entry.IsPreview, expiresAt: expiresAt}

	for c.maxCost > 0 && c.currentCost+entry.Cost > c.maxCost && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}

	c.lru.Add(key, me)
	c.currentCost += entry.Cost
}

// Remove deletes key's entry, if any.
func (c *MemoryCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Contains reports presence. It goes through Get, so a hit refreshes
// the entry's LRU position and an expired entry is evicted.
func (c *MemoryCache) Contains(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// RemoveAll clears every entry.
func (c *MemoryCache) RemoveAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru = lru.New(c.lru.MaxEntries)
	c.lru.OnEvicted = func(key lru.Key, value any) {
		if me, ok := value.(*memoryEntry); ok {
			c.currentCost -= me.cost
		}
	}
	c.currentCost = 0
}

// timeNow is a var so tests can freeze time; production code never
// calls time.Now() directly in this package.
var timeNow = time.Now
