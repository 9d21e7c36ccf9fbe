package cache

import (
	"context"

	"github.com/kean-go/imagepipeline/internal/common"
)

// Policy captures the per-request option bits the Coordinator must
// honor (spec §4.3: "Enforces per-request option bits"). The root
// package translates its Options bitset into a Policy so this package
// never depends on it.
type Policy struct {
	MemoryReadsEnabled  bool
	MemoryWritesEnabled bool
	DiskReadsEnabled    bool
	DiskWritesEnabled   bool
}

// Coordinator is the cache-layer half of the Pipeline Orchestrator
// (spec §4.3): it knows how to read and write the memory and disk
// tiers subject to a request's Policy, but not how to derive a
// request's keys (callers pass already-derived keys) or how to decide
// which stage of the orchestrator's state machine to run next.
type Coordinator struct {
	memory *MemoryCache // nil disables the memory tier
	disk   *DiskCache   // nil disables the disk tier

	// writeLimiter bounds how many disk-tier writes may be in flight at
	// once, independent of how many Work Queues happen to call
	// StoreCachedData concurrently; nil means unbounded.
	writeLimiter common.SendLimiter
}

// NewCoordinator builds a Coordinator over the given tiers. When
// maxConcurrentDiskWrites is positive, concurrent StoreCachedData calls
// are gated by a send-slot semaphore so a burst of simultaneous
// write-backs (e.g. the data-load and encode stages finishing at once)
// can't flood the disk with unbounded parallel syscalls; zero leaves
// disk writes unbounded.
func NewCoordinator(memory *MemoryCache, disk *DiskCache, maxConcurrentDiskWrites int64) *Coordinator {
	c := &Coordinator{memory: memory, disk: disk}
	if maxConcurrentDiskWrites > 0 {
		c.writeLimiter = common.NewSendLimiter(maxConcurrentDiskWrites)
	}
	return c
}

func (c *Coordinator) HasMemoryTier() bool { return c.memory != nil }
func (c *Coordinator) HasDiskTier() bool   { return c.disk != nil }

// CachedImage looks up key in the memory tier only (the disk tier
// stores bytes, not decoded images; the orchestrator decodes disk hits
// itself and then calls StoreCachedImage to back-fill memory).
func (c *Coordinator) CachedImage(key string, policy Policy) (Entry, bool) {
	if c.memory == nil || !policy.MemoryReadsEnabled {
		return Entry{}, false
	}
	return c.memory.Get(key)
}

// StoreCachedImage writes an already-decoded image into the memory
// tier, subject to policy and to the tier's own preview-storage
// setting (spec §4.3).
func (c *Coordinator) StoreCachedImage(key string, entry Entry, policy Policy) {
	if c.memory == nil || !policy.MemoryWritesEnabled {
		return
	}
	c.memory.Set(key, entry)
}

func (c *Coordinator) ContainsCachedImage(key string, policy Policy) bool {
	if c.memory == nil || !policy.MemoryReadsEnabled {
		return false
	}
	return c.memory.Contains(key)
}

// CachedData looks up key in the disk tier.
func (c *Coordinator) CachedData(key string, policy Policy) ([]byte, bool) {
	if c.disk == nil || !policy.DiskReadsEnabled {
		return nil, false
	}
	return c.disk.Get(key)
}

// StoreCachedData writes bytes to the disk tier, subject to policy.
// The caller (orchestrator) is responsible for never calling this for
// local-file/data: URL requests or thumbnail-keyed entries
// (spec §4.5.1, §4.5.6 — the disk tier is never the place those rules
// are enforced).
func (c *Coordinator) StoreCachedData(key string, data []byte, policy Policy) error {
	if c.disk == nil || !policy.DiskWritesEnabled {
		return nil
	}
	if c.writeLimiter != nil {
		if err := c.writeLimiter.AcquireSendSlot(context.Background()); err != nil {
			return err
		}
		defer c.writeLimiter.ReleaseSendSlot()
	}
	return c.disk.Set(key, data)
}

func (c *Coordinator) ContainsCachedData(key string, policy Policy) bool {
	if c.disk == nil || !policy.DiskReadsEnabled {
		return false
	}
	return c.disk.Contains(key)
}

// RemoveCachedImage removes key from both tiers unconditionally
// (invalidation ignores read/write policy bits).
func (c *Coordinator) RemoveCachedImage(key string) {
	if c.memory != nil {
		c.memory.Remove(key)
	}
	if c.disk != nil {
		c.disk.Remove(key)
	}
}

// RemoveAll clears both tiers.
func (c *Coordinator) RemoveAll() {
	if c.memory != nil {
		c.memory.RemoveAll()
	}
	if c.disk != nil {
		c.disk.RemoveAll()
	}
}
