package cache

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinatorWithDisk(t *testing.T, maxConcurrentDiskWrites int64) (*Coordinator, *DiskCache) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	disk, err := OpenDiskCache(ctx, t.TempDir(), 0, nil)
	require.NoError(t, err)
	mem := NewMemoryCache(Config{MaxCost: 1 << 20, MaxCount: 100, StorePreviews: true})
	return NewCoordinator(mem, disk, maxConcurrentDiskWrites), disk
}

var fullPolicy = Policy{MemoryReadsEnabled: true, MemoryWritesEnabled: true, DiskReadsEnabled: true, DiskWritesEnabled: true}

func TestCoordinator_StoreCachedData_RoundTripsThroughDiskTier(t *testing.T) {
	c, _ := newTestCoordinatorWithDisk(t, 0)

	require.NoError(t, c.StoreCachedData("k1", []byte("bytes"), fullPolicy))
	data, ok := c.CachedData("k1", fullPolicy)
	require.True(t, ok)
	assert.Equal(t, []byte("bytes"), data)
}

func TestCoordinator_StoreCachedData_NoopWhenDiskWritesDisabled(t *testing.T) {
	c, _ := newTestCoordinatorWithDisk(t, 0)

	require.NoError(t, c.StoreCachedData("k1", []byte("bytes"), Policy{DiskWritesEnabled: false}))
	_, ok := c.CachedData("k1", fullPolicy)
	assert.False(t, ok)
}

func TestCoordinator_WriteLimiter_BoundsConcurrentDiskWrites(t *testing.T) {
	c, _ := newTestCoordinatorWithDisk(t, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n))
			assert.NoError(t, c.StoreCachedData(key, []byte("v"), fullPolicy))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		key := string(rune('a' + i))
		_, ok := c.CachedData(key, fullPolicy)
		assert.True(t, ok)
	}
}
