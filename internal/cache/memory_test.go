package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGetRoundTrip(t *testing.T) {
	c := NewMemoryCache(Config{MaxCost: 1000, MaxCount: 10})
	c.Set("a", Entry{Value: "image-a", Cost: 10})

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "image-a", got.Value)
}

func TestMemoryCache_DiscardsPreviewsWhenDisabled(t *testing.T) {
	c := NewMemoryCache(Config{MaxCost: 1000, MaxCount: 10, StorePreviews: false})
	c.Set("preview", Entry{Value: "p", Cost: 1, IsPreview: true})

	_, ok := c.Get("preview")
	assert.False(t, ok)
}

func TestMemoryCache_StoresPreviewsWhenEnabled(t *testing.T) {
	c := NewMemoryCache(Config{MaxCost: 1000, MaxCount: 10, StorePreviews: true})
	c.Set("preview", Entry{Value: "p", Cost: 1, IsPreview: true})

	got, ok := c.Get("preview")
	require.True(t, ok)
	assert.Equal(t, "p", got.Value)
}

func TestMemoryCache_EvictsByCostBudget(t *testing.T) {
	c := NewMemoryCache(Config{MaxCost: 10, MaxCount: 100})
	c.Set("a", Entry{Value: "a", Cost: 6})
	c.Set("b", Entry{Value: "b", Cost: 6}) // forces eviction of "a" to stay <= 10

	_, aOK := c.Get("a")
	bGot, bOK := c.Get("b")
	assert.False(t, aOK)
	require.True(t, bOK)
	assert.Equal(t, "b", bGot.Value)
}

func TestMemoryCache_ExpiresByTTL(t *testing.T) {
	c := NewMemoryCache(Config{MaxCost: 1000, MaxCount: 10, TTL: time.Millisecond})
	frozen := time.Now()
	timeNow = func() time.Time { return frozen }
	defer func() { timeNow = time.Now }()

	c.Set("a", Entry{Value: "a", Cost: 1})
	timeNow = func() time.Time { return frozen.Add(time.Second) }

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestMemoryCache_RemoveAndRemoveAll(t *testing.T) {
	c := NewMemoryCache(Config{MaxCost: 1000, MaxCount: 10})
	c.Set("a", Entry{Value: "a", Cost: 1})
	c.Set("b", Entry{Value: "b", Cost: 1})

	c.Remove("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.RemoveAll()
	_, ok = c.Get("b")
	assert.False(t, ok)
}
