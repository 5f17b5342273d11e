package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheServiceSetGet(t *testing.T) {
	cache := NewCacheService(time.Minute, 10)

	cache.Set("key", "value")
	value, found := cache.Get("key")
	require.True(t, found)
	assert.Equal(t, "value", value)

	_, found = cache.Get("missing")
	assert.False(t, found)
}

func TestCacheServiceExpiration(t *testing.T) {
	cache := NewCacheService(time.Minute, 10)

	cache.SetWithTTL("ephemeral", 42, 10*time.Millisecond)
	_, found := cache.Get("ephemeral")
	assert.True(t, found)

	time.Sleep(20 * time.Millisecond)
	_, found = cache.Get("ephemeral")
	assert.False(t, found)
}

func TestCacheServiceEvictsAtMaxSize(t *testing.T) {
	cache := NewCacheService(time.Minute, 2)

	cache.SetWithTTL("oldest", 1, time.Minute)
	cache.SetWithTTL("middle", 2, 2*time.Minute)
	cache.SetWithTTL("newest", 3, 3*time.Minute)

	// FIFO by expiry: the entry closest to expiring is evicted first.
	_, found := cache.Get("oldest")
	assert.False(t, found)
	_, found = cache.Get("newest")
	assert.True(t, found)
	assert.Equal(t, 2, cache.Size())
}

func TestCacheServiceDeleteAndClear(t *testing.T) {
	cache := NewCacheService(time.Minute, 10)

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Delete("a")
	_, found := cache.Get("a")
	assert.False(t, found)

	cache.Clear()
	assert.Equal(t, 0, cache.Size())
}

func TestCleanupExpiredNow(t *testing.T) {
	cache := NewCacheService(time.Minute, 10)

	cache.SetWithTTL("expired", 1, -time.Second)
	cache.SetWithTTL("live", 2, time.Minute)

	removed := cache.CleanupExpiredNow()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, cache.Size())
}
