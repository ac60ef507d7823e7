package utils

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := NewTTLCache[string](clock, 10)

	cache.Set("k", "v", time.Minute)

	got, ok := cache.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)

	clock.Advance(time.Minute)
	_, ok = cache.Get("k")
	assert.False(t, ok)
	assert.Zero(t, cache.Len())
}

func TestTTLCacheEviction(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := NewTTLCache[int](clock, 2)

	cache.Set("short", 1, time.Minute)
	cache.Set("long", 2, time.Hour)

	// At capacity with nothing expired: the entry closest to expiry goes.
	cache.Set("new", 3, time.Hour)
	assert.Equal(t, 2, cache.Len())
	_, ok := cache.Get("short")
	assert.False(t, ok)
	_, ok = cache.Get("long")
	assert.True(t, ok)

	// Expired entries are reaped before anything live is evicted.
	clock.Advance(2 * time.Hour)
	cache.Set("a", 4, time.Minute)
	cache.Set("b", 5, time.Minute)
	cache.Set("c", 6, time.Minute)
	assert.LessOrEqual(t, cache.Len(), 2)
}

func TestTTLCacheOverwriteAndDelete(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := NewTTLCache[string](clock, 2)

	cache.Set("k", "v1", time.Minute)
	cache.Set("k", "v2", time.Minute)
	assert.Equal(t, 1, cache.Len())

	got, _ := cache.Get("k")
	assert.Equal(t, "v2", got)

	cache.Delete("k")
	_, ok := cache.Get("k")
	assert.False(t, ok)
}
