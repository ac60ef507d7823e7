package utils

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a bounded in-process cache with per-entry expiry. It is
// constructed once in main and handed to the components that need it —
// never reached through package-level state. When full, the entry closest
// to expiry is evicted to make room.
type TTLCache[V any] struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	maxSize int
	entries map[string]cacheEntry[V]
}

func NewTTLCache[V any](clock clockwork.Clock, maxSize int) *TTLCache[V] {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &TTLCache[V]{
		clock:   clock,
		maxSize: maxSize,
		entries: make(map[string]cacheEntry[V]),
	}
}

func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if !c.clock.Now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return zero, false
	}
	return entry.value, true
}

func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLocked(now)
	}
	c.entries[key] = cacheEntry[V]{value: value, expiresAt: now.Add(ttl)}
}

func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked drops every expired entry, and if nothing has expired yet,
// the entry closest to expiry.
func (c *TTLCache[V]) evictLocked(now time.Time) {
	var victim string
	var victimExpiry time.Time
	dropped := false

	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			dropped = true
			continue
		}
		if victim == "" || entry.expiresAt.Before(victimExpiry) {
			victim = key
			victimExpiry = entry.expiresAt
		}
	}
	if !dropped && victim != "" {
		delete(c.entries, victim)
	}
}
