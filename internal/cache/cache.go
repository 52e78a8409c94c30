// Package cache is a small in-process TTL cache.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// sweepEvery is the number of writes between two sweeps of expired entries.
const sweepEvery = 100

// Cache stores values of type V with an expiration time.
type Cache[V any] struct {
	items           sync.Map
	writes          atomic.Uint32
	defaultDuration time.Duration
	now             func() time.Time
}

// An entry is a value with its expiration time in unix nanoseconds (0 = never).
type entry[V any] struct {
	value   V
	expires int64
}

// New creates a cache whose entries live for defaultDuration unless Set says otherwise.
func New[V any](defaultDuration time.Duration) *Cache[V] {
	if defaultDuration <= 0 {
		defaultDuration = 10 * time.Minute
	}
	return &Cache[V]{defaultDuration: defaultDuration, now: time.Now}
}

// Set stores a value. A zero duration uses the default; a negative duration never expires.
func (c *Cache[V]) Set(key string, value V, duration time.Duration) {
	var expires int64

	if duration == 0 {
		duration = c.defaultDuration
	}
	if duration > 0 {
		expires = c.now().Add(duration).UnixNano()
	}

	c.items.Store(key, entry[V]{value: value, expires: expires})

	if c.writes.Add(1) >= sweepEvery {
		c.DeleteExpired()
		c.writes.Store(0)
	}
}

// Get returns the value for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	obj, ok := c.items.Load(key)
	if !ok {
		return zero, false
	}

	e := obj.(entry[V])
	if e.expires > 0 && c.now().UnixNano() > e.expires {
		c.items.Delete(key)
		return zero, false
	}
	return e.value, true
}

// DeleteExpired removes all expired entries.
func (c *Cache[V]) DeleteExpired() {
	now := c.now().UnixNano()
	c.items.Range(func(key, value any) bool {
		if e := value.(entry[V]); e.expires > 0 && now > e.expires {
			c.items.Delete(key)
		}
		return true
	})
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.items.Delete(key)
}
