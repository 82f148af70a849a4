// Package dedup provides a bounded, time-evicted signature cache that
// suppresses reprocessing of already-seen candidates.
package dedup

import (
	"container/list"
	"sync"
	"time"
)

// Defaults match the discovery layer's retention policy.
const (
	DefaultMaxSize = 50000
	DefaultTTL     = 60 * time.Second
)

type entry struct {
	key  string
	seen time.Time
}

// Cache is a bounded insertion-ordered cache. Accepting a duplicate within
// the retention window must never happen; evicting a key early (size
// pressure) is acceptable and bounded by the TTL.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	order   *list.List // oldest at front
	byKey   map[string]*list.Element

	now func() time.Time // injectable for tests
}

// NewCache creates a cache with the given capacity and retention window.
// Non-positive arguments fall back to the defaults.
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		maxSize: maxSize,
		ttl:     ttl,
		order:   list.New(),
		byKey:   make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Add records a key. It returns true only on the first insertion within the
// retention window; false thereafter. Over capacity, the single oldest entry
// is evicted per insertion.
func (c *Cache) Add(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byKey[key]; ok {
		return false
	}

	c.byKey[key] = c.order.PushBack(&entry{key: key, seen: c.now()})
	for c.order.Len() > c.maxSize {
		c.evictOldest()
	}
	return true
}

// Cleanup removes entries older than the TTL, independent of size pressure.
// Returns the number of entries removed.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.ttl)
	removed := 0
	for {
		front := c.order.Front()
		if front == nil {
			break
		}
		e := front.Value.(*entry)
		if e.seen.After(cutoff) {
			break
		}
		c.evictOldest()
		removed++
	}
	return removed
}

// Len returns the current number of retained keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	e := front.Value.(*entry)
	c.order.Remove(front)
	delete(c.byKey, e.key)
}
