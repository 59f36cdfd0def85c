package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	v   V
	exp time.Time
}

// TTLCache is a small in-process map with optional expiry and a size cap.
// When full, Set drops an arbitrary entry.
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	m       map[K]entry[V]
	maxSize int
}

// NewTTLCache creates a cache holding at most maxSize entries (0 = unbounded).
func NewTTLCache[K comparable, V any](maxSize int) *TTLCache[K, V] {
	return &TTLCache[K, V]{m: make(map[K]entry[V]), maxSize: maxSize}
}

func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.v, true
}

// Set stores v; ttl <= 0 never expires.
func (c *TTLCache[K, V]) Set(key K, v V, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	if _, exists := c.m[key]; !exists && c.maxSize > 0 && len(c.m) >= c.maxSize {
		for k := range c.m {
			delete(c.m, k)
			break
		}
	}
	c.m[key] = entry[V]{v: v, exp: exp}
	c.mu.Unlock()
}

func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
