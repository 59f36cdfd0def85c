package cache

import (
	"context"
	"encoding/json"
	"path"
	"sync"
	"time"
)

const (
	defaultMemoryTTL = 24 * time.Hour
	cleanupInterval  = 5 * time.Minute
)

type memoryItem struct {
	data     []byte
	expireAt time.Time
	lastUsed time.Time
}

func (m *memoryItem) expired(now time.Time) bool { return now.After(m.expireAt) }

// MemoryCache implements Service in process. Values are JSON encoded on Set so
// Get behaves like RedisCache and callers never share mutable state.
type MemoryCache struct {
	mu      sync.Mutex
	data    map[string]*memoryItem
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
	once    sync.Once
}

// NewMemoryCache creates an in-memory cache with LRU eviction holding at
// most maxSize keys; 0 means 1000.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	mc := &MemoryCache{
		data:    make(map[string]*memoryItem),
		maxSize: maxSize,
		ticker:  time.NewTicker(cleanupInterval),
		done:    make(chan struct{}),
	}
	go mc.cleanupExpired()
	return mc
}

func encode(value interface{}) ([]byte, error) {
	if s, ok := value.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(value)
}

func decode(data []byte, dest interface{}) error {
	if strPtr, ok := dest.(*string); ok {
		*strPtr = string(data)
		return nil
	}
	return json.Unmarshal(data, dest)
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = defaultMemoryTTL
	}
	now := time.Now()

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, exists := mc.data[key]; !exists && len(mc.data) >= mc.maxSize {
		mc.evictLRU()
	}
	mc.data[key] = &memoryItem{data: data, expireAt: now.Add(expiration), lastUsed: now}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	now := time.Now()
	mc.mu.Lock()
	item, ok := mc.data[key]
	if ok && item.expired(now) {
		delete(mc.data, key)
		ok = false
	}
	if !ok {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	item.lastUsed = now
	data := item.data
	mc.mu.Unlock()
	return decode(data, dest)
}

// DeleteByPattern uses path.Match globbing, the same '*' semantics as Redis
// SCAN MATCH for keys without '/'.
func (mc *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for key := range mc.data {
		if ok, err := path.Match(pattern, key); err != nil {
			return err
		} else if ok {
			delete(mc.data, key)
		}
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	now := time.Now()
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if item, ok := mc.data[key]; ok && !item.expired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	now := time.Now()
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if item, ok := mc.data[key]; ok && !item.expired(now) {
		return false, nil
	}
	mc.data[key] = &memoryItem{data: []byte(token), expireAt: now.Add(ttl), lastUsed: now}
	return true, nil
}

func (mc *MemoryCache) Unlock(_ context.Context, key, token string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	item, ok := mc.data[key]
	if !ok || item.expired(time.Now()) || string(item.data) != token {
		return ErrLockNotHeld
	}
	delete(mc.data, key)
	return nil
}

func (mc *MemoryCache) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for key, item := range mc.data {
		if oldestKey == "" || item.lastUsed.Before(oldest) {
			oldestKey, oldest = key, item.lastUsed
		}
	}
	if oldestKey != "" {
		delete(mc.data, oldestKey)
	}
}

func (mc *MemoryCache) cleanupExpired() {
	for {
		select {
		case <-mc.done:
			return
		case now := <-mc.ticker.C:
			mc.mu.Lock()
			for key, item := range mc.data {
				if item.expired(now) {
					delete(mc.data, key)
				}
			}
			mc.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() {
		mc.ticker.Stop()
		close(mc.done)
	})
	return nil
}
