package cache

import (
	"context"
	"time"
)

// l1TTL bounds how stale a process-local copy may be relative to Redis.
const l1TTL = 30 * time.Second

// LayeredCache reads through a local MemoryCache to Redis. Locks always go to
// Redis so they are shared across processes.
type LayeredCache struct {
	mem   *MemoryCache
	redis *RedisCache
}

func NewLayeredCache(redisCache *RedisCache, memorySize int) *LayeredCache {
	return &LayeredCache{
		mem:   NewMemoryCache(memorySize),
		redis: redisCache,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.redis.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	ttl := l1TTL
	if expiration > 0 && expiration < ttl {
		ttl = expiration
	}
	return lc.mem.Set(ctx, key, value, ttl)
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.mem.Get(ctx, key, dest); err == nil {
		return nil
	}
	var raw string
	if err := lc.redis.Get(ctx, key, &raw); err != nil {
		return err
	}
	_ = lc.mem.Set(ctx, key, raw, l1TTL)
	return decode([]byte(raw), dest)
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	_ = lc.mem.DeleteByPattern(ctx, pattern)
	return lc.redis.DeleteByPattern(ctx, pattern)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.redis.Exists(ctx, keys...)
}

func (lc *LayeredCache) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return lc.redis.TryLock(ctx, key, token, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key, token string) error {
	return lc.redis.Unlock(ctx, key, token)
}

func (lc *LayeredCache) Close() error {
	_ = lc.mem.Close()
	return lc.redis.Close()
}
