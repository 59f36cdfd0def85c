package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
	// ErrLockNotHeld is returned by Unlock when the lock expired or now
	// belongs to another token.
	ErrLockNotHeld = errors.New("cache: lock not held by token")
)

// Service is the cache surface used for snapshot query results and the
// refresh lock. Values are stored as JSON; *string destinations read raw.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	// DeleteByPattern removes keys matching a glob such as "snap:5m:*".
	DeleteByPattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	// TryLock stores token under key unless the key is held. Only the same
	// token can Unlock it.
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}
