package cache

import (
	"context"
	"time"
)

// LayeredCache puts a bounded in-process cache (L1) in front of Redis (L2).
// Writes go through to Redis first. L1 entries live at most l1TTL, so other
// instances' writes become visible within that window.
type LayeredCache struct {
	l1    *MemoryCache
	l2    *RedisCache
	l1TTL time.Duration
}

func NewLayeredCache(l2 *RedisCache, l1Size int, l1TTL time.Duration) *LayeredCache {
	if l1TTL <= 0 {
		l1TTL = time.Minute
	}
	return &LayeredCache{
		l1:    NewMemoryCache(WithMemoryMaxSize(l1Size)),
		l2:    l2,
		l1TTL: l1TTL,
	}
}

func (lc *LayeredCache) localTTL(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < lc.l1TTL {
		return expiration
	}
	return lc.l1TTL
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.l2.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	return lc.l1.Set(ctx, key, value, lc.localTTL(expiration))
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.l1.Get(ctx, key, dest); err == nil {
		return nil
	}
	data, err := lc.l2.raw(ctx, key)
	if err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, data, lc.l1TTL)
	return decode(data, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	_ = lc.l1.DeleteByPattern(ctx, pattern)
	return lc.l2.DeleteByPattern(ctx, pattern)
}

// Exists consults Redis only; L1 may hold entries already deleted elsewhere.
func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.l2.Exists(ctx, keys...)
}

// Locks are always taken in Redis so they hold across instances.
func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.l2.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.l2.Unlock(ctx, key)
}

func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	return lc.l2.Close()
}

var (
	_ Service = (*LayeredCache)(nil)
	_ Service = (*RedisCache)(nil)
	_ Service = (*MemoryCache)(nil)
)
