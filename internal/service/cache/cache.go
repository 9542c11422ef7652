package cache

import (
	"context"
	"errors"
	"time"

	"QuantLens/internal/domain/models"
	pkgcache "QuantLens/pkg/cache"
)

const barPrefix = "bars"

// BarCache stores bar series keyed by (symbol, from, to). Entries are
// written once: the first writer to take the key lock wins and later
// writers leave the stored series untouched.
type BarCache struct {
	store   pkgcache.Service
	ttl     time.Duration
	lockTTL time.Duration
}

func NewBarCache(store pkgcache.Service, ttl time.Duration) *BarCache {
	return &BarCache{store: store, ttl: ttl, lockTTL: 10 * time.Second}
}

func barKey(symbol string, from, to time.Time) string {
	return pkgcache.Key(barPrefix, symbol, from, to)
}

// Get returns the cached series; a miss or a decode failure reads as absent.
func (c *BarCache) Get(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, bool, error) {
	var bars []models.Bar
	err := c.store.Get(ctx, barKey(symbol, from, to), &bars)
	if errors.Is(err, pkgcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bars, true, nil
}

// Put stores bars unless another writer holds the key or already stored it.
// It reports whether this call wrote the entry.
func (c *BarCache) Put(ctx context.Context, symbol string, from, to time.Time, bars []models.Bar) (bool, error) {
	key := barKey(symbol, from, to)
	lock := pkgcache.Key("lock", key)

	ok, err := c.store.TryLock(ctx, lock, c.lockTTL)
	if err != nil || !ok {
		return false, err
	}
	defer func() { _ = c.store.Unlock(context.WithoutCancel(ctx), lock) }()

	exists, err := c.store.Exists(ctx, key)
	if err != nil || exists {
		return false, err
	}
	if err := c.store.Set(ctx, key, bars, c.ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Clear drops every cached series.
func (c *BarCache) Clear(ctx context.Context) error {
	return c.store.DeleteByPattern(ctx, pkgcache.Pattern(barPrefix+":"))
}
