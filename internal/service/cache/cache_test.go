package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantLens/internal/domain/models"
	pkgcache "QuantLens/pkg/cache"
)

var (
	from = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
)

func bars(close float64) []models.Bar {
	return []models.Bar{{Date: from, Symbol: "ACME", Open: close, High: close, Low: close, Close: close, Volume: 10}}
}

func TestBarCacheWriteOnce(t *testing.T) {
	mem := pkgcache.NewMemoryCache()
	defer mem.Close()
	c := NewBarCache(mem, time.Hour)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "ACME", from, to)
	require.NoError(t, err)
	assert.False(t, ok)

	wrote, err := c.Put(ctx, "ACME", from, to, bars(101))
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = c.Put(ctx, "ACME", from, to, bars(999))
	require.NoError(t, err)
	assert.False(t, wrote)

	got, ok, err := c.Get(ctx, "ACME", from, to)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 101.0, got[0].Close)
	assert.True(t, got[0].Date.Equal(from))
}

func TestBarCacheSingleWriterWins(t *testing.T) {
	mem := pkgcache.NewMemoryCache()
	defer mem.Close()
	c := NewBarCache(mem, time.Hour)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if ok, _ := c.Put(ctx, "ACME", from, to, bars(float64(100+i))); ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestBarCacheClear(t *testing.T) {
	mem := pkgcache.NewMemoryCache()
	defer mem.Close()
	c := NewBarCache(mem, time.Hour)
	ctx := context.Background()

	_, err := c.Put(ctx, "ACME", from, to, bars(1))
	require.NoError(t, err)
	_, err = c.Put(ctx, "SPY", from, to, bars(2))
	require.NoError(t, err)
	require.NoError(t, mem.Set(ctx, "other", "keep", 0))

	require.NoError(t, c.Clear(ctx))

	_, ok, _ := c.Get(ctx, "ACME", from, to)
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "SPY", from, to)
	assert.False(t, ok)
	var s string
	require.NoError(t, mem.Get(ctx, "other", &s))
	assert.Equal(t, "keep", s)
}
