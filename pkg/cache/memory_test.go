package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryCleanup(time.Minute))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "p", point{1, 2}, time.Minute))
	var p point
	require.NoError(t, mc.Get(ctx, "p", &p))
	assert.Equal(t, point{1, 2}, p)

	var missing point
	assert.ErrorIs(t, mc.Get(ctx, "nope", &missing), ErrCacheMiss)
}

func TestMemoryCacheExpiryAndEviction(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "short", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	var s string
	assert.ErrorIs(t, mc.Get(ctx, "short", &s), ErrCacheMiss)

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	require.NoError(t, mc.Get(ctx, "a", &s))
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	ok, _ := mc.Exists(ctx, "b")
	assert.False(t, ok, "least recently used key is evicted")
	ok, _ = mc.Exists(ctx, "a", "c")
	assert.True(t, ok)
}

func TestMemoryCacheLockAndPattern(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "lock:x", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = mc.TryLock(ctx, "lock:x", time.Minute)
	assert.False(t, ok)
	require.NoError(t, mc.Unlock(ctx, "lock:x"))
	ok, _ = mc.TryLock(ctx, "lock:x", time.Minute)
	assert.True(t, ok)

	require.NoError(t, mc.Set(ctx, "bars:A", "1", 0))
	require.NoError(t, mc.Set(ctx, "bars:B", "2", 0))
	require.NoError(t, mc.DeleteByPattern(ctx, Pattern("bars:")))
	ok, _ = mc.Exists(ctx, "bars:A", "bars:B")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "lock:x")
	assert.True(t, ok)
}

func TestKey(t *testing.T) {
	d := time.Date(2024, 5, 6, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "bars:ACME:2024-05-06:3", Key("bars", "ACME", d, 3))
	assert.Equal(t, "lock", Key("lock"))
}

func TestPackRoundTrip(t *testing.T) {
	small := []byte(`{"x":1}`)
	packed := pack(small)
	assert.Equal(t, markRaw, packed[0])
	out, err := unpack(packed)
	require.NoError(t, err)
	assert.Equal(t, small, out)

	large := []byte(strings.Repeat(`{"close":101.25}`, 1000))
	packed = pack(large)
	assert.Equal(t, markZstd, packed[0])
	assert.Less(t, len(packed), len(large))
	out, err = unpack(packed)
	require.NoError(t, err)
	assert.Equal(t, large, out)

	_, err = unpack(nil)
	assert.Error(t, err)
	_, err = unpack([]byte("xjunk"))
	assert.Error(t, err)
}
