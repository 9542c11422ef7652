package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowPerKey(t *testing.T) {
	l := New(1, 2)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys have independent buckets")

	l.Reset()
	assert.True(t, l.Allow("a"))
}

func TestDisabled(t *testing.T) {
	l := New(0, 1)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("a"))
	}
}

func TestWaitHonoursContext(t *testing.T) {
	l := New(0.001, 1)
	require.NoError(t, l.Wait(context.Background(), "a"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "a"))
}
