package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per key.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   rate.Limit
	burst int
}

// New returns a limiter refilling rps tokens per second up to burst per key.
// A non-positive rps disables limiting.
func New(rps float64, burst int) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &Limiter{m: make(map[string]*rate.Limiter), rps: limit, burst: max(burst, 1)}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		b = rate.NewLimiter(l.rps, l.burst)
		l.m[key] = b
	}
	return b
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Wait blocks until a token for key is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.get(key).Wait(ctx)
}

// Reset drops every bucket.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.m = make(map[string]*rate.Limiter)
	l.mu.Unlock()
}
