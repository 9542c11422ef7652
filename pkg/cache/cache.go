package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service is a key/value store with TTLs and advisory locks. Values are
// JSON encoded, strings and byte slices are stored as is.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Key joins a prefix and parts with ':'. Times render as UTC dates.
func Key(prefix string, parts ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range parts {
		b.WriteByte(':')
		switch v := p.(type) {
		case time.Time:
			b.WriteString(v.UTC().Format(time.DateOnly))
		case string:
			b.WriteString(v)
		default:
			fmt.Fprint(&b, v)
		}
	}
	return b.String()
}

// Pattern matches every key under prefix.
func Pattern(prefix string) string {
	return prefix + "*"
}
