package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
)

// RedisConfig is the redis section of the service config.
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Host         string        `yaml:"host" default:"localhost"`
	Port         int           `yaml:"port" default:"6379"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size" default:"10"`
	MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
	PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
	Prefix       string        `yaml:"prefix" default:"quantlens"`
	// MemorySize is the L1 entry count kept in front of Redis.
	MemorySize int `yaml:"memory_size" default:"1000"`
	// MemoryTTL bounds how long an L1 entry may lag behind Redis.
	MemoryTTL time.Duration `yaml:"memory_ttl" default:"1m"`
}

// Values larger than this are stored zstd compressed.
const compressThreshold = 4 << 10

const (
	markRaw  byte = 'r'
	markZstd byte = 'z'
)

var (
	zenc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zdec, _ = zstd.NewReader(nil)
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisCache implements Service on Redis. Keys are namespaced by prefix.
type RedisCache struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		PoolTimeout:  cfg.PoolTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisCache(client, cfg.Prefix), nil
}

func newRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, tokens: make(map[string]string)}
}

func (c *RedisCache) Client() *redis.Client { return c.client }

func (c *RedisCache) Close() error { return c.client.Close() }

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), pack(data), expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.raw(ctx, key)
	if err != nil {
		return err
	}
	return decode(data, dest)
}

// raw returns the encoded value without decoding it into a destination.
func (c *RedisCache) raw(ctx context.Context, key string) ([]byte, error) {
	stored, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	data, err := unpack(stored)
	if err != nil {
		return nil, fmt.Errorf("cache entry %s: %w", key, err)
	}
	return data, nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Unlink(ctx, c.keys(keys)...).Err()
}

// DeleteByPattern walks the keyspace with SCAN and unlinks matches in batches.
func (c *RedisCache) DeleteByPattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, c.key(pattern), 500).Iterator()
	batch := make([]string, 0, 500)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := c.client.Unlink(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return c.client.Unlink(ctx, batch...).Err()
	}
	return nil
}

func (c *RedisCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	n, err := c.client.Exists(ctx, c.keys(keys)...).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TryLock takes key with a random token. Only the holder's Unlock releases it.
func (c *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, c.key(key), token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	c.mu.Lock()
	c.tokens[key] = token
	c.mu.Unlock()
	return true, nil
}

func (c *RedisCache) Unlock(ctx context.Context, key string) error {
	c.mu.Lock()
	token, ok := c.tokens[key]
	delete(c.tokens, key)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return unlockScript.Run(ctx, c.client, []string{c.key(key)}, token).Err()
}

func (c *RedisCache) key(k string) string { return c.prefix + ":" + k }

func (c *RedisCache) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = c.key(k)
	}
	return out
}

func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(value)
	}
}

func decode(data []byte, dest interface{}) error {
	switch d := dest.(type) {
	case *string:
		*d = string(data)
		return nil
	case *[]byte:
		*d = append((*d)[:0], data...)
		return nil
	default:
		return json.Unmarshal(data, dest)
	}
}

func pack(data []byte) []byte {
	if len(data) < compressThreshold {
		return append([]byte{markRaw}, data...)
	}
	out := make([]byte, 1, len(data)/3)
	out[0] = markZstd
	return zenc.EncodeAll(data, out)
}

func unpack(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, errors.New("empty entry")
	}
	switch stored[0] {
	case markRaw:
		return stored[1:], nil
	case markZstd:
		return zdec.DecodeAll(stored[1:], nil)
	default:
		return nil, fmt.Errorf("unknown encoding %q", stored[0])
	}
}
