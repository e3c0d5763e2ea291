// Package cache stores scored pair rows keyed by a digest of their inputs.
package cache

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Cache is a byte cache with per-entry TTL. Misses and backend errors look the same.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

type memory struct {
	mu  sync.Mutex
	m   map[string]entry
	now func() time.Time
}

type entry struct {
	b   []byte
	exp time.Time
}

// NewMemory returns an in-process cache
func NewMemory() Cache { return &memory{m: make(map[string]entry), now: time.Now} }

func (c *memory) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || (!e.exp.IsZero() && c.now().After(e.exp)) {
		return nil, false
	}
	return append([]byte(nil), e.b...), true
}

func (c *memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = c.now().Add(ttl)
	}
	c.m[key] = e
}

// Options select the backend
type Options struct {
	Enabled   bool
	RedisAddr string
	RedisDB   int
	Timeout   time.Duration
}

type redisCache struct {
	r       *redis.Client
	timeout time.Duration
}

// NewRedis wraps a go-redis client
func NewRedis(client *redis.Client, timeout time.Duration) Cache {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &redisCache{r: client, timeout: timeout}
}

// NewAuto returns a Redis cache when enabled with an address, memory otherwise.
// A nil Cache is returned when caching is disabled.
func NewAuto(opts Options) Cache {
	if !opts.Enabled {
		return nil
	}
	if opts.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:        opts.RedisAddr,
			DB:          opts.RedisDB,
			DialTimeout: time.Second,
		})
		return NewRedis(client, opts.Timeout)
	}
	return NewMemory()
}

func (r *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	v, err := r.r.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *redisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_ = r.r.Set(ctx, key, val, ttl).Err()
}
