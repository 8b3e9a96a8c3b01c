// Package cache wraps Redis for the identity cache and the per-place run
// lock. A nil *Cache is valid and behaves as an always-missing cache with a
// lock that is always granted, so Redis stays optional.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"review-insights/pkg/metrics"
)

type Cache struct {
	c    *redis.Client
	name string
}

// New parses a redis:// URL. An empty URL returns a nil cache.
func New(url string) (*Cache, error) {
	if url == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Cache{c: redis.NewClient(opt), name: "redis"}, nil
}

// NewWithClient is used by tests that run against miniredis.
func NewWithClient(c *redis.Client) *Cache { return &Cache{c: c, name: "redis"} }

func (r *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if r == nil {
		return false, nil
	}
	v, err := r.c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveCache(r.name, "miss")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	metrics.ObserveCache(r.name, "hit")
	return true, json.Unmarshal(v, dst)
}

func (r *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	if r == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	metrics.ObserveCache(r.name, "set")
	return r.c.Set(ctx, key, b, ttl).Err()
}

func (r *Cache) Del(ctx context.Context, key string) error {
	if r == nil {
		return nil
	}
	metrics.ObserveCache(r.name, "del")
	return r.c.Del(ctx, key).Err()
}

func (r *Cache) Ping(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.c.Ping(ctx).Err()
}

func (r *Cache) Close() error {
	if r == nil {
		return nil
	}
	return r.c.Close()
}

// ErrLocked is returned by Lock when someone else holds the key.
var ErrLocked = errors.New("cache: lock held")

// unlockScript deletes the key only if it still carries our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Lock takes a best-effort exclusive lock with SET NX and returns its
// release function. The lock expires after ttl if never released.
func (r *Cache) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if r == nil {
		return func() {}, nil
	}
	token := uuid.NewString()
	ok, err := r.c.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = unlockScript.Run(ctx, r.c, []string{"lock:" + key}, token).Err()
	}, nil
}
