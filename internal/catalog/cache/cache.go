// Package cache is a read-through cache for current-revision lookups.
// Revisions are immutable, so a cached entry can only go stale when the base
// pointer advances; publishers invalidate the key after commit.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache wraps a Redis client with per-key request collapsing.
type Cache struct {
	rdb   *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

// New constructs a Cache. TTL bounds staleness if an invalidation is lost.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// Key builds the cache key for an aggregate's current revision.
func Key(entity string, id int64) string {
	return fmt.Sprintf("catalog:%s:%d:current", entity, id)
}

// Invalidate drops a key. Errors are ignored: the TTL caps the damage and
// the authoritative state lives in PostgreSQL.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if c == nil {
		return
	}
	_ = c.rdb.Del(ctx, key).Err()
}

// GetJSON returns the cached value for key, loading and caching it on a
// miss. Concurrent misses on the same key share one load.
func GetJSON[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		return load(ctx)
	}

	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var v T
		if jerr := json.Unmarshal(data, &v); jerr == nil {
			return v, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		loaded, err := load(ctx)
		if err != nil {
			return zero, err
		}
		if data, merr := json.Marshal(loaded); merr == nil {
			_ = c.rdb.Set(ctx, key, data, c.ttl).Err()
		}
		return loaded, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
