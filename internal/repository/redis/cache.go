package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const scanBatch = 200

// Cache stores JSON snapshots of roster reads. Every read path treats a
// Redis failure as a miss so the stores stay the source of truth.
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

func New(client *redis.Client) *Cache {
	return &Cache{rdb: client}
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return c.rdb.Del(ctx, keys...).Err()
}

// DelMatching removes every key matching one of the glob patterns.
func (c *Cache) DelMatching(ctx context.Context, patterns ...string) error {
	for _, p := range patterns {
		iter := c.rdb.Scan(ctx, 0, p, scanBatch).Iterator()

		batch := make([]string, 0, scanBatch)
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == scanBatch {
				if err := c.Del(ctx, batch...); err != nil {
					return err
				}
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if err := c.Del(ctx, batch...); err != nil {
			return err
		}
	}

	return nil
}

// lookup decodes key into T. A missing key, an unreachable server and an
// undecodable snapshot all report a miss; the snapshot is dropped.
func lookup[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T

	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return v, false
	}

	if err := json.Unmarshal(b, &v); err != nil {
		_ = c.Del(ctx, key)
		var zero T
		return zero, false
	}

	return v, true
}

// ReadThrough returns the cached value of key or the result of load, storing
// the latter for ttl. Concurrent misses for one key share a single load.
// Loader errors are returned unwrapped and never cached. A nil *Cache always
// loads.
func ReadThrough[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	load func(ctx context.Context) (T, error),
) (T, error) {
	if c == nil {
		return load(ctx)
	}

	if v, ok := lookup[T](ctx, c, key); ok {
		return v, nil
	}

	res, err, _ := c.sf.Do(key, func() (any, error) {
		if v, ok := lookup[T](ctx, c, key); ok {
			return v, nil
		}

		v, err := load(ctx)
		if err != nil {
			return nil, err
		}

		if b, err := json.Marshal(v); err == nil {
			_ = c.rdb.Set(ctx, key, b, ttl).Err()
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	v, ok := res.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache %s: unexpected %T", key, res)
	}

	return v, nil
}
