package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const checkpointTTL = 7 * 24 * time.Hour

// Checkpoints stores job cursors so an interrupted rebuild can resume.
type Checkpoints struct {
	rdb *redis.Client
}

func NewCheckpoints(rdb *redis.Client) *Checkpoints {
	return &Checkpoints{rdb: rdb}
}

func (c *Checkpoints) Load(ctx context.Context, job string) (int64, bool, error) {
	s, err := c.rdb.Get(ctx, KeyCheckpoint(job)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	cursor, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, err
	}

	return cursor, true, nil
}

func (c *Checkpoints) Save(ctx context.Context, job string, cursor int64) error {
	return c.rdb.Set(ctx, KeyCheckpoint(job), strconv.FormatInt(cursor, 10), checkpointTTL).Err()
}

func (c *Checkpoints) Clear(ctx context.Context, job string) error {
	return c.rdb.Del(ctx, KeyCheckpoint(job)).Err()
}
