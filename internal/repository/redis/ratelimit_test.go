package redis

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowLimiter(t *testing.T) {
	_, rdb := newTestRedis(t)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	l := NewSlidingWindowLimiter(rdb, "admin_jobs", 2, time.Minute, clock)
	ctx := context.Background()

	for range 2 {
		d, err := l.Allow(ctx, "ops")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := l.Allow(ctx, "ops")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(3), d.Current)
	assert.Equal(t, time.Minute, d.RetryAfter)

	d, err = l.Allow(ctx, "other")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "callers are limited separately")

	clock.Advance(61 * time.Second)

	d, err = l.Allow(ctx, "ops")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Current)
}
