package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderLockIsExclusive(t *testing.T) {
	mr, rdb := newTestRedis(t)
	a, b := NewOrderLocks(rdb), NewOrderLocks(rdb)
	ctx := context.Background()

	ok, err := a.LockOrder(ctx, 1, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.LockOrder(ctx, 1, 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.LockOrder(ctx, 2, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "locks are per order")

	require.NoError(t, b.UnlockOrder(ctx, 1))
	assert.True(t, mr.Exists(KeyOrderLock(1)), "non-owner cannot release")

	require.NoError(t, a.UnlockOrder(ctx, 1))
	assert.False(t, mr.Exists(KeyOrderLock(1)))
}

func TestOrderLockReleaseChecksToken(t *testing.T) {
	mr, rdb := newTestRedis(t)
	a, b := NewOrderLocks(rdb), NewOrderLocks(rdb)
	ctx := context.Background()

	ok, err := a.LockOrder(ctx, 1, 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)

	ok, err = b.LockOrder(ctx, 1, 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok, "expired lock can be taken over")

	require.NoError(t, a.UnlockOrder(ctx, 1))
	assert.True(t, mr.Exists(KeyOrderLock(1)), "stale owner must not release the new lock")
}
