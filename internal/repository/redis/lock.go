package redis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KEYS[1] = lock key
// ARGV[1] = owner token
const luaReleaseIfOwner = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// OrderLocks is a per-order mutex across processes. A lock left behind by a
// crashed worker expires after its TTL.
type OrderLocks struct {
	rdb     *redis.Client
	release *redis.Script

	mu     sync.Mutex
	tokens map[int64]string
}

func NewOrderLocks(rdb *redis.Client) *OrderLocks {
	return &OrderLocks{
		rdb:     rdb,
		release: redis.NewScript(luaReleaseIfOwner),
		tokens:  make(map[int64]string),
	}
}

func (l *OrderLocks) LockOrder(ctx context.Context, orderID int64, ttl time.Duration) (bool, error) {
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, KeyOrderLock(orderID), token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}

	l.mu.Lock()
	l.tokens[orderID] = token
	l.mu.Unlock()

	return true, nil
}

// UnlockOrder releases the lock only if this process still owns it.
func (l *OrderLocks) UnlockOrder(ctx context.Context, orderID int64) error {
	l.mu.Lock()
	token, ok := l.tokens[orderID]
	delete(l.tokens, orderID)
	l.mu.Unlock()

	if !ok {
		return nil
	}

	return l.release.Run(ctx, l.rdb, []string{KeyOrderLock(orderID)}, token).Err()
}
