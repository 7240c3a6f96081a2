package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Claims due members atomically so two pollers never run the same task.
// Claimed members move to the in-flight set until acknowledged; members
// whose lease ran out are due again.
// KEYS[1] = queue key
// KEYS[2] = in-flight key
// ARGV[1] = now_ms
// ARGV[2] = limit
// ARGV[3] = lease deadline_ms
const luaClaimDue = `
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, m in ipairs(expired) do
  redis.call('ZREM', KEYS[2], m)
  redis.call('ZADD', KEYS[1], ARGV[1], m)
end

local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, m in ipairs(items) do
  redis.call('ZREM', KEYS[1], m)
  redis.call('ZADD', KEYS[2], ARGV[3], m)
end
return items
`

const (
	defaultClaim = 100
	defaultLease = 5 * time.Minute
)

// DeferredQueue is a sorted set of tasks scored by their due time. A claimed
// task is redelivered once its lease expires unless Ack was called for it.
type DeferredQueue struct {
	rdb      *redis.Client
	key      string
	inflight string
	lease    time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	claim    *redis.Script
}

func NewDeferredQueue(rdb *redis.Client, clock clockwork.Clock, logger *slog.Logger) *DeferredQueue {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeferredQueue{
		rdb:      rdb,
		key:      KeyDeferredQueue(),
		inflight: KeyDeferredInflight(),
		lease:    defaultLease,
		clock:    clock,
		logger:   logger,
		claim:    redis.NewScript(luaClaimDue),
	}
}

func (q *DeferredQueue) ScheduleDeferred(ctx context.Context, task string, payload any, delay time.Duration) error {
	const op = "redis.DeferredQueue.ScheduleDeferred"

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	t := domain.DeferredTask{
		ID:      uuid.NewString(),
		Name:    task,
		Payload: body,
		DueAt:   q.clock.Now().Add(delay).UTC(),
	}

	member, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = q.rdb.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(t.DueAt.UnixMilli()),
		Member: string(member),
	}).Err()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// PopDue claims up to limit tasks that are due. Members that do not decode
// are logged and dropped; the rest of the claim is still returned.
func (q *DeferredQueue) PopDue(ctx context.Context, limit int) ([]domain.DeferredTask, error) {
	const op = "redis.DeferredQueue.PopDue"

	if limit <= 0 {
		limit = defaultClaim
	}

	now := q.clock.Now()
	res, err := q.claim.Run(ctx, q.rdb,
		[]string{q.key, q.inflight},
		now.UnixMilli(), limit, now.Add(q.lease).UnixMilli(),
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]domain.DeferredTask, 0, len(res))
	for _, raw := range res {
		var t domain.DeferredTask
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			q.logger.Warn("dropping undecodable deferred task", "member", raw, "error", err)
			if err := q.rdb.ZRem(ctx, q.inflight, raw).Err(); err != nil {
				q.logger.Warn("drop undecodable deferred task failed", "error", err)
			}
			continue
		}
		t.Receipt = raw
		out = append(out, t)
	}

	return out, nil
}

// Ack ends the lease of a claimed task so it is not delivered again.
func (q *DeferredQueue) Ack(ctx context.Context, t domain.DeferredTask) error {
	const op = "redis.DeferredQueue.Ack"

	if t.Receipt == "" {
		return nil
	}
	if err := q.rdb.ZRem(ctx, q.inflight, t.Receipt).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
