package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/kirinyoku/roster-go/internal/repository/memory"
	"github.com/kirinyoku/roster-go/internal/service/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen []string
	fail map[string]error
}

func (h *recordingHandler) HandleTask(ctx context.Context, task string, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var p orders.RecheckPayload
	_ = json.Unmarshal(payload, &p)
	key := fmt.Sprintf("%s:%d", task, p.OrderID)
	h.seen = append(h.seen, key)
	return h.fail[key]
}

type stubSweeper struct {
	calls int
	res   orders.BatchResult
	err   error
}

func (s *stubSweeper) SweepProcessing(ctx context.Context) (orders.BatchResult, error) {
	s.calls++
	return s.res, s.err
}

func newFixture(t *testing.T) (*Scheduler, *recordingHandler, *memory.Deferred, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	queue := memory.NewDeferred(clock)
	h := &recordingHandler{fail: map[string]error{}}

	s, err := New(&stubSweeper{}, h, queue, clock, nil, Config{RetryDelay: 2 * time.Minute})
	require.NoError(t, err)
	return s, h, queue, clock
}

func TestDispatchDueRunsOnlyDueTasks(t *testing.T) {
	s, h, queue, clock := newFixture(t)
	ctx := context.Background()

	require.NoError(t, queue.ScheduleDeferred(ctx, orders.TaskVerifyCompletion, orders.RecheckPayload{OrderID: 1}, 30*time.Second))
	require.NoError(t, queue.ScheduleDeferred(ctx, orders.TaskVerifyCompletion, orders.RecheckPayload{OrderID: 2}, 10*time.Minute))

	ran, err := s.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, ran)

	clock.Advance(time.Minute)

	ran, err = s.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ran)
	assert.Equal(t, []string{"order.verify_completion:1"}, h.seen)
	assert.Len(t, queue.Pending(), 1)
}

func TestDispatchDueDropsInvalidAndRequeuesFailed(t *testing.T) {
	s, h, queue, clock := newFixture(t)
	ctx := context.Background()

	h.fail["order.verify_completion:7"] = fmt.Errorf("decode: %w", orders.ErrInvalidTask)
	h.fail["order.verify_completion:8"] = errors.New("order store timeout")

	for _, id := range []int64{6, 7, 8} {
		require.NoError(t, queue.ScheduleDeferred(ctx, orders.TaskVerifyCompletion, orders.RecheckPayload{OrderID: id, Attempt: 1}, 0))
	}

	ran, err := s.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ran)
	assert.Len(t, h.seen, 3)

	pending := queue.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, orders.TaskVerifyCompletion, pending[0].Name)
	assert.Equal(t, clock.Now().Add(2*time.Minute), pending[0].DueAt)

	var p orders.RecheckPayload
	require.NoError(t, json.Unmarshal(pending[0].Payload, &p))
	assert.Equal(t, orders.RecheckPayload{OrderID: 8, Attempt: 1}, p)
}

type failingRequeue struct {
	*memory.Deferred
	fail bool
}

func (q *failingRequeue) ScheduleDeferred(ctx context.Context, task string, payload any, delay time.Duration) error {
	if q.fail {
		return errors.New("redis down")
	}
	return q.Deferred.ScheduleDeferred(ctx, task, payload, delay)
}

func TestDispatchDueAcksHandledTasks(t *testing.T) {
	s, _, queue, _ := newFixture(t)
	ctx := context.Background()

	require.NoError(t, queue.ScheduleDeferred(ctx, orders.TaskVerifyCompletion, orders.RecheckPayload{OrderID: 1}, 0))

	ran, err := s.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ran)
	assert.Zero(t, queue.InFlight())
	assert.Empty(t, queue.Pending())
}

func TestDispatchDueRedeliversUnackedTasks(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	queue := &failingRequeue{Deferred: memory.NewDeferred(clock), fail: true}
	h := &recordingHandler{fail: map[string]error{"order.verify_completion:4": errors.New("order store timeout")}}

	s, err := New(&stubSweeper{}, h, queue, clock, nil, Config{RetryDelay: time.Minute})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, queue.Deferred.ScheduleDeferred(ctx, orders.TaskVerifyCompletion, orders.RecheckPayload{OrderID: 4}, 0))

	_, err = s.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, queue.InFlight())
	assert.Empty(t, queue.Pending())

	ran, err := s.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, ran)
	assert.Len(t, h.seen, 1, "task stays leased")

	queue.fail = false
	delete(h.fail, "order.verify_completion:4")
	clock.Advance(10 * time.Minute)

	ran, err = s.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ran)
	assert.Equal(t, []string{"order.verify_completion:4", "order.verify_completion:4"}, h.seen)
	assert.Zero(t, queue.InFlight())
}

func TestSweepReportsError(t *testing.T) {
	sw := &stubSweeper{err: errors.New("orders unavailable")}
	s, err := New(sw, nil, nil, clockwork.NewFakeClock(), nil, Config{})
	require.NoError(t, err)

	assert.Error(t, s.Sweep(context.Background()))
	assert.Equal(t, 1, sw.calls)

	sw.err = nil
	sw.res = orders.BatchResult{ProcessedCount: 2, CompletedCount: 2}
	assert.NoError(t, s.Sweep(context.Background()))
}

func TestRunStopsWithContext(t *testing.T) {
	s, _, _, _ := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
