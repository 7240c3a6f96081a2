package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/kirinyoku/roster-go/internal/domain"
)

const claimLease = 5 * time.Minute

type claim struct {
	task  domain.DeferredTask
	until time.Time
}

// Deferred is an in-memory deferred task queue driven by a clock. Claimed
// tasks are due again once their lease runs out without an Ack.
type Deferred struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	tasks    []domain.DeferredTask
	inflight map[string]claim
}

func NewDeferred(clock clockwork.Clock) *Deferred {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Deferred{clock: clock, inflight: make(map[string]claim)}
}

func (d *Deferred) ScheduleDeferred(ctx context.Context, task string, payload any, delay time.Duration) error {
	const op = "memory.Deferred.ScheduleDeferred"

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.tasks = append(d.tasks, domain.DeferredTask{
		ID:      uuid.NewString(),
		Name:    task,
		Payload: b,
		DueAt:   d.clock.Now().Add(delay),
	})
	return nil
}

// PopDue claims up to limit tasks whose due time has passed, earliest
// first.
func (d *Deferred) PopDue(ctx context.Context, limit int) ([]domain.DeferredTask, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	for id, c := range d.inflight {
		if !c.until.After(now) {
			d.tasks = append(d.tasks, c.task)
			delete(d.inflight, id)
		}
	}

	slices.SortStableFunc(d.tasks, func(a, b domain.DeferredTask) int {
		return cmp.Compare(a.DueAt.UnixNano(), b.DueAt.UnixNano())
	})

	n := 0
	for n < len(d.tasks) && !d.tasks[n].DueAt.After(now) && (limit <= 0 || n < limit) {
		n++
	}

	due := slices.Clone(d.tasks[:n])
	d.tasks = slices.Delete(d.tasks, 0, n)
	for i := range due {
		due[i].Receipt = due[i].ID
		d.inflight[due[i].ID] = claim{task: due[i], until: now.Add(claimLease)}
	}
	return due, nil
}

func (d *Deferred) Ack(ctx context.Context, t domain.DeferredTask) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, t.Receipt)
	return nil
}

// InFlight reports how many claimed tasks await an Ack.
func (d *Deferred) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// Pending returns a copy of the queued tasks.
func (d *Deferred) Pending() []domain.DeferredTask {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.tasks)
}
