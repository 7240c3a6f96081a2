package roster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/matcher"
	"github.com/kirinyoku/roster-go/internal/repository"
	"github.com/kirinyoku/roster-go/internal/repository/memory"
	"github.com/kirinyoku/roster-go/internal/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInvalidator struct {
	mu     sync.Mutex
	orders []int64
	all    int
}

func (r *recordingInvalidator) InvalidateRosters(ctx context.Context, orderIDs []int64, sigs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, orderIDs...)
	return nil
}

func (r *recordingInvalidator) InvalidateAllRosters(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all++
	return nil
}

type fixture struct {
	orders      *memory.Orders
	catalog     *memory.Catalog
	players     *memory.Players
	rosters     *memory.Rosters
	checkpoints *memory.Checkpoints
	inval       *recordingInvalidator
	svc         *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		orders:      memory.NewOrders(),
		catalog:     memory.NewCatalog(),
		players:     memory.NewPlayers(),
		rosters:     memory.NewRosters(),
		checkpoints: memory.NewCheckpoints(),
		inval:       &recordingInvalidator{},
	}

	f.catalog.PutProduct(domain.EventAttributes{
		ProductID:    100,
		ProductName:  "Summer Camp Zurich",
		ActivityType: "camp",
		Venue:        "Zurich",
		AgeGroup:     "U10",
		Season:       "Summer 2024",
	})
	f.catalog.PutProduct(domain.EventAttributes{
		ProductID:    200,
		ActivityType: "tournament",
		Venue:        "Basel",
		AgeGroup:     "U12",
		StartDate:    time.Date(2025, 12, 14, 0, 0, 0, 0, time.UTC),
	})

	f.svc = New(Deps{
		Orders:      f.orders,
		Rosters:     f.rosters,
		Players:     f.players,
		Events:      matcher.NewEventMatcher(f.catalog, signature.New(nil, nil)),
		Invalidator: f.inval,
		Checkpoints: f.checkpoints,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, Config{BatchSize: 2})

	return f
}

func campOrder(id int64, qty int) domain.Order {
	return domain.Order{
		ID:         id,
		Status:     domain.OrderProcessing,
		CustomerID: 9,
		Billing:    domain.BillingContact{FirstName: "Anna", LastName: "Muster", Email: "anna@example.com"},
		CreatedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		LineItems: []domain.LineItem{{
			ID:        id*10 + 1,
			ProductID: 100,
			Quantity:  qty,
			Metadata: map[string]string{
				"participant_first_name_1": "Lea",
				"participant_first_name_2": "Nico",
				"participant_first_name_3": "Mia",
			},
		}},
	}
}

func TestBuildFromOrderExample(t *testing.T) {
	f := newFixture(t)
	f.orders.Put(campOrder(1, 2))

	entries, err := f.svc.BuildFromOrder(context.Background(), nil, 1, BuildOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, 0, entries[0].RegistrantSlotIndex)
	assert.Equal(t, 1, entries[1].RegistrantSlotIndex)
	assert.Equal(t, entries[0].EventSignature, entries[1].EventSignature)
	assert.Len(t, entries[0].EventSignature, signature.Length)
	assert.Equal(t, "Lea", entries[0].FirstName)
	assert.Equal(t, "Nico", entries[1].FirstName)
	assert.Equal(t, "Anna Muster", entries[0].GuardianName)
	assert.False(t, entries[0].IsPlaceholder)
	assert.Equal(t, 2, f.rosters.Len())
	assert.Contains(t, f.inval.orders, int64(1))
}

func TestBuildFromOrderIdempotent(t *testing.T) {
	f := newFixture(t)
	f.orders.Put(campOrder(1, 2))
	ctx := context.Background()

	first, err := f.svc.BuildFromOrder(ctx, nil, 1, BuildOptions{})
	require.NoError(t, err)
	second, err := f.svc.BuildFromOrder(ctx, nil, 1, BuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, f.rosters.Len())

	stored, err := f.rosters.Query(ctx, domain.RosterFilter{OrderIDs: []int64{1}}, domain.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, second, stored)
}

func TestBuildNaturalKeysUnique(t *testing.T) {
	f := newFixture(t)
	ord := campOrder(1, 3)
	ord.LineItems = append(ord.LineItems, domain.LineItem{ID: 12, ProductID: 200, Quantity: 2})
	f.orders.Put(ord)

	entries, err := f.svc.BuildFromOrder(context.Background(), nil, 1, BuildOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 5)

	seen := map[domain.NaturalKey]bool{}
	for _, e := range entries {
		assert.False(t, seen[e.NaturalKey], "duplicate key %+v", e.NaturalKey)
		seen[e.NaturalKey] = true
	}

	assert.True(t, entries[3].IsPlaceholder, "slot without registrant data is a placeholder")
	assert.NotEqual(t, entries[0].EventSignature, entries[3].EventSignature)
}

func TestBuildFullReplaceDropsStaleSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orders.Put(campOrder(1, 3))
	_, err := f.svc.BuildFromOrder(ctx, nil, 1, BuildOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, f.rosters.Len())

	f.orders.Put(campOrder(1, 1))
	entries, err := f.svc.BuildFromOrder(ctx, nil, 1, BuildOptions{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 1, f.rosters.Len())
}

func TestBuildSkipsUnknownProduct(t *testing.T) {
	f := newFixture(t)
	ord := campOrder(1, 1)
	ord.LineItems = append(ord.LineItems, domain.LineItem{ID: 12, ProductID: 999, Quantity: 4})
	f.orders.Put(ord)

	entries, err := f.svc.BuildFromOrder(context.Background(), nil, 1, BuildOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(11), entries[0].OrderItemID)
}

func TestBuildMissingOrder(t *testing.T) {
	f := newFixture(t)

	entries, err := f.svc.BuildFromOrder(context.Background(), nil, 404, BuildOptions{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuildExtractionError(t *testing.T) {
	f := newFixture(t)
	ord := campOrder(1, 1)
	ord.LineItems[0].Metadata["participants"] = "many"
	f.orders.Put(ord)

	_, err := f.svc.BuildFromOrder(context.Background(), nil, 1, BuildOptions{})
	require.Error(t, err)

	var xe *ExtractionError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, int64(1), xe.OrderID)
	assert.Equal(t, int64(11), xe.ItemID)
	assert.Zero(t, f.rosters.Len())
}

func TestBuildUnavailableStore(t *testing.T) {
	f := newFixture(t)
	f.orders.SetUnavailable(true)

	_, err := f.svc.BuildFromOrder(context.Background(), nil, 1, BuildOptions{})
	assert.ErrorIs(t, err, repository.ErrUnavailable)
}

func TestBuildDryRun(t *testing.T) {
	f := newFixture(t)
	f.orders.Put(campOrder(1, 2))

	entries, err := f.svc.BuildFromOrder(context.Background(), nil, 1, BuildOptions{DryRun: true})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Zero(t, f.rosters.Len())
}

func TestBuildScopeMemoises(t *testing.T) {
	f := newFixture(t)
	f.orders.Put(campOrder(1, 2))
	ctx := context.Background()
	scope := NewScope()

	first, err := f.svc.BuildFromOrder(ctx, scope, 1, BuildOptions{})
	require.NoError(t, err)

	f.orders.Put(campOrder(1, 3))
	again, err := f.svc.BuildFromOrder(ctx, scope, 1, BuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.Equal(t, 1, scope.Built())
	assert.Equal(t, 2, f.rosters.Len())
}

func TestBuildKeepsOperatorCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orders.Put(campOrder(1, 2))

	entries, err := f.svc.BuildFromOrder(ctx, nil, 1, BuildOptions{})
	require.NoError(t, err)
	sig := entries[0].EventSignature

	n, err := f.rosters.SetEventCompleted(ctx, sig, true)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	entries, err = f.svc.BuildFromOrder(ctx, nil, 1, BuildOptions{})
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, e.EventCompleted)
	}

	f.orders.Put(campOrder(2, 1))
	entries, err = f.svc.BuildFromOrder(ctx, nil, 2, BuildOptions{})
	require.NoError(t, err)
	assert.True(t, entries[0].EventCompleted, "new rows join a completed event as completed")
}

func TestBuildAssignedPlayer(t *testing.T) {
	f := newFixture(t)
	f.players.Put(9,
		domain.PlayerProfile{ID: 1, FirstName: "Lea", LastName: "Muster", BirthDate: "2015-03-01"},
		domain.PlayerProfile{ID: 2, FirstName: "Nico", LastName: "Muster", BirthDate: "2017-09-12", Medical: "asthma"},
	)

	ord := campOrder(1, 1)
	ord.LineItems[0].Metadata = map[string]string{"participant_player_index_1": "1"}
	f.orders.Put(ord)

	entries, err := f.svc.BuildFromOrder(context.Background(), nil, 1, BuildOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Nico", entries[0].FirstName)
	assert.Equal(t, "asthma", entries[0].Medical)
	assert.False(t, entries[0].IsPlaceholder)
}

func TestBuildCapacityHold(t *testing.T) {
	f := newFixture(t)
	ord := campOrder(1, 1)
	ord.LineItems[0].Metadata["_capacity_hold"] = "1"
	f.orders.Put(ord)

	entries, err := f.svc.BuildFromOrder(context.Background(), nil, 1, BuildOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsPlaceholder)
}

func TestRebuildAllIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.orders.Put(campOrder(1, 2))
	f.orders.Put(campOrder(2, 1))
	bad := campOrder(3, 1)
	bad.LineItems[0].ProductID = 300
	f.orders.Put(bad)
	f.orders.Put(campOrder(4, 1))
	pending := campOrder(5, 1)
	pending.Status = domain.OrderPending
	f.orders.Put(pending)
	f.catalog.Fail(300, errors.New("catalog timeout"))

	res, err := f.svc.RebuildAll(context.Background(), RebuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 4, res.Created)
	assert.Equal(t, 1, res.Errors)
	require.Len(t, res.RecentErrors, 1)
	assert.Equal(t, int64(3), res.RecentErrors[0].OrderID)
	assert.Equal(t, 2, res.Batches)
	assert.False(t, res.Stopped)

	_, ok, _ := f.checkpoints.Load(context.Background(), rebuildJob)
	assert.False(t, ok, "finished rebuild clears its checkpoint")
}

func TestRebuildAllClearExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.rosters.Put(domain.RosterEntry{NaturalKey: domain.NaturalKey{OrderID: 77, OrderItemID: 1}})
	f.orders.Put(campOrder(1, 1))

	res, err := f.svc.RebuildAll(ctx, RebuildOptions{ClearExisting: true})
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.Cleared)
	assert.Equal(t, 1, f.rosters.Len())
	assert.Equal(t, 1, f.inval.all)
}

func TestRebuildAllClearExistingKeepsCompletedEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orders.Put(campOrder(1, 2))
	f.orders.Put(campOrder(2, 1))

	entries, err := f.svc.BuildFromOrder(ctx, nil, 1, BuildOptions{})
	require.NoError(t, err)
	_, err = f.svc.BuildFromOrder(ctx, nil, 2, BuildOptions{})
	require.NoError(t, err)

	sig := entries[0].EventSignature
	n, err := f.rosters.SetEventCompleted(ctx, sig, true)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	res, err := f.svc.RebuildAll(ctx, RebuildOptions{ClearExisting: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Cleared)
	assert.Equal(t, 2, res.Processed)

	rows, err := f.rosters.Query(ctx, domain.RosterFilter{All: true}, domain.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.True(t, row.EventCompleted, row.NaturalKey)
	}
}

func TestRebuildAllClearExistingLeavesOpenEventsOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orders.Put(campOrder(1, 2))

	_, err := f.svc.BuildFromOrder(ctx, nil, 1, BuildOptions{})
	require.NoError(t, err)

	_, err = f.svc.RebuildAll(ctx, RebuildOptions{ClearExisting: true})
	require.NoError(t, err)

	rows, err := f.rosters.Query(ctx, domain.RosterFilter{All: true}, domain.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.False(t, row.EventCompleted)
	}
}

func TestRebuildAllResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for id := int64(1); id <= 3; id++ {
		f.orders.Put(campOrder(id, 1))
	}
	require.NoError(t, f.checkpoints.Save(ctx, rebuildJob, 2))

	res, err := f.svc.RebuildAll(ctx, RebuildOptions{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, int64(3), res.LastOrderID)
}

// cancellingOrders cancels the job context after the first page is listed.
type cancellingOrders struct {
	*memory.Orders
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancellingOrders) ListOrderIDs(ctx context.Context, f domain.OrderFilter) ([]int64, error) {
	ids, err := c.Orders.ListOrderIDs(ctx, f)
	c.once.Do(c.cancel)
	return ids, err
}

func TestRebuildAllStopsBetweenBatches(t *testing.T) {
	f := newFixture(t)
	for id := int64(1); id <= 5; id++ {
		f.orders.Put(campOrder(id, 1))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.svc.orders = &cancellingOrders{Orders: f.orders, cancel: cancel}

	res, err := f.svc.RebuildAll(ctx, RebuildOptions{})
	require.NoError(t, err)

	assert.True(t, res.Stopped)
	assert.Equal(t, 2, res.Processed, "the in-flight batch completes")
	assert.Equal(t, 2, f.rosters.Len())

	cursor, ok, _ := f.checkpoints.Load(context.Background(), rebuildJob)
	assert.True(t, ok)
	assert.Equal(t, int64(2), cursor)
}

func TestRebuildAllUnavailable(t *testing.T) {
	f := newFixture(t)
	f.orders.Put(campOrder(1, 1))
	f.rosters.SetUnavailable(true)

	_, err := f.svc.RebuildAll(context.Background(), RebuildOptions{})
	assert.ErrorIs(t, err, repository.ErrUnavailable)
}

func TestRebuildSpecificOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orders.Put(campOrder(1, 2))
	f.orders.Put(campOrder(2, 1))
	_, err := f.svc.BuildFromOrder(ctx, nil, 1, BuildOptions{})
	require.NoError(t, err)
	_, err = f.svc.BuildFromOrder(ctx, nil, 2, BuildOptions{})
	require.NoError(t, err)

	f.rosters.Put(domain.RosterEntry{NaturalKey: domain.NaturalKey{OrderID: 3, OrderItemID: 31}})
	f.orders.Put(campOrder(1, 1))

	res, err := f.svc.RebuildSpecificOrders(ctx, []int64{1, 3, 1})
	require.NoError(t, err)

	st := res.Statistics
	assert.Equal(t, 2, st.Requested)
	assert.Equal(t, 1, st.Rebuilt)
	assert.Equal(t, 1, st.Missing)
	assert.Equal(t, int64(3), st.Deleted)
	assert.Equal(t, 1, st.Entries)
	assert.Len(t, res.Rosters, 1)

	n, err := f.rosters.CountWhere(ctx, domain.RosterFilter{OrderIDs: []int64{2}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "other orders are untouched")
	assert.Equal(t, 2, f.rosters.Len())
}
