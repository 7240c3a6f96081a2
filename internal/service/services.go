package service

import (
	"context"
	"log/slog"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/matcher"
	"github.com/kirinyoku/roster-go/internal/metrics"
	redisrepo "github.com/kirinyoku/roster-go/internal/repository/redis"
	"github.com/kirinyoku/roster-go/internal/service/admin"
	"github.com/kirinyoku/roster-go/internal/service/orders"
	"github.com/kirinyoku/roster-go/internal/service/query"
	"github.com/kirinyoku/roster-go/internal/service/reconcile"
	"github.com/kirinyoku/roster-go/internal/service/roster"
	"github.com/kirinyoku/roster-go/internal/signature"
	"github.com/kirinyoku/roster-go/internal/uow"
)

type Services struct {
	Roster    *roster.Service
	Orders    *orders.Service
	Reconcile *reconcile.Service
	Query     *query.Service
	Admin     *admin.Service
	Signature *signature.Generator
}

type Config struct {
	Roster    roster.Config
	Orders    orders.Config
	Reconcile reconcile.Config
	Query     query.Config
	// Table and DateActivities configure event signatures.
	Table          *signature.Table
	DateActivities []string
}

type OrderStore interface {
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrderIDs(ctx context.Context, f domain.OrderFilter) ([]int64, error)
	UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus, note string) error
}

type RosterStore interface {
	roster.RosterStore
	OrderIDs(ctx context.Context, f domain.RosterFilter, after int64, limit int) ([]int64, error)
	SetEventCompleted(ctx context.Context, sig string, completed bool) (int64, error)
	EventSummary(ctx context.Context, sig string) (domain.EventSummary, error)
}

// Backend is every store and side channel the services run on. Optional
// members may be left nil: no invalidation, no checkpoints, no deferred
// re-checks, no cross-process lock, no notifications, no cache.
type Backend struct {
	Orders  OrderStore
	Catalog matcher.Catalog
	Players roster.PlayerStore
	Rosters RosterStore
	Runner  uow.Runner

	Invalidator roster.Invalidator
	Checkpoints roster.Checkpoints
	Deferred    orders.Scheduler
	Locker      orders.Locker
	Notifier    orders.CompletionNotifier
	Cache       *redisrepo.Cache
}

func NewServices(b Backend, m *metrics.Registry, logger *slog.Logger, cfg Config) *Services {
	if logger == nil {
		logger = slog.Default()
	}

	gen := signature.New(cfg.Table, cfg.DateActivities)

	rosters := roster.New(roster.Deps{
		Orders:      b.Orders,
		Rosters:     b.Rosters,
		Players:     b.Players,
		Events:      matcher.NewEventMatcher(b.Catalog, gen),
		Invalidator: b.Invalidator,
		Checkpoints: b.Checkpoints,
		Metrics:     m,
		Logger:      logger.With("service", "roster"),
	}, cfg.Roster)

	ord := orders.New(orders.Deps{
		Orders:    b.Orders,
		Builder:   rosters,
		Scheduler: b.Deferred,
		Locker:    b.Locker,
		Notifier:  b.Notifier,
		Metrics:   m,
		Logger:    logger.With("service", "orders"),
	}, cfg.Orders)

	rec := reconcile.New(reconcile.Deps{
		Orders:      b.Orders,
		Rosters:     b.Rosters,
		Builder:     rosters,
		Invalidator: b.Invalidator,
		Metrics:     m,
		Logger:      logger.With("service", "reconcile"),
	}, cfg.Reconcile)

	return &Services{
		Roster:    rosters,
		Orders:    ord,
		Reconcile: rec,
		Query:     query.New(b.Orders, b.Rosters, rosters, b.Cache, cfg.Query),
		Admin:     admin.New(b.Rosters, b.Invalidator, b.Runner, logger.With("service", "admin")),
		Signature: gen,
	}
}
