package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/roster-go/internal/config"
	"github.com/kirinyoku/roster-go/internal/metrics"
	"github.com/kirinyoku/roster-go/internal/postgres"
	"github.com/kirinyoku/roster-go/internal/queue"
	redisx "github.com/kirinyoku/roster-go/internal/redis"
	postgresrepo "github.com/kirinyoku/roster-go/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/roster-go/internal/repository/redis"
	"github.com/kirinyoku/roster-go/internal/service"
	"github.com/kirinyoku/roster-go/internal/service/orders"
	"github.com/kirinyoku/roster-go/internal/service/reconcile"
	"github.com/kirinyoku/roster-go/internal/service/roster"
	"github.com/kirinyoku/roster-go/internal/signature"
	"github.com/redis/go-redis/v9"
)

// Components is the wired dependency graph shared by the server and the
// operator CLI.
type Components struct {
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Store     *postgresrepo.Store
	Deferred  *redisrepo.DeferredQueue
	PubSub    *redisrepo.RosterPubSub
	Limiter   *redisrepo.SlidingWindowLimiter
	Publisher *queue.Publisher
	Metrics   *metrics.Registry
	Services  *service.Services
}

// Wire connects to PostgreSQL and Redis and builds every service.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	const op = "app.Wire"

	pool, err := postgres.New(ctx, postgres.Config{DSN: cfg.Postgres.DSN(), MaxConns: cfg.Postgres.MaxConns})
	if err != nil {
		return nil, fmt.Errorf("%s: initialize postgres: %w", op, err)
	}

	rdb, err := redisx.New(ctx, redisx.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: initialize redis: %w", op, err)
	}

	store := postgresrepo.NewStore(pool)
	cache := redisrepo.New(rdb)
	pubsub := redisrepo.NewRosterPubSub(rdb)
	deferred := redisrepo.NewDeferredQueue(rdb, nil, logger.With("component", "deferred"))
	reg := metrics.NewRegistry()

	c := &Components{
		Pool:     pool,
		Redis:    rdb,
		Store:    store,
		Deferred: deferred,
		PubSub:   pubsub,
		Limiter:  redisrepo.NewSlidingWindowLimiter(rdb, "admin_jobs", 5, time.Minute, nil),
		Metrics:  reg,
	}

	var notifier orders.CompletionNotifier = queue.Disabled{}
	if cfg.AMQP.Enabled() {
		c.Publisher = queue.NewPublisher(cfg.AMQP.URL, logger.With("component", "publisher"))
		notifier = c.Publisher
	}

	table := loadTable(ctx, cfg.Signature, store.Catalog(), logger)

	c.Services = service.NewServices(service.Backend{
		Orders:      store.Orders(),
		Catalog:     store.Catalog(),
		Players:     store.Players(),
		Rosters:     store.Rosters(),
		Runner:      store,
		Invalidator: redisrepo.NewInvalidator(cache, pubsub),
		Checkpoints: redisrepo.NewCheckpoints(rdb),
		Deferred:    deferred,
		Locker:      redisrepo.NewOrderLocks(rdb),
		Notifier:    notifier,
		Cache:       cache,
	}, reg, logger, service.Config{
		Roster:    roster.Config{BatchSize: cfg.Jobs.RebuildBatchSize},
		Reconcile: reconcile.Config{BatchSize: cfg.Jobs.RebuildBatchSize},
		Orders: orders.Config{
			MinBackoff:  cfg.Jobs.RecheckMinBackoff,
			MaxAttempts: cfg.Jobs.RecheckMaxAttempts,
			LockTTL:     cfg.Jobs.OrderLockTTL,
			Workers:     cfg.Jobs.BatchWorkers,
		},
		Table:          table,
		DateActivities: cfg.Signature.DateDistinguishing,
	})

	return c, nil
}

// Close releases whatever connections were opened. Unset members are
// skipped.
func (c *Components) Close() {
	if c.Publisher != nil {
		_ = c.Publisher.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}

type aliasSource interface {
	LocaleAliases(ctx context.Context) ([]signature.Alias, error)
}

// loadTable layers the optional alias file and the catalog's translation
// sets over the built-in table. A source that fails to load is skipped.
func loadTable(ctx context.Context, cfg config.SignatureConfig, catalog aliasSource, logger *slog.Logger) *signature.Table {
	table := signature.DefaultTable()

	if cfg.LocaleTablePath != "" {
		t, err := signature.LoadTable(cfg.LocaleTablePath)
		if err != nil {
			logger.Warn("locale alias file not loaded", "path", cfg.LocaleTablePath, "error", err)
		} else {
			table = t
		}
	}

	aliases, err := catalog.LocaleAliases(ctx)
	if err != nil {
		logger.Warn("catalog locale aliases not loaded", "error", err)
		return table
	}

	table = table.With(aliases...)
	logger.Info("locale table loaded", "entries", table.Len(), "catalog_sets", len(aliases))
	return table
}
