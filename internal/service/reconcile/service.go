// Package reconcile repairs drift between the order store and the roster
// store: rows whose order vanished are orphans, every other order is
// rebuilt from its live state.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/metrics"
	"github.com/kirinyoku/roster-go/internal/repository"
	"github.com/kirinyoku/roster-go/internal/service/roster"
)

const job = "reconcile"

type OrderStore interface {
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
}

type RosterStore interface {
	OrderIDs(ctx context.Context, f domain.RosterFilter, after int64, limit int) ([]int64, error)
	DeleteWhere(ctx context.Context, f domain.RosterFilter) (int64, error)
}

type Builder interface {
	BuildOrder(ctx context.Context, scope *roster.Scope, order *domain.Order, opts roster.BuildOptions) ([]domain.RosterEntry, error)
}

type Invalidator interface {
	InvalidateRosters(ctx context.Context, orderIDs []int64, signatures []string) error
}

type Config struct {
	BatchSize int
	MaxErrors int
}

type Deps struct {
	Orders      OrderStore
	Rosters     RosterStore
	Builder     Builder
	Invalidator Invalidator
	Metrics     *metrics.Registry
	Logger      *slog.Logger
}

type Service struct {
	orders      OrderStore
	rosters     RosterStore
	builder     Builder
	invalidator Invalidator
	metrics     *metrics.Registry
	logger      *slog.Logger
	cfg         Config
}

func New(d Deps, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = 20
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	return &Service{
		orders:      d.Orders,
		rosters:     d.Rosters,
		builder:     d.Builder,
		invalidator: d.Invalidator,
		metrics:     d.Metrics,
		logger:      d.Logger,
		cfg:         cfg,
	}
}

type Options struct {
	// DateFrom and DateTo scope the sweep by roster order date.
	DateFrom *time.Time
	DateTo   *time.Time
	// DeleteObsolete defaults to true for a full sweep and to false when a
	// date range is given.
	DeleteObsolete *bool
	BatchSize      int
}

// Destructive reports whether orphans are deleted under these options.
func (o Options) Destructive() bool {
	if o.DeleteObsolete != nil {
		return *o.DeleteObsolete
	}
	return o.DateFrom == nil && o.DateTo == nil
}

func (o Options) filter() domain.RosterFilter {
	f := domain.RosterFilter{OrderDateFrom: o.DateFrom, OrderDateTo: o.DateTo}
	if f.Empty() {
		f.All = true
	}
	return f
}

// Result reports one reconcile run. Skipped counts live orders whose status
// the pipeline does not act on; their rows are left as stored.
type Result struct {
	Scanned     int                 `json:"scanned"`
	Synced      int                 `json:"synced"`
	Skipped     int                 `json:"skipped"`
	Entries     int                 `json:"entries"`
	Orphans     []int64             `json:"orphans"`
	Deleted     int64               `json:"deleted"`
	Destructive bool                `json:"destructive"`
	Errors      []roster.OrderError `json:"errors"`
	ErrorCount  int                 `json:"error_count"`
	Stopped     bool                `json:"stopped"`
}

func (r *Result) record(max int, orderID int64, err error) {
	r.ErrorCount++
	r.Errors = append(r.Errors, roster.OrderError{OrderID: orderID, Message: err.Error()})
	if len(r.Errors) > max {
		r.Errors = r.Errors[len(r.Errors)-max:]
	}
}

// Reconcile walks the orders referenced by stored roster rows in batches.
// Orphans are deleted only when the options are destructive; otherwise they
// are reported. The job stops between batches once ctx is cancelled.
//
// Returns:
//   - Result: counts and the orphan ids, even when an error is returned.
//   - error: only when a store cannot be reached.
func (s *Service) Reconcile(ctx context.Context, opts Options) (Result, error) {
	const op = "service.reconcile.Reconcile"

	started := time.Now()
	defer s.metrics.ObserveJob(job, started)

	res := Result{Destructive: opts.Destructive()}

	batch := opts.BatchSize
	if batch <= 0 {
		batch = s.cfg.BatchSize
	}

	filter := opts.filter()
	scope := roster.NewScope()
	work := context.WithoutCancel(ctx)

	var after int64
	for {
		if ctx.Err() != nil {
			res.Stopped = true
			break
		}

		ids, err := s.rosters.OrderIDs(ctx, filter, after, batch)
		if err != nil {
			if ctx.Err() != nil {
				res.Stopped = true
				break
			}
			return res, fmt.Errorf("%s: list roster orders: %w", op, err)
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			if err := s.reconcileOrder(work, scope, id, &res); err != nil {
				if repository.IsUnavailable(err) {
					return res, fmt.Errorf("%s: order %d: %w", op, id, err)
				}
				s.logger.Warn("reconcile order failed", "order_id", id, "error", err)
				res.record(s.cfg.MaxErrors, id, err)
			}
		}

		after = ids[len(ids)-1]
		if len(ids) < batch {
			break
		}
	}

	s.metrics.OrphansFound(len(res.Orphans))
	s.logger.Info("reconcile finished",
		"scanned", res.Scanned,
		"synced", res.Synced,
		"orphans", len(res.Orphans),
		"deleted", res.Deleted,
		"errors", res.ErrorCount,
		"stopped", res.Stopped,
	)

	return res, nil
}

func (s *Service) reconcileOrder(ctx context.Context, scope *roster.Scope, id int64, res *Result) error {
	res.Scanned++

	lk := repository.Classify(s.orders.GetOrder(ctx, id))
	if err := lk.Err(); err != nil {
		return err
	}

	order, ok := lk.Get()
	if !ok {
		res.Orphans = append(res.Orphans, id)
		if !res.Destructive {
			return nil
		}

		n, err := s.rosters.DeleteWhere(ctx, domain.RosterFilter{OrderIDs: []int64{id}})
		if err != nil {
			return err
		}
		res.Deleted += n
		s.invalidate(ctx, id)
		return nil
	}

	if !order.Status.Actionable() {
		s.logger.Debug("order not actionable, rows left as stored", "order_id", id, "status", order.Status)
		res.Skipped++
		return nil
	}

	entries, err := s.builder.BuildOrder(ctx, scope, order, roster.BuildOptions{})
	if err != nil {
		return err
	}
	res.Synced++
	res.Entries += len(entries)
	return nil
}

func (s *Service) invalidate(ctx context.Context, orderID int64) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateRosters(ctx, []int64{orderID}, nil); err != nil {
		s.logger.Warn("roster cache invalidation failed", "order_id", orderID, "error", err)
	}
}
