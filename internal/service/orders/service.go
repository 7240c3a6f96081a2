// Package orders drives the per-order lifecycle: it decides whether an order
// is actionable, has its roster rebuilt and moves processing orders to
// completed, falling back to a deferred re-check when the write does not
// stick.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/metrics"
	"github.com/kirinyoku/roster-go/internal/repository"
	"github.com/kirinyoku/roster-go/internal/service/roster"
)

// TaskVerifyCompletion is the deferred task scheduled when a completion
// write was not observed on reload.
const TaskVerifyCompletion = "order.verify_completion"

const completionNote = "Roster built, order completed by roster pipeline."

type OrderStore interface {
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrderIDs(ctx context.Context, f domain.OrderFilter) ([]int64, error)
	UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus, note string) error
}

type Builder interface {
	BuildOrder(ctx context.Context, scope *roster.Scope, order *domain.Order, opts roster.BuildOptions) ([]domain.RosterEntry, error)
}

type Scheduler interface {
	ScheduleDeferred(ctx context.Context, task string, payload any, delay time.Duration) error
}

// Locker serialises work on one order across processes. LockOrder reports
// false when another worker holds the lock.
type Locker interface {
	LockOrder(ctx context.Context, orderID int64, ttl time.Duration) (bool, error)
	UnlockOrder(ctx context.Context, orderID int64) error
}

// CompletionNotifier is told once per real completion.
type CompletionNotifier interface {
	OrderCompleted(ctx context.Context, order *domain.Order) error
}

// RecheckPayload is the body of a TaskVerifyCompletion task.
type RecheckPayload struct {
	OrderID int64 `json:"order_id"`
	Attempt int   `json:"attempt"`
}

type Config struct {
	// MinBackoff is the floor of the first re-check delay; later attempts
	// double it.
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int
	LockTTL     time.Duration
	// SweepPageSize bounds how many processing orders one sweep page loads.
	SweepPageSize int
	// Workers is how many disjoint partitions of a batch run in parallel.
	Workers int
}

type Deps struct {
	Orders    OrderStore
	Builder   Builder
	Scheduler Scheduler
	Locker    Locker
	Notifier  CompletionNotifier
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

type Service struct {
	orders    OrderStore
	builder   Builder
	scheduler Scheduler
	locker    Locker
	notifier  CompletionNotifier
	metrics   *metrics.Registry
	logger    *slog.Logger
	cfg       Config
}

func New(d Deps, cfg Config) *Service {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 30 * time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.SweepPageSize <= 0 {
		cfg.SweepPageSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	return &Service{
		orders:    d.Orders,
		builder:   d.Builder,
		scheduler: d.Scheduler,
		locker:    d.Locker,
		notifier:  d.Notifier,
		metrics:   d.Metrics,
		logger:    d.Logger,
		cfg:       cfg,
	}
}

type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeLocked    Outcome = "locked"
	OutcomeRefreshed Outcome = "refreshed"
	OutcomeCompleted Outcome = "completed"
	OutcomeDeferred  Outcome = "deferred"
)

type Result struct {
	OrderID int64   `json:"order_id"`
	Outcome Outcome `json:"outcome"`
	// Handled is false when the order was not in an actionable state or
	// another worker held its lock.
	Handled bool `json:"handled"`
	// CompletionPerformed is true only for the invocation whose write moved
	// the order to completed.
	CompletionPerformed bool `json:"completion_performed"`
	// Deferred is true when the completion write was not observed and a
	// re-check was scheduled.
	Deferred bool `json:"deferred"`
	Entries  int  `json:"entries"`
}

// ProcessOrder runs one order through the lifecycle.
//
// Parameters:
//   - ctx: request-scoped context.
//   - scope: request scope shared with the roster builder; may be nil.
//   - order: the order as last read from the order store.
//
// Returns:
//   - Result: what happened; Handled reports the boolean lifecycle outcome.
//   - error: roster build or store failures. A completion write that did
//     not stick is not an error.
func (s *Service) ProcessOrder(ctx context.Context, scope *roster.Scope, order *domain.Order) (Result, error) {
	const op = "service.orders.ProcessOrder"

	res := Result{OrderID: order.ID, Outcome: OutcomeSkipped}

	if !order.Status.Actionable() {
		s.logger.Debug("order not actionable", "order_id", order.ID, "status", order.Status)
		s.metrics.OrderProcessed(string(res.Outcome))
		return res, nil
	}

	if s.locker != nil {
		ok, err := s.locker.LockOrder(ctx, order.ID, s.cfg.LockTTL)
		if err != nil {
			return res, fmt.Errorf("%s: lock: %w", op, err)
		}
		if !ok {
			s.logger.Info("order locked by another worker, skipping", "order_id", order.ID)
			res.Outcome = OutcomeLocked
			s.metrics.OrderProcessed(string(res.Outcome))
			return res, nil
		}
		defer func() {
			if err := s.locker.UnlockOrder(context.WithoutCancel(ctx), order.ID); err != nil {
				s.logger.Warn("release order lock failed", "order_id", order.ID, "error", err)
			}
		}()
	}

	entries, err := s.builder.BuildOrder(ctx, scope, order, roster.BuildOptions{})
	if err != nil {
		s.metrics.OrderProcessed("failed")
		return res, fmt.Errorf("%s: %w", op, err)
	}
	res.Entries = len(entries)
	res.Handled = true

	if order.Status == domain.OrderCompleted {
		res.Outcome = OutcomeRefreshed
		s.metrics.OrderProcessed(string(res.Outcome))
		return res, nil
	}

	done, err := s.complete(ctx, order)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}

	if done {
		res.Outcome = OutcomeCompleted
		res.CompletionPerformed = true
	} else {
		s.logger.Warn("completion not persisted, scheduling re-check", "order_id", order.ID)
		if err := s.scheduleRecheck(ctx, RecheckPayload{OrderID: order.ID}); err != nil {
			s.logger.Error("schedule completion re-check failed", "order_id", order.ID, "error", err)
		}
		res.Outcome = OutcomeDeferred
		res.Deferred = true
	}

	s.metrics.OrderProcessed(string(res.Outcome))
	return res, nil
}

// ProcessOrderByID loads the order and runs ProcessOrder.
func (s *Service) ProcessOrderByID(ctx context.Context, scope *roster.Scope, orderID int64) (Result, error) {
	const op = "service.orders.ProcessOrderByID"

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{OrderID: orderID}, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}
		return Result{OrderID: orderID}, fmt.Errorf("%s: %w", op, err)
	}

	return s.ProcessOrder(ctx, scope, order)
}

// complete writes the completed status, reloads the order and notifies once
// the write is observed. It reports whether the order now reads completed.
func (s *Service) complete(ctx context.Context, order *domain.Order) (bool, error) {
	if err := s.orders.UpdateOrderStatus(ctx, order.ID, domain.OrderCompleted, completionNote); err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}

	reloaded, err := s.orders.GetOrder(ctx, order.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("reload: %w", err)
	}

	if reloaded.Status != domain.OrderCompleted {
		return false, nil
	}

	s.metrics.Completed()
	s.notify(ctx, reloaded)
	return true, nil
}

func (s *Service) notify(ctx context.Context, order *domain.Order) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.OrderCompleted(context.WithoutCancel(ctx), order); err != nil {
		s.logger.Error("completion notification failed", "order_id", order.ID, "error", err)
	}
}

func (s *Service) scheduleRecheck(ctx context.Context, p RecheckPayload) error {
	if s.scheduler == nil {
		return errors.New("no deferred scheduler configured")
	}
	return s.scheduler.ScheduleDeferred(context.WithoutCancel(ctx), TaskVerifyCompletion, p, s.Backoff(p.Attempt))
}

// Backoff returns the delay before re-check attempt n (0-based).
func (s *Service) Backoff(attempt int) time.Duration {
	d := s.cfg.MinBackoff
	for range attempt {
		d *= 2
		if d >= s.cfg.MaxBackoff {
			return s.cfg.MaxBackoff
		}
	}
	return d
}
