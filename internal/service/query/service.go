package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/repository"
	redisrepo "github.com/kirinyoku/roster-go/internal/repository/redis"
	"github.com/kirinyoku/roster-go/internal/service/roster"
)

type OrderStore interface {
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
}

type RosterStore interface {
	Query(ctx context.Context, f domain.RosterFilter, opts domain.QueryOptions) ([]domain.RosterEntry, error)
	EventSummary(ctx context.Context, sig string) (domain.EventSummary, error)
}

type Builder interface {
	BuildOrder(ctx context.Context, scope *roster.Scope, order *domain.Order, opts roster.BuildOptions) ([]domain.RosterEntry, error)
}

type Config struct {
	OrderRosterTTL  time.Duration
	EventSummaryTTL time.Duration
	DefaultPage     int
	MaxPage         int
}

type Service struct {
	orders  OrderStore
	rosters RosterStore
	builder Builder
	cache   *redisrepo.Cache
	cfg     Config
}

// New builds the read service. A nil cache reads straight from the stores.
func New(orders OrderStore, rosters RosterStore, builder Builder, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.OrderRosterTTL <= 0 {
		cfg.OrderRosterTTL = 60 * time.Second
	}

	if cfg.EventSummaryTTL <= 0 {
		cfg.EventSummaryTTL = 30 * time.Second
	}

	if cfg.DefaultPage <= 0 {
		cfg.DefaultPage = 100
	}

	if cfg.MaxPage <= 0 {
		cfg.MaxPage = 500
	}

	return &Service{
		orders:  orders,
		rosters: rosters,
		builder: builder,
		cache:   cache,
		cfg:     cfg,
	}
}

// OrderRoster returns the stored roster rows of one order, cached.
//
// Parameters:
//   - ctx: request-scoped context.
//   - orderID: ID of the order.
//
// Returns:
//   - []domain.RosterEntry: rows in natural-key order.
//   - error: query.ErrOrderNotFound if the order has no rows and does not
//     exist.
func (s *Service) OrderRoster(ctx context.Context, orderID int64) ([]domain.RosterEntry, error) {
	const op = "service.query.OrderRoster"

	entries, err := redisrepo.ReadThrough(
		ctx,
		s.cache,
		redisrepo.KeyOrderRoster(orderID),
		s.cfg.OrderRosterTTL,
		func(ctx context.Context) ([]domain.RosterEntry, error) {
			rows, err := s.rosters.Query(ctx, domain.RosterFilter{OrderIDs: []int64{orderID}}, domain.QueryOptions{})
			if err != nil {
				return nil, err
			}
			if len(rows) > 0 {
				return rows, nil
			}

			if _, err := s.orders.GetOrder(ctx, orderID); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return nil, ErrOrderNotFound
				}
				return nil, err
			}

			return []domain.RosterEntry{}, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return entries, nil
}

// PreviewOrderRoster builds the rows an order would produce without writing
// or caching them.
func (s *Service) PreviewOrderRoster(ctx context.Context, orderID int64) ([]domain.RosterEntry, error) {
	const op = "service.query.PreviewOrderRoster"

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	entries, err := s.builder.BuildOrder(ctx, nil, order, roster.BuildOptions{DryRun: true})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return entries, nil
}

// EventSummary returns row counts for one event signature, cached.
//
// Returns:
//   - domain.EventSummary: totals for the signature.
//   - error: query.ErrEventNotFound if no row carries the signature.
func (s *Service) EventSummary(ctx context.Context, sig string) (domain.EventSummary, error) {
	const op = "service.query.EventSummary"

	summary, err := redisrepo.ReadThrough(
		ctx,
		s.cache,
		redisrepo.KeyEventSummary(sig),
		s.cfg.EventSummaryTTL,
		func(ctx context.Context) (domain.EventSummary, error) {
			es, err := s.rosters.EventSummary(ctx, sig)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.EventSummary{}, ErrEventNotFound
				}
				return domain.EventSummary{}, err
			}
			return es, nil
		},
	)
	if err != nil {
		return domain.EventSummary{}, fmt.Errorf("%s: %w", op, err)
	}

	return summary, nil
}

// ListEventRoster pages through the rows of one event signature, uncached.
func (s *Service) ListEventRoster(ctx context.Context, sig string, limit, offset int) ([]domain.RosterEntry, error) {
	const op = "service.query.ListEventRoster"

	if limit <= 0 {
		limit = s.cfg.DefaultPage
	}

	if limit > s.cfg.MaxPage {
		limit = s.cfg.MaxPage
	}

	if offset < 0 {
		offset = 0
	}

	rows, err := s.rosters.Query(ctx, domain.RosterFilter{EventSignature: sig}, domain.QueryOptions{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rows, nil
}
