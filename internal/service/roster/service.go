package roster

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/matcher"
	"github.com/kirinyoku/roster-go/internal/metrics"
	"github.com/kirinyoku/roster-go/internal/registrant"
	"github.com/kirinyoku/roster-go/internal/repository"
)

type OrderStore interface {
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrderIDs(ctx context.Context, f domain.OrderFilter) ([]int64, error)
}

type RosterStore interface {
	ReplaceOrder(ctx context.Context, orderID int64, entries []domain.RosterEntry) (int, error)
	DeleteWhere(ctx context.Context, f domain.RosterFilter) (int64, error)
	Query(ctx context.Context, f domain.RosterFilter, opts domain.QueryOptions) ([]domain.RosterEntry, error)
	CountWhere(ctx context.Context, f domain.RosterFilter) (int64, error)
	CompletedSignatures(ctx context.Context, sigs []string) (map[string]bool, error)
	CompletedEvents(ctx context.Context) ([]string, error)
}

type PlayerStore interface {
	GetPlayersByOwner(ctx context.Context, ownerID int64) ([]domain.PlayerProfile, error)
}

// Invalidator is told about roster mutations so cached read paths refresh.
type Invalidator interface {
	InvalidateRosters(ctx context.Context, orderIDs []int64, signatures []string) error
	InvalidateAllRosters(ctx context.Context) error
}

// Checkpoints persists the progress cursor of long-running jobs.
type Checkpoints interface {
	Load(ctx context.Context, job string) (int64, bool, error)
	Save(ctx context.Context, job string, cursor int64) error
	Clear(ctx context.Context, job string) error
}

type Config struct {
	BatchSize int
	// MaxErrors caps the error list returned by jobs.
	MaxErrors int
}

type Deps struct {
	Orders      OrderStore
	Rosters     RosterStore
	Players     PlayerStore
	Events      *matcher.EventMatcher
	Extractor   *registrant.Extractor
	Invalidator Invalidator
	Checkpoints Checkpoints
	Metrics     *metrics.Registry
	Logger      *slog.Logger
}

type Service struct {
	orders      OrderStore
	rosters     RosterStore
	players     PlayerStore
	events      *matcher.EventMatcher
	extractor   *registrant.Extractor
	invalidator Invalidator
	checkpoints Checkpoints
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

	if d.Extractor == nil {
		d.Extractor = registrant.NewExtractor()
	}

	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	return &Service{
		orders:      d.Orders,
		rosters:     d.Rosters,
		players:     d.Players,
		events:      d.Events,
		extractor:   d.Extractor,
		invalidator: d.Invalidator,
		checkpoints: d.Checkpoints,
		metrics:     d.Metrics,
		logger:      d.Logger,
		cfg:         cfg,
	}
}

type BuildOptions struct {
	// DryRun computes entries without writing them.
	DryRun bool
	// Completed holds signatures that stay completed even when no stored
	// row carries them anymore.
	Completed map[string]bool
}

// BuildFromOrder computes the roster rows of one order and, unless DryRun is
// set, makes them the complete stored set for that order.
//
// Parameters:
//   - ctx: request-scoped context.
//   - scope: request scope; orders already built in it are returned as-is.
//   - orderID: order to build.
//   - opts: build options.
//
// Returns:
//   - []domain.RosterEntry: rows in natural-key order; empty when the order
//     does not exist.
//   - error: *ExtractionError for malformed line items, or a store error.
func (s *Service) BuildFromOrder(
	ctx context.Context,
	scope *Scope,
	orderID int64,
	opts BuildOptions,
) ([]domain.RosterEntry, error) {
	const op = "service.roster.BuildFromOrder"

	if entries, ok := scope.lookup(orderID); ok {
		return entries, nil
	}

	lk := repository.Classify(s.orders.GetOrder(ctx, orderID))
	if err := lk.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	order, ok := lk.Get()
	if !ok {
		s.logger.Debug("order not found, nothing to build", "order_id", orderID)
		return nil, nil
	}

	return s.BuildOrder(ctx, scope, order, opts)
}

// BuildOrder is BuildFromOrder for an order the caller already loaded.
func (s *Service) BuildOrder(
	ctx context.Context,
	scope *Scope,
	order *domain.Order,
	opts BuildOptions,
) ([]domain.RosterEntry, error) {
	const op = "service.roster.BuildOrder"

	if entries, ok := scope.lookup(order.ID); ok {
		return entries, nil
	}

	entries, err := s.extract(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !opts.DryRun {
		if err := s.persist(ctx, order.ID, entries, opts.Completed); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		scope.remember(order.ID, entries)
	}

	return entries, nil
}

func (s *Service) extract(ctx context.Context, order *domain.Order) ([]domain.RosterEntry, error) {
	var (
		entries []domain.RosterEntry
		players []domain.PlayerProfile
		loaded  bool
	)

	for _, item := range order.LineItems {
		count, err := registrant.Count(item)
		if err != nil {
			return nil, &ExtractionError{OrderID: order.ID, ItemID: item.ID, Err: err}
		}
		if count == 0 {
			continue
		}

		lk := s.events.Resolve(ctx, item)
		if err := lk.Err(); err != nil {
			return nil, &ExtractionError{OrderID: order.ID, ItemID: item.ID, Err: err}
		}

		event, ok := lk.Get()
		if !ok {
			s.logger.Warn("line item references unknown product, skipping",
				"order_id", order.ID,
				"item_id", item.ID,
				"product_id", item.ProductID,
				"variation_id", item.VariationID,
			)
			continue
		}

		sig := s.events.Signature(event)
		hold := registrant.CapacityHold(item)

		for slot := range count {
			sl, err := s.extractor.Extract(item, slot, order.Billing)
			if err != nil {
				return nil, &ExtractionError{OrderID: order.ID, ItemID: item.ID, Err: err}
			}

			reg := sl.Registrant
			present := sl.Present

			if sl.AssignedPlayer != registrant.NoPlayer && s.players != nil {
				if !loaded {
					players, err = s.players.GetPlayersByOwner(ctx, order.CustomerID)
					if err != nil {
						return nil, &ExtractionError{OrderID: order.ID, ItemID: item.ID, Err: err}
					}
					loaded = true
				}

				if p, ok := matcher.MatchByIndex(sl.AssignedPlayer, players); ok {
					reg = matcher.ApplyProfile(reg, p)
					present = true
				} else {
					s.logger.Warn("assigned player not found",
						"order_id", order.ID,
						"item_id", item.ID,
						"slot", slot,
						"player_index", sl.AssignedPlayer,
					)
				}
			}

			entries = append(entries, domain.RosterEntry{
				NaturalKey: domain.NaturalKey{
					OrderID:             order.ID,
					OrderItemID:         item.ID,
					RegistrantSlotIndex: slot,
				},
				Registrant:     reg,
				EventSignature: sig,
				Event:          event,
				IsPlaceholder:  hold || !present,
				Pricing:        item.Pricing,
				OrderDate:      order.CreatedAt,
			})
		}
	}

	return entries, nil
}

// persist replaces the order's rows. Rows of an event an operator marked
// completed stay completed, as do rows whose signature is in keep.
func (s *Service) persist(ctx context.Context, orderID int64, entries []domain.RosterEntry, keep map[string]bool) error {
	prev, err := s.rosters.Query(ctx, domain.RosterFilter{OrderIDs: []int64{orderID}}, domain.QueryOptions{})
	if err != nil {
		return err
	}

	sigs := signatures(entries)
	if len(sigs) > 0 {
		completed, err := s.rosters.CompletedSignatures(ctx, sigs)
		if err != nil {
			return err
		}
		for i := range entries {
			if completed[entries[i].EventSignature] || keep[entries[i].EventSignature] {
				entries[i].EventCompleted = true
			}
		}
	}

	n, err := s.rosters.ReplaceOrder(ctx, orderID, entries)
	if err != nil {
		return err
	}
	s.metrics.RowsWritten(n)

	s.invalidate(ctx, []int64{orderID}, append(sigs, signatures(prev)...))
	return nil
}

func (s *Service) invalidate(ctx context.Context, orderIDs []int64, sigs []string) {
	if s.invalidator == nil {
		return
	}
	slices.Sort(sigs)
	if err := s.invalidator.InvalidateRosters(ctx, orderIDs, slices.Compact(sigs)); err != nil {
		s.logger.Warn("roster cache invalidation failed", "order_ids", orderIDs, "error", err)
	}
}

func (s *Service) invalidateAll(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateAllRosters(ctx); err != nil {
		s.logger.Warn("roster cache invalidation failed", "error", err)
	}
}

func signatures(entries []domain.RosterEntry) []string {
	var out []string
	for _, e := range entries {
		if !slices.Contains(out, e.EventSignature) {
			out = append(out, e.EventSignature)
		}
	}
	return out
}
