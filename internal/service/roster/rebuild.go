package roster

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/repository"
)

const rebuildJob = "rebuild_all"

// EligibleStatuses are the order states that own roster rows.
var EligibleStatuses = []domain.OrderStatus{domain.OrderProcessing, domain.OrderCompleted}

type RebuildOptions struct {
	ClearExisting bool
	BatchSize     int
	// Resume continues after the last checkpointed order instead of
	// starting over.
	Resume bool
}

type RebuildResult struct {
	Processed    int          `json:"processed"`
	Created      int          `json:"created"`
	Errors       int          `json:"errors"`
	RecentErrors []OrderError `json:"recent_errors"`
	Batches      int          `json:"batches"`
	Cleared      int64        `json:"cleared"`
	LastOrderID  int64        `json:"last_order_id"`
	Stopped      bool         `json:"stopped"`
}

func (r *RebuildResult) record(max int, orderID int64, err error) {
	r.Errors++
	r.RecentErrors = append(r.RecentErrors, OrderError{OrderID: orderID, Message: err.Error()})
	if len(r.RecentErrors) > max {
		r.RecentErrors = r.RecentErrors[len(r.RecentErrors)-max:]
	}
}

// RebuildAll rebuilds the rosters of every eligible order in pages of
// BatchSize. Per-order failures are counted and never abort the run. The
// job stops between batches once ctx is cancelled; committed batches stay.
//
// Returns:
//   - RebuildResult: aggregate counts, even when an error is returned.
//   - error: only when the order or roster store cannot be reached.
func (s *Service) RebuildAll(ctx context.Context, opts RebuildOptions) (RebuildResult, error) {
	const op = "service.roster.RebuildAll"

	started := time.Now()
	defer s.metrics.ObserveJob(rebuildJob, started)

	var res RebuildResult

	batch := opts.BatchSize
	if batch <= 0 {
		batch = s.cfg.BatchSize
	}

	var after int64
	if opts.Resume && s.checkpoints != nil {
		cursor, ok, err := s.checkpoints.Load(ctx, rebuildJob)
		if err != nil {
			return res, fmt.Errorf("%s: load checkpoint: %w", op, err)
		}
		if ok {
			after = cursor
			s.logger.Info("resuming rebuild", "after_order_id", after)
		}
	}

	var build BuildOptions
	if opts.ClearExisting {
		if after > 0 {
			s.logger.Warn("clear_existing ignored on resumed rebuild", "after_order_id", after)
		} else {
			sigs, err := s.rosters.CompletedEvents(ctx)
			if err != nil {
				return res, fmt.Errorf("%s: completed events: %w", op, err)
			}
			build.Completed = make(map[string]bool, len(sigs))
			for _, sig := range sigs {
				build.Completed[sig] = true
			}

			n, err := s.rosters.DeleteWhere(ctx, domain.RosterFilter{All: true})
			if err != nil {
				return res, fmt.Errorf("%s: clear: %w", op, err)
			}
			res.Cleared = n
			s.invalidateAll(ctx)
		}
	}

	scope := NewScope()
	work := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			res.Stopped = true
			break
		}

		ids, err := s.orders.ListOrderIDs(ctx, domain.OrderFilter{
			Statuses: EligibleStatuses,
			AfterID:  after,
			Limit:    batch,
		})
		if err != nil {
			if ctx.Err() != nil {
				res.Stopped = true
				break
			}
			return res, fmt.Errorf("%s: list orders: %w", op, err)
		}

		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			entries, err := s.BuildFromOrder(work, scope, id, build)
			if err != nil {
				if repository.IsUnavailable(err) {
					return res, fmt.Errorf("%s: order %d: %w", op, id, err)
				}
				s.logger.Warn("rebuild order failed", "order_id", id, "error", err)
				res.record(s.cfg.MaxErrors, id, err)
				continue
			}
			res.Processed++
			res.Created += len(entries)
		}

		after = ids[len(ids)-1]
		res.LastOrderID = after
		res.Batches++

		if s.checkpoints != nil {
			if err := s.checkpoints.Save(work, rebuildJob, after); err != nil {
				s.logger.Warn("save rebuild checkpoint failed", "after_order_id", after, "error", err)
			}
		}

		if len(ids) < batch {
			break
		}
	}

	if !res.Stopped && s.checkpoints != nil {
		if err := s.checkpoints.Clear(work, rebuildJob); err != nil {
			s.logger.Warn("clear rebuild checkpoint failed", "error", err)
		}
	}

	s.logger.Info("rebuild finished",
		"processed", res.Processed,
		"created", res.Created,
		"errors", res.Errors,
		"batches", res.Batches,
		"stopped", res.Stopped,
	)

	return res, nil
}

type TargetedStats struct {
	Requested int          `json:"requested"`
	Rebuilt   int          `json:"rebuilt"`
	Missing   int          `json:"missing"`
	Deleted   int64        `json:"deleted"`
	Entries   int          `json:"entries"`
	Failed    []OrderError `json:"failed"`
}

type TargetedResult struct {
	Rosters    []domain.RosterEntry `json:"rosters"`
	Statistics TargetedStats        `json:"statistics"`
}

// RebuildSpecificOrders drops the stored rows of exactly the given orders
// and rebuilds them. Rows of orders that no longer exist are only dropped.
func (s *Service) RebuildSpecificOrders(ctx context.Context, orderIDs []int64) (TargetedResult, error) {
	const op = "service.roster.RebuildSpecificOrders"

	ids := slices.Clone(orderIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var res TargetedResult
	res.Statistics.Requested = len(ids)
	if len(ids) == 0 {
		return res, nil
	}

	before, err := s.rosters.CountWhere(ctx, domain.RosterFilter{OrderIDs: ids})
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	res.Statistics.Deleted = before

	scope := NewScope()

	for _, id := range ids {
		lk := repository.Classify(s.orders.GetOrder(ctx, id))
		if err := lk.Err(); err != nil {
			if repository.IsUnavailable(err) {
				return res, fmt.Errorf("%s: %w", op, err)
			}
			res.Statistics.Failed = append(res.Statistics.Failed, OrderError{OrderID: id, Message: err.Error()})
			continue
		}

		order, ok := lk.Get()
		if !ok {
			if _, err := s.rosters.DeleteWhere(ctx, domain.RosterFilter{OrderIDs: []int64{id}}); err != nil {
				return res, fmt.Errorf("%s: %w", op, err)
			}
			s.invalidate(ctx, []int64{id}, nil)
			res.Statistics.Missing++
			continue
		}

		entries, err := s.BuildOrder(ctx, scope, order, BuildOptions{})
		if err != nil {
			if repository.IsUnavailable(err) {
				return res, fmt.Errorf("%s: %w", op, err)
			}
			s.logger.Warn("targeted rebuild failed", "order_id", id, "error", err)
			res.Statistics.Failed = append(res.Statistics.Failed, OrderError{OrderID: id, Message: err.Error()})
			continue
		}

		res.Rosters = append(res.Rosters, entries...)
		res.Statistics.Rebuilt++
		res.Statistics.Entries += len(entries)
	}

	return res, nil
}
