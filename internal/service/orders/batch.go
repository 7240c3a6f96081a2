package orders

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/repository"
	"github.com/kirinyoku/roster-go/internal/service/roster"
	"golang.org/x/sync/errgroup"
)

const sweepJob = "sweep_processing"

type BatchResult struct {
	ProcessedCount   int     `json:"processed_count"`
	CompletedCount   int     `json:"completed_count"`
	SkippedCount     int     `json:"skipped_count"`
	DeferredCount    int     `json:"deferred_count"`
	RosterEntryCount int     `json:"roster_entry_count"`
	FailedOrderIDs   []int64 `json:"failed_order_ids"`
	Success          bool    `json:"success"`
	Message          string  `json:"message"`
	Stopped          bool    `json:"stopped"`
}

func (r *BatchResult) add(res Result) {
	switch {
	case !res.Handled:
		r.SkippedCount++
		return
	case res.CompletionPerformed:
		r.CompletedCount++
	case res.Deferred:
		r.DeferredCount++
	}
	r.ProcessedCount++
	r.RosterEntryCount += res.Entries
}

func (r *BatchResult) merge(o BatchResult) {
	r.ProcessedCount += o.ProcessedCount
	r.CompletedCount += o.CompletedCount
	r.SkippedCount += o.SkippedCount
	r.DeferredCount += o.DeferredCount
	r.RosterEntryCount += o.RosterEntryCount
	r.FailedOrderIDs = append(r.FailedOrderIDs, o.FailedOrderIDs...)
	r.Stopped = r.Stopped || o.Stopped
}

func (r *BatchResult) finish() {
	r.Success = len(r.FailedOrderIDs) == 0
	r.Message = fmt.Sprintf("processed %d orders, completed %d, skipped %d, %d roster entries, %d failed",
		r.ProcessedCount, r.CompletedCount, r.SkippedCount, r.RosterEntryCount, len(r.FailedOrderIDs))
	if r.DeferredCount > 0 {
		r.Message += fmt.Sprintf(", %d awaiting re-check", r.DeferredCount)
	}
	if r.Stopped {
		r.Message += " (stopped early)"
	}
}

// ProcessBatch runs every order through ProcessOrder. One order's failure is
// recorded in FailedOrderIDs and never stops the batch; the batch succeeds
// only with no failures. Store outages abort the batch with an error.
func (s *Service) ProcessBatch(ctx context.Context, orderIDs []int64) (BatchResult, error) {
	res, err := s.processBatch(ctx, roster.NewScope(), orderIDs)
	res.finish()
	return res, err
}

func (s *Service) processBatch(ctx context.Context, scope *roster.Scope, orderIDs []int64) (BatchResult, error) {
	const op = "service.orders.ProcessBatch"

	parts := partition(orderIDs, s.cfg.Workers)
	results := make([]BatchResult, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	for i, ids := range parts {
		g.Go(func() error {
			r, err := s.processPartition(gctx, scope, ids)
			results[i] = r
			return err
		})
	}
	err := g.Wait()

	var res BatchResult
	for _, r := range results {
		res.merge(r)
	}
	slices.Sort(res.FailedOrderIDs)

	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// processPartition runs ids in order. Work on an order that has started is
// never cancelled; ctx only stops the partition before its next order.
func (s *Service) processPartition(ctx context.Context, scope *roster.Scope, ids []int64) (BatchResult, error) {
	var res BatchResult
	work := context.WithoutCancel(ctx)

	for _, id := range ids {
		if ctx.Err() != nil {
			res.Stopped = true
			break
		}

		r, err := s.processOne(work, scope, id)
		if err != nil {
			if repository.IsUnavailable(err) {
				return res, fmt.Errorf("order %d: %w", id, err)
			}
			s.logger.Warn("order processing failed", "order_id", id, "error", err)
			res.FailedOrderIDs = append(res.FailedOrderIDs, id)
			continue
		}
		res.add(r)
	}

	return res, nil
}

// partition splits ids into at most n contiguous, disjoint chunks.
func partition(ids []int64, n int) [][]int64 {
	if len(ids) == 0 {
		return nil
	}
	n = max(1, min(n, len(ids)))
	size := (len(ids) + n - 1) / n

	parts := make([][]int64, 0, n)
	for chunk := range slices.Chunk(ids, size) {
		parts = append(parts, chunk)
	}
	return parts
}

func (s *Service) processOne(ctx context.Context, scope *roster.Scope, id int64) (Result, error) {
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{OrderID: id, Outcome: OutcomeSkipped}, nil
		}
		return Result{}, err
	}
	return s.ProcessOrder(ctx, scope, order)
}

// SweepProcessing processes every order currently in processing, page by
// page, stopping between pages once ctx is cancelled.
func (s *Service) SweepProcessing(ctx context.Context) (BatchResult, error) {
	const op = "service.orders.SweepProcessing"

	started := time.Now()
	defer s.metrics.ObserveJob(sweepJob, started)

	var (
		total BatchResult
		after int64
	)
	scope := roster.NewScope()

	for {
		if ctx.Err() != nil {
			total.Stopped = true
			break
		}

		ids, err := s.orders.ListOrderIDs(ctx, domain.OrderFilter{
			Statuses: []domain.OrderStatus{domain.OrderProcessing},
			AfterID:  after,
			Limit:    s.cfg.SweepPageSize,
		})
		if err != nil {
			total.finish()
			return total, fmt.Errorf("%s: %w", op, err)
		}
		if len(ids) == 0 {
			break
		}

		page, err := s.processBatch(ctx, scope, ids)
		total.merge(page)
		if err != nil {
			total.finish()
			return total, fmt.Errorf("%s: %w", op, err)
		}

		after = ids[len(ids)-1]
		if len(ids) < s.cfg.SweepPageSize {
			break
		}
	}

	total.finish()
	s.logger.Info("processing sweep finished", "message", total.Message)
	return total, nil
}
