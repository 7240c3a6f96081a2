package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/repository"
)

// HandleTask decodes a deferred task body and dispatches it.
func (s *Service) HandleTask(ctx context.Context, task string, payload []byte) error {
	const op = "service.orders.HandleTask"

	if task != TaskVerifyCompletion {
		return fmt.Errorf("%s: unknown task %q: %w", op, task, ErrInvalidTask)
	}

	var p RecheckPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.OrderID <= 0 {
		return fmt.Errorf("%s: %w", op, ErrInvalidTask)
	}

	return s.RecheckCompletion(ctx, p)
}

// RecheckCompletion verifies that an earlier completion write persisted.
// A processing order gets the write retried; while it still does not stick
// another re-check is scheduled until MaxAttempts is reached.
func (s *Service) RecheckCompletion(ctx context.Context, p RecheckPayload) error {
	const op = "service.orders.RecheckCompletion"

	order, err := s.orders.GetOrder(ctx, p.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("re-check for vanished order", "order_id", p.OrderID)
			s.metrics.Recheck("vanished")
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	switch order.Status {
	case domain.OrderCompleted:
		s.logger.Info("completion confirmed on re-check", "order_id", order.ID, "attempt", p.Attempt)
		s.metrics.Recheck("confirmed")
		s.metrics.Completed()
		s.notify(ctx, order)
		return nil

	case domain.OrderProcessing:
		done, err := s.complete(ctx, order)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if done {
			s.metrics.Recheck("completed")
			return nil
		}

		next := RecheckPayload{OrderID: order.ID, Attempt: p.Attempt + 1}
		if next.Attempt >= s.cfg.MaxAttempts {
			s.logger.Error("completion never persisted, giving up",
				"order_id", order.ID,
				"attempts", next.Attempt,
			)
			s.metrics.Recheck("exhausted")
			return nil
		}

		s.logger.Warn("completion still not persisted", "order_id", order.ID, "attempt", next.Attempt)
		s.metrics.Recheck("retry")
		if err := s.scheduleRecheck(ctx, next); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil

	default:
		s.logger.Info("order left processing before re-check", "order_id", order.ID, "status", order.Status)
		s.metrics.Recheck("abandoned")
		return nil
	}
}
