package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirinyoku/roster-go/internal/signature"
	"github.com/kirinyoku/roster-go/internal/uow"
)

type EventStore interface {
	SetEventCompleted(ctx context.Context, sig string, completed bool) (int64, error)
}

type Invalidator interface {
	InvalidateRosters(ctx context.Context, orderIDs []int64, signatures []string) error
}

type Service struct {
	events      EventStore
	invalidator Invalidator
	uow         *uow.UoW
	logger      *slog.Logger
}

func New(events EventStore, invalidator Invalidator, runner uow.Runner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		events:      events,
		invalidator: invalidator,
		uow:         uow.NewUoW(runner),
		logger:      logger,
	}
}

type EventChange struct {
	EventSignature string `json:"event_signature"`
	Completed      bool   `json:"completed"`
	Affected       int64  `json:"affected"`
}

// SetEventCompleted flags every roster row of an event as completed. Once
// set for all rows, automated rebuilds keep the flag.
//
// Parameters:
//   - ctx: request-scoped context.
//   - sig: event signature.
//
// Returns:
//   - EventChange: the number of rows updated.
//   - error: admin.ErrInvalidSignature for a malformed signature,
//     admin.ErrEventNotFound if no row carries it.
func (s *Service) SetEventCompleted(ctx context.Context, sig string) (EventChange, error) {
	return s.setCompleted(ctx, "service.admin.SetEventCompleted", sig, true)
}

// ReopenEvent clears the completed flag of an event. It is the only path
// that moves a completed event back to open.
func (s *Service) ReopenEvent(ctx context.Context, sig string) (EventChange, error) {
	return s.setCompleted(ctx, "service.admin.ReopenEvent", sig, false)
}

func (s *Service) setCompleted(ctx context.Context, op, sig string, completed bool) (EventChange, error) {
	if !signature.Valid(sig) {
		return EventChange{}, fmt.Errorf("%s: %w", op, ErrInvalidSignature)
	}

	change := EventChange{EventSignature: sig, Completed: completed}

	err := s.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		n, err := s.events.SetEventCompleted(ctx, sig, completed)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if n == 0 {
			return fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}
		change.Affected = n

		after(func(ctx context.Context) {
			if s.invalidator == nil {
				return
			}
			if err := s.invalidator.InvalidateRosters(ctx, nil, []string{sig}); err != nil {
				s.logger.Warn("roster cache invalidation failed", "event_signature", sig, "error", err)
			}
		})
		return nil
	})
	if err != nil {
		return EventChange{}, err
	}

	s.logger.Info("event completion changed", "event_signature", sig, "completed", completed, "affected", change.Affected)
	return change, nil
}
