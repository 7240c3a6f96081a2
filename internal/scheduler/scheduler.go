// Package scheduler runs the background jobs of the roster service: a
// periodic sweep of processing orders and the dispatcher of due deferred
// tasks.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/service/orders"
)

const (
	jobSweep    = "sweep_processing"
	jobDeferred = "dispatch_deferred"
)

type Sweeper interface {
	SweepProcessing(ctx context.Context) (orders.BatchResult, error)
}

type TaskHandler interface {
	HandleTask(ctx context.Context, task string, payload []byte) error
}

// Queue hands out due deferred tasks and takes back the ones that must be
// retried. A claimed task that is never acknowledged is handed out again.
type Queue interface {
	PopDue(ctx context.Context, limit int) ([]domain.DeferredTask, error)
	Ack(ctx context.Context, t domain.DeferredTask) error
	ScheduleDeferred(ctx context.Context, task string, payload any, delay time.Duration) error
}

type Config struct {
	SweepInterval time.Duration
	PollInterval  time.Duration
	// ClaimSize bounds how many tasks one poll claims.
	ClaimSize int
	// RetryDelay is how long a task that failed transiently waits before it
	// is due again.
	RetryDelay time.Duration
}

type Scheduler struct {
	sched   gocron.Scheduler
	sweeper Sweeper
	tasks   TaskHandler
	queue   Queue
	logger  *slog.Logger
	cfg     Config
}

// New builds the scheduler without starting it. A nil clock uses the real
// one.
func New(sweeper Sweeper, tasks TaskHandler, queue Queue, clock clockwork.Clock, logger *slog.Logger, cfg Config) (*Scheduler, error) {
	const op = "scheduler.New"

	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ClaimSize <= 0 {
		cfg.ClaimSize = 100
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Minute
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}

	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Scheduler{
		sched:   sched,
		sweeper: sweeper,
		tasks:   tasks,
		queue:   queue,
		logger:  logger,
		cfg:     cfg,
	}, nil
}

// Run registers the jobs, starts them and blocks until ctx is done, then
// waits for running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	const op = "scheduler.Run"

	if err := s.register(ctx); err != nil {
		_ = s.sched.Shutdown()
		return fmt.Errorf("%s: %w", op, err)
	}

	s.sched.Start()
	s.logger.Info("scheduler started",
		"sweep_interval", s.cfg.SweepInterval,
		"poll_interval", s.cfg.PollInterval,
	)

	<-ctx.Done()

	s.logger.Info("shutting down scheduler")
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Scheduler) register(ctx context.Context) error {
	if s.sweeper != nil {
		_, err := s.sched.NewJob(
			gocron.DurationJob(s.cfg.SweepInterval),
			gocron.NewTask(func() { _ = s.Sweep(ctx) }),
			gocron.WithName(jobSweep),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("%s job: %w", jobSweep, err)
		}
	}

	if s.queue != nil && s.tasks != nil {
		_, err := s.sched.NewJob(
			gocron.DurationJob(s.cfg.PollInterval),
			gocron.NewTask(func() { _, _ = s.DispatchDue(ctx) }),
			gocron.WithName(jobDeferred),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("%s job: %w", jobDeferred, err)
		}
	}

	return nil
}

// Sweep processes the orders left in processing.
func (s *Scheduler) Sweep(ctx context.Context) error {
	res, err := s.sweeper.SweepProcessing(ctx)
	if err != nil {
		s.logger.Error("processing sweep failed", "error", err)
		return err
	}

	if res.ProcessedCount > 0 || len(res.FailedOrderIDs) > 0 {
		s.logger.Info("processing sweep finished",
			"processed", res.ProcessedCount,
			"completed", res.CompletedCount,
			"deferred", res.DeferredCount,
			"failed", len(res.FailedOrderIDs),
		)
	}
	return nil
}

// DispatchDue claims due deferred tasks and runs them. Malformed tasks are
// dropped; tasks that fail otherwise are queued again after RetryDelay. A
// task is acknowledged only once it ran, was dropped or was requeued.
func (s *Scheduler) DispatchDue(ctx context.Context) (int, error) {
	due, err := s.queue.PopDue(ctx, s.cfg.ClaimSize)
	if err != nil {
		s.logger.Error("claim deferred tasks failed", "error", err)
		return 0, err
	}

	work := context.WithoutCancel(ctx)
	ran := 0

	for _, t := range due {
		err := s.tasks.HandleTask(work, t.Name, t.Payload)
		switch {
		case err == nil:
			ran++
		case errors.Is(err, orders.ErrInvalidTask):
			s.logger.Warn("dropping invalid deferred task", "task_id", t.ID, "task", t.Name, "error", err)
		default:
			s.logger.Warn("deferred task failed, requeueing", "task_id", t.ID, "task", t.Name, "error", err)
			if err := s.queue.ScheduleDeferred(work, t.Name, t.Payload, s.cfg.RetryDelay); err != nil {
				s.logger.Error("requeue deferred task failed, left to lease expiry", "task_id", t.ID, "task", t.Name, "error", err)
				continue
			}
		}

		if err := s.queue.Ack(work, t); err != nil {
			s.logger.Warn("ack deferred task failed", "task_id", t.ID, "task", t.Name, "error", err)
		}
	}

	return ran, nil
}
