package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirinyoku/roster-go/internal/config"
	"github.com/kirinyoku/roster-go/internal/queue"
	"github.com/kirinyoku/roster-go/internal/scheduler"
	httpgin "github.com/kirinyoku/roster-go/internal/transport/http/gin"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	comps      *Components
	httpServer *http.Server
	scheduler  *scheduler.Scheduler
	consumer   *queue.Consumer
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	comps, err := Wire(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}

	svcs := comps.Services

	sched, err := scheduler.New(svcs.Orders, svcs.Orders, comps.Deferred, nil, logger.With("component", "scheduler"), scheduler.Config{
		SweepInterval: cfg.Jobs.SweepInterval,
		PollInterval:  cfg.Jobs.DeferredPollInterval,
	})
	if err != nil {
		comps.Close()
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	var consumer *queue.Consumer
	if cfg.AMQP.Enabled() {
		consumer = queue.NewConsumer(cfg.AMQP.URL, cfg.AMQP.Queue, svcs.Orders, logger.With("component", "consumer"))
	}

	router := httpgin.NewRouter(svcs, httpgin.Options{
		Limiter: comps.Limiter,
		Metrics: comps.Metrics.Handler(),
	}, logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		comps:     comps,
		scheduler: sched,
		consumer:  consumer,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.comps.Close()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.scheduler.Run(gCtx)
	})

	if a.consumer != nil {
		g.Go(func() error {
			return a.consumer.Run(gCtx)
		})
	} else {
		a.logger.Info("AMQP_URL not set, order trigger consumer disabled")
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
