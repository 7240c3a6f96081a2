package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/kirinyoku/roster-go/docs"
	"github.com/kirinyoku/roster-go/internal/app"
	"github.com/kirinyoku/roster-go/internal/config"
)

// @title Roster API
// @version 1.0
// @description Builds and serves event rosters from shop orders.
// @host localhost:8080
// @BasePath /
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		logger.Error("application finished with error", "error", err)
		os.Exit(1)
	}
}
