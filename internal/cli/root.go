// Package cli implements rosterctl, the operator command line for the
// roster pipeline.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"

	"github.com/kirinyoku/roster-go/internal/app"
	"github.com/kirinyoku/roster-go/internal/config"
	"github.com/spf13/cobra"
)

// Connector builds the dependency graph a command runs against.
type Connector func(ctx context.Context, logger *slog.Logger) (*app.Components, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string

	connect Connector
}

var validFormats = []string{"text", "json"}

// NewRootCommand creates rosterctl. A nil connector wires from the
// environment.
func NewRootCommand(connect Connector) *cobra.Command {
	if connect == nil {
		connect = connectFromEnv
	}
	opts := &RootOptions{connect: connect}

	cmd := &cobra.Command{
		Use:   "rosterctl",
		Short: "Operate the event roster pipeline",
		Long: `rosterctl runs roster pipeline jobs against the configured PostgreSQL
and Redis: process orders, rebuild or reconcile rosters and watch roster
change notices.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newProcessCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newPreviewCommand(opts))
	cmd.AddCommand(newRebuildCommand(opts))
	cmd.AddCommand(newRebuildOrdersCommand(opts))
	cmd.AddCommand(newReconcileCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))

	return cmd
}

func (o *RootOptions) logger() *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// withComponents connects, runs fn and closes the connections.
func (o *RootOptions) withComponents(cmd *cobra.Command, fn func(ctx context.Context, c *app.Components) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c, err := o.connect(ctx, o.logger())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer c.Close()

	return fn(ctx, c)
}

func connectFromEnv(ctx context.Context, logger *slog.Logger) (*app.Components, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	return app.Wire(ctx, cfg, logger)
}

func parseOrderIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid order id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
