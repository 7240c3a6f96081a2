package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirinyoku/roster-go/internal/app"
	redisrepo "github.com/kirinyoku/roster-go/internal/repository/redis"
	"github.com/kirinyoku/roster-go/internal/service/reconcile"
	"github.com/kirinyoku/roster-go/internal/service/roster"
	"github.com/spf13/cobra"
)

func newProcessCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "process <order-id>...",
		Short: "Build rosters for orders and complete the processing ones",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseOrderIDs(args)
			if err != nil {
				return err
			}
			return opts.withComponents(cmd, func(ctx context.Context, c *app.Components) error {
				if len(ids) == 1 {
					res, err := c.Services.Orders.ProcessOrderByID(ctx, roster.NewScope(), ids[0])
					if err != nil {
						return err
					}
					return render(cmd.OutOrStdout(), opts.Format, res)
				}

				res, err := c.Services.Orders.ProcessBatch(ctx, ids)
				if err != nil {
					return err
				}
				if err := render(cmd.OutOrStdout(), opts.Format, res); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("%d orders failed", len(res.FailedOrderIDs))
				}
				return nil
			})
		},
	}
}

func newSweepCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Process every order currently in processing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withComponents(cmd, func(ctx context.Context, c *app.Components) error {
				res, err := c.Services.Orders.SweepProcessing(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.Format, res)
			})
		},
	}
}

func newPreviewCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <order-id>",
		Short: "Show the roster rows an order would produce without writing them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseOrderIDs(args)
			if err != nil {
				return err
			}
			return opts.withComponents(cmd, func(ctx context.Context, c *app.Components) error {
				entries, err := c.Services.Query.PreviewOrderRoster(ctx, ids[0])
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.Format, entries)
			})
		},
	}
}

func newRebuildCommand(opts *RootOptions) *cobra.Command {
	var ro roster.RebuildOptions

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the rosters of every eligible order",
		Long: `Rebuild walks every processing and completed order in batches. Per-order
failures are reported and never stop the run. Interrupting the command stops
it after the current batch; --resume continues from the last checkpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withComponents(cmd, func(ctx context.Context, c *app.Components) error {
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				res, err := c.Services.Roster.RebuildAll(ctx, ro)
				if rerr := render(cmd.OutOrStdout(), opts.Format, res); rerr != nil && err == nil {
					err = rerr
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&ro.ClearExisting, "clear-existing", false, "delete every stored roster row first")
	cmd.Flags().IntVar(&ro.BatchSize, "batch-size", 0, "orders per batch (default from REBUILD_BATCH_SIZE)")
	cmd.Flags().BoolVar(&ro.Resume, "resume", false, "continue after the last checkpointed order")

	return cmd
}

func newRebuildOrdersCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-orders <order-id>...",
		Short: "Drop and rebuild the rosters of specific orders",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseOrderIDs(args)
			if err != nil {
				return err
			}
			return opts.withComponents(cmd, func(ctx context.Context, c *app.Components) error {
				res, err := c.Services.Roster.RebuildSpecificOrders(ctx, ids)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.Format, res)
			})
		},
	}
}

func newReconcileCommand(opts *RootOptions) *cobra.Command {
	var (
		from, to       string
		deleteObsolete bool
		batchSize      int
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair drift between orders and stored rosters",
		Long: `Reconcile re-syncs every order referenced by stored roster rows and reports
orphans whose order no longer exists. Orphans are deleted by default only for
a full sweep; a date-scoped run needs --delete-obsolete.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ro := reconcile.Options{BatchSize: batchSize}

			var err error
			if ro.DateFrom, err = parseFlagDate(from, false); err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			if ro.DateTo, err = parseFlagDate(to, true); err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}
			if cmd.Flags().Changed("delete-obsolete") {
				ro.DeleteObsolete = &deleteObsolete
			}

			return opts.withComponents(cmd, func(ctx context.Context, c *app.Components) error {
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				res, err := c.Services.Reconcile.Reconcile(ctx, ro)
				if rerr := render(cmd.OutOrStdout(), opts.Format, res); rerr != nil && err == nil {
					err = rerr
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first order date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last order date, inclusive (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&deleteObsolete, "delete-obsolete", false, "delete orphaned rows")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "orders per batch")

	return cmd
}

func newWatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print roster change notices until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withComponents(cmd, func(ctx context.Context, c *app.Components) error {
				if c.PubSub == nil {
					return errors.New("roster change notices need redis")
				}

				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				err := c.PubSub.Subscribe(ctx, func(ctx context.Context, msg redisrepo.RosterChanged) {
					if opts.Format == "json" {
						_ = render(cmd.OutOrStdout(), opts.Format, msg)
						return
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s orders=%v signatures=%v all=%t\n",
						time.Unix(msg.TsUnix, 0).Format(time.RFC3339), msg.OrderIDs, msg.Signatures, msg.All)
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}

func parseFlagDate(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
