package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/inkwell-backend/internal/app"
	"github.com/yungbote/inkwell-backend/internal/data/db"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "inkwell",
		Short:         "Inkwell API, job worker and maintenance commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(serveCmd(), workerCmd(), migrateCmd(), plansCmd(), snapshotCmd())
	return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the in-process job worker and cron",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := app.New(ctx, app.Options{})
			if err != nil {
				return err
			}
			if err := a.Services.Billing.SyncPlans(ctx); err != nil {
				a.Log.Warn("Plan catalog sync failed", "error", err)
			}
			a.StartWorker(ctx)
			a.StartScheduler(ctx)

			err = a.Serve(ctx)
			stop()
			a.Close()
			return err
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the job worker only",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := app.New(ctx, app.Options{})
			if err != nil {
				return err
			}
			if a.Clients.SSEBus == nil {
				a.Log.Warn("REDIS_ADDR not set; job events from this worker will not reach API clients")
			}
			a.StartWorker(ctx)
			<-ctx.Done()
			a.Close()
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update every table",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := app.NewLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			pg, err := db.NewPostgresService(log)
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := db.AutoMigrateAll(pg.DB()); err != nil {
				return err
			}
			log.Info("Migration complete")
			return nil
		},
	}
}

func plansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Plan catalog maintenance",
	}
	var file string
	sync := &cobra.Command{
		Use:   "sync",
		Short: "Upsert the plan catalog into the plan table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := app.New(ctx, app.Options{PlansFile: file})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Services.Billing.SyncPlans(ctx); err != nil {
				return err
			}
			a.Log.Info("Plan catalog synced", "plans", len(a.Catalog.List()))
			return nil
		},
	}
	sync.Flags().StringVar(&file, "file", "", "YAML plan catalog (defaults to PLANS_FILE or the embedded catalog)")
	cmd.AddCommand(sync)
	return cmd
}

func snapshotCmd() *cobra.Command {
	var dayFlag string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Compute and store the analytics snapshot for one UTC day",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDay(dayFlag, time.Now())
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			a, err := app.New(ctx, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			snap, err := a.Services.Analytics.Snapshot(ctx, day)
			if err != nil {
				return err
			}
			a.Log.Info("Snapshot stored", "day", snap.Day, "mrr_cents", snap.MRRCents)
			return nil
		},
	}
	cmd.Flags().StringVar(&dayFlag, "day", "", "UTC day as YYYY-MM-DD (defaults to yesterday)")
	return cmd
}

// parseDay returns the start of the named UTC day, or of the day before now.
func parseDay(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		y := now.UTC().AddDate(0, 0, -1)
		return time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --day %q: want YYYY-MM-DD", raw)
	}
	return day, nil
}
