package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/aggregation-backend/internal/app"
	"github.com/yungbote/aggregation-backend/internal/data/db"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

func newLogger() (*logger.Logger, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	return logger.New(logMode)
}

// withApp builds the application, runs fn until SIGINT/SIGTERM, and tears it down.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, log)
	if err != nil {
		log.Error("App init failed", "error", err)
		log.Sync()
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scan API, realtime streams, and (unless EMBEDDED_WORKERS=false) the cycle consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				return a.Serve(ctx)
			})
		},
	}
}

func consumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Run only the cycle configuration consumer pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				return a.Consume(ctx)
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()
			pg, err := db.NewPostgresService(log)
			if err != nil {
				return err
			}
			defer func() { _ = pg.Close() }()
			if err := db.AutoMigrateAll(pg.DB()); err != nil {
				return err
			}
			log.Info("Migration complete")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert products and codes from a JSON fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := app.LoadSeedFile(file)
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				return a.Seed(ctx, data)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the seed JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "aggregation",
		Short: "QR unit aggregation backend",
		Long: `Aggregates scanned OUTER codes into PACKAGE and PALLET units, tracks cycle
completion per session, and configures code records through a durable queue.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(consumeCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
