package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/hackgods/practice-scheduling/internal/config"
	"github.com/hackgods/practice-scheduling/internal/db"
	"github.com/hackgods/practice-scheduling/internal/logger"
)

var steps int

func main() {
	rootCmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Database migration tools",
		Long:         `Apply, roll back and inspect the embedded schema migrations.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newUpCommand(),
		newDownCommand(),
		newStatusCommand(),
		newVersionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
				log.Info("running up migrations")
				if err := db.MigrateUp(ctx, pool); err != nil {
					return err
				}
				log.Info("migrations completed")
				return nil
			})
		},
	}
}

func newDownCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
				log.Info("rolling back migrations", "steps", steps)
				return db.MigrateDown(ctx, pool, steps)
			})
		},
	}

	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to rollback")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool, _ *slog.Logger) error {
				return db.MigrationStatus(ctx, pool)
			})
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool, _ *slog.Logger) error {
				v, err := db.MigrationVersion(ctx, pool)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			})
		},
	}
}

func withPool(ctx context.Context, fn func(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.Init(cfg.LogLevel, cfg.LogFormat)

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := fn(ctx, pool, log); err != nil {
		log.Error("migration command failed", "error", err)
		return err
	}
	return nil
}
