package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"leaveflow/internal/domain/auth"
	"leaveflow/internal/platform/config"
	"leaveflow/internal/platform/db"
	"leaveflow/internal/platform/jobs"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), opts.cfg, func(ctx context.Context, pool *db.Pool) error {
				if err := db.Migrate(ctx, pool, opts.cfg.MigrationsDir); err != nil {
					return err
				}
				slog.Info("migrations applied", "dir", opts.cfg.MigrationsDir)
				return nil
			})
		},
	}
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the bootstrap admin and the users from SEED_FILE",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), opts.cfg, func(ctx context.Context, pool *db.Pool) error {
				if err := db.Seed(ctx, pool, opts.cfg); err != nil {
					return err
				}
				slog.Info("seed complete", "file", opts.cfg.SeedFile)
				return nil
			})
		},
	}
}

func newCleanupTokensCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-tokens",
		Short: "Delete expired magic link and password reset tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), opts.cfg, func(ctx context.Context, pool *db.Pool) error {
				authService := auth.NewService(auth.NewStore(pool), nil, nil, auth.Settings{JWTSecret: opts.cfg.JWTSecret})
				runner := jobs.New(pool)
				if err := runner.Register(jobs.JobTokenCleanup, "", func(ctx context.Context) (any, error) {
					return authService.CleanupExpiredTokens(ctx)
				}); err != nil {
					return err
				}
				details, err := runner.RunNow(ctx, jobs.JobTokenCleanup)
				if err != nil {
					return err
				}
				out, err := json.Marshal(details)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	}
}

func withPool(ctx context.Context, cfg config.Config, fn func(context.Context, *db.Pool) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, pool)
}
