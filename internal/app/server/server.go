package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"leaveflow/internal/domain/audit"
	"leaveflow/internal/domain/auth"
	"leaveflow/internal/domain/leave"
	"leaveflow/internal/domain/notifications"
	"leaveflow/internal/domain/profiles"
	"leaveflow/internal/domain/retention"
	"leaveflow/internal/platform/config"
	"leaveflow/internal/platform/crypto"
	"leaveflow/internal/platform/db"
	"leaveflow/internal/platform/email"
	"leaveflow/internal/platform/jobs"
	"leaveflow/internal/platform/metrics"
	"leaveflow/internal/transport/http/middleware"
)

const (
	devJWTSecret    = "leaveflow-dev-secret-change-me"
	shutdownTimeout = 10 * time.Second
)

// App holds the wired services and the root HTTP handler.
type App struct {
	Config  config.Config
	DB      *db.Pool
	Router  http.Handler
	Metrics *metrics.Collector
	Jobs    *jobs.Service

	Auth          *auth.Service
	Leave         *leave.Service
	Profiles      *profiles.Service
	Notifications *notifications.Service
	Audit         *audit.Service
}

// New connects to the database, applies migrations and seed data when
// configured, and wires every service behind the router.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET not set, using development secret")
		cfg.JWTSecret = devJWTSecret
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed failed: %w", err)
		}
	}

	app, err := build(cfg, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return app, nil
}

func build(cfg config.Config, pool *db.Pool) (*App, error) {
	cipher, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	mailer := email.New(cfg)

	app := &App{Config: cfg, DB: pool}
	if cfg.MetricsEnabled {
		app.Metrics = metrics.New()
	}

	app.Auth = auth.NewService(auth.NewStore(pool), mailer, cipher, auth.Settings{
		JWTSecret:          cfg.JWTSecret,
		JWTTTL:             cfg.JWTTTL,
		AllowedEmailDomain: cfg.AllowedEmailDomain,
		AllowSelfSignup:    cfg.AllowSelfSignup,
		AdminEmail:         cfg.SeedAdminEmail,
		AppBaseURL:         cfg.AppBaseURL,
		EmailFrom:          cfg.EmailFrom,
		MagicLinkTTL:       cfg.MagicLinkTTL,
		PasswordResetTTL:   cfg.PasswordResetTTL,
		TokensPerHour:      cfg.TokenRequestsPerHour,
	})

	app.Notifications = notifications.New(notifications.NewStore(pool), mailer)
	app.Notifications.DefaultFrom = cfg.EmailFrom
	app.Audit = audit.New(pool)
	app.Profiles = profiles.NewService(profiles.NewStore(pool))

	app.Leave = leave.NewService(leave.NewStore(pool))
	app.Leave.Notifier = notifications.NewLeaveEvents(app.Notifications)
	app.Leave.Auditor = app.Audit

	app.Jobs = jobs.New(pool)
	if app.Metrics != nil {
		app.Notifications.Observer = app.Metrics
		app.Leave.Observer = app.Metrics
		app.Jobs.Observer = app.Metrics
	}
	if err := app.Jobs.Register(jobs.JobTokenCleanup, cfg.TokenCleanupSchedule, func(ctx context.Context) (any, error) {
		return app.Auth.CleanupExpiredTokens(ctx)
	}); err != nil {
		return nil, fmt.Errorf("register %s: %w", jobs.JobTokenCleanup, err)
	}
	purger := retention.New(pool, retention.Policy{
		retention.CategoryNotifications: cfg.NotifyRetention,
		retention.CategoryAudit:         cfg.AuditRetention,
		retention.CategoryJobRuns:       cfg.JobRunRetention,
		retention.CategoryIdempotency:   cfg.IdempotencyRetention,
	})
	if err := app.Jobs.Register(jobs.JobDataRetention, cfg.RetentionSchedule, func(ctx context.Context) (any, error) {
		return purger.Run(ctx)
	}); err != nil {
		return nil, fmt.Errorf("register %s: %w", jobs.JobDataRetention, err)
	}

	app.Router = app.routes()
	return app, nil
}

func (a *App) httpObserver() middleware.HTTPObserver {
	if a.Metrics == nil {
		return nil
	}
	return a.Metrics
}

// Run starts background jobs and serves HTTP until ctx is cancelled, then
// shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.Jobs.Start(ctx)

	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("leaveflow server listening", "addr", a.Config.Addr, "env", a.Config.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	slog.Info("shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close drains in-flight leave notifications before closing the pool.
func (a *App) Close() {
	if a.Leave != nil {
		a.Leave.Wait()
	}
	a.DB.Close()
}
