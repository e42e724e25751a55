package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"authflow/internal/adapter/httpapi"
	"authflow/internal/adapter/scheduler"
	"authflow/internal/adapter/storage/pgstore"
	"authflow/internal/adapter/storage/sqlitestore"
	"authflow/internal/apperr"
	"authflow/internal/auth"
	"authflow/internal/config"
	"authflow/internal/i18n"
	"authflow/internal/metrics"
	"authflow/internal/platform/logger"
	"authflow/internal/platform/pg"
	"authflow/internal/platform/sqlite"
	"authflow/internal/ratelimit"
)

const shutdownTimeout = 10 * time.Second

// App wires application components.
type App struct {
	cfg     config.Config
	log     *slog.Logger
	closers []func() error
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "authflow",
	})
	return &App{cfg: cfg, log: log}, nil
}

// Run serves the API until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer a.close()

	a.log.Info("starting", slog.String("addr", a.cfg.HTTP.Addr), slog.String("db", a.cfg.DB.Driver))

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	limiter, err := a.openLimiter(ctx)
	if err != nil {
		return err
	}
	cat, err := i18n.New(a.cfg.Locale.Default)
	if err != nil {
		return err
	}
	m := metrics.New()
	if c, ok := store.(interface{ Collector() prometheus.Collector }); ok {
		if err := m.Registry().Register(c.Collector()); err != nil {
			return apperr.Wrap(err, "register store metrics")
		}
	}

	svc := auth.NewService(store, auth.Config{
		SessionTTL: a.cfg.Auth.SessionTTL,
		SignupTTL:  a.cfg.Auth.SignupTTL,
		ResetTTL:   a.cfg.Auth.ResetTTL,
		BcryptCost: a.cfg.Auth.BcryptCost,
	},
		auth.WithLogger(a.log),
		auth.WithMailer(auth.LogMailer{Log: a.log}),
	)

	api, err := httpapi.New(svc, cat,
		httpapi.WithLogger(a.log),
		httpapi.WithLimiter(limiter),
		httpapi.WithTrustedProxies(a.cfg.HTTP.TrustedProxies),
		httpapi.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	sched := scheduler.New(ctx,
		scheduler.WithLogger(a.log.With(slog.String("component", "scheduler"))),
		scheduler.WithHooks(scheduler.Hooks{OnFinish: m.ObserveJob}),
	)
	if err := sched.Add(scheduler.PurgeJob(svc, a.cfg.Purge.Schedule, m.ObservePurge)); err != nil {
		return err
	}
	sched.Start()

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case err = <-serveErr:
		a.log.Error("server", logger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(err, srv.Shutdown(shutdownCtx), sched.Stop(shutdownCtx))
}

func (a *App) openStore(ctx context.Context) (auth.Store, error) {
	switch a.cfg.DB.Driver {
	case "postgres":
		opts := pg.DefaultPoolOptions()
		if a.cfg.Env == "dev" {
			opts.QueryLog = a.log.With(slog.String("component", "pgx"))
		}
		pool, err := pg.Connect(ctx, a.cfg.DB.PostgresDSN, opts, pg.DefaultConnectRetry(), a.log)
		if err != nil {
			return nil, apperr.Wrap(err, "connect postgres")
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })

		mg := pgstore.Migrator(pool)
		mg.Log = a.log
		info, err := mg.Up()
		if err != nil {
			return nil, apperr.Wrap(err, "migrate postgres")
		}
		a.log.Info("migrations applied", slog.Bool("changed", info.Applied), slog.Uint64("version", uint64(info.FinalVersion)))
		return pgstore.New(pool), nil
	default:
		db, err := sqlite.Open(ctx, a.cfg.DB.SQLitePath, sqlite.DefaultOptions())
		if err != nil {
			return nil, apperr.Wrap(err, "open sqlite")
		}
		a.closers = append(a.closers, db.Close)

		mg := sqlitestore.Migrator(db)
		mg.Log = a.log
		info, err := mg.Up()
		if err != nil {
			return nil, apperr.Wrap(err, "migrate sqlite")
		}
		a.log.Info("migrations applied", slog.Bool("changed", info.Applied), slog.Uint64("version", uint64(info.FinalVersion)))
		return sqlitestore.New(db), nil
	}
}

func (a *App) openLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	cfg := ratelimit.Config{
		Requests: a.cfg.RateLimit.Requests,
		Window:   a.cfg.RateLimit.Window,
		MaxKeys:  a.cfg.RateLimit.MaxKeys,
	}
	if a.cfg.Redis.URL == "" {
		return ratelimit.NewMemory(cfg), nil
	}
	rdb, err := ratelimit.NewRedisClient(ctx, a.cfg.Redis.URL)
	if err != nil {
		return nil, apperr.Wrap(err, "connect redis")
	}
	a.closers = append(a.closers, rdb.Close)
	return ratelimit.NewRedis(rdb, cfg, ""), nil
}

// close releases resources in reverse order of acquisition.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close", logger.Error(err))
		}
	}
	a.closers = nil
	_ = logger.Close(a.log)
}
