// Package app wires the commons server runtime: config, logging, storage,
// the auth HTTP surface, and background maintenance.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"commons/internal/auth/api"
	"commons/internal/auth/session"
	"commons/internal/identity"
)

// App is the server runtime. It owns the HTTP server, the storage backends,
// and the session sweeper.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	sessions *session.Service
	auth     *api.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	authCfg := api.LoadConfigFromEnv()

	var (
		pool       *pgxpool.Pool
		dbEnabled  bool
		principals identity.Store
		sessStore  session.Store
	)

	if cfg.DatabaseURL == "" {
		// In-memory mode for local development: full functionality, no
		// durability, no audit log.
		log.Info("db.disabled.inmemory_store")
		principals = identity.NewMemoryStore()
		sessStore = session.NewMemoryStore()
	} else {
		pool, err = NewDBPool(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		if cfg.RunMigrations {
			if err := RunMigrations(context.Background(), cfg.DatabaseURL); err != nil {
				pool.Close()
				return nil, err
			}
		}
		log.Info("db.enabled.postgres_store")

		pgPrincipals, err := identity.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		principals = pgPrincipals
		sessStore = session.NewPostgresStore(pool)
		dbEnabled = true
	}

	tokens, err := session.NewJWTManager(sessCfg)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}
	svc, err := session.NewService(sessCfg, principals, sessStore, tokens)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}

	authHandler, err := api.NewHandler(log, authCfg, principals, svc, pool)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		dbPool:    pool,
		dbEnabled: dbEnabled,
		sessions:  svc,
		auth:      authHandler,
	}, nil
}

// Run starts the HTTP server and the session sweeper, blocking until
// context cancellation or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.auth)

	handler := WithRequestLogging(WithSecurityHeaders(mux), a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go a.sweepExpiredSessions(sweepCtx)

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if a.dbPool != nil {
		a.dbPool.Close()
	}

	a.log.Info("server.stopped")
	return nil
}

// sweepExpiredSessions periodically deletes session rows that expired
// longer than the retention window ago. Revoked-but-unexpired rows stay for
// reuse detection; the sweeper only cuts the tail.
func (a *App) sweepExpiredSessions(ctx context.Context) {
	interval := nonZeroDuration(a.cfg.SweepInterval, time.Hour)
	retention := nonZeroDuration(a.cfg.SweepRetention, 30*24*time.Hour)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			before := time.Now().UTC().Add(-retention)
			n, err := a.sessions.DeleteExpired(ctx, before)
			if err != nil {
				a.log.Error("session.sweep.fail", "err", err)
				continue
			}
			if n > 0 {
				a.log.Info("session.sweep", "deleted", n)
			}
		}
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
