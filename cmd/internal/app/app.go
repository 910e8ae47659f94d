// Package app wires the LinkUp server runtime: config, logging, storage,
// the realtime gateway, and the messaging HTTP surface.
//
// It is intentionally small and deterministic to keep behavior predictable.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"linkup/cmd/identity"
	"linkup/cmd/internal/messaging"
	"linkup/cmd/internal/msgapi"
	"linkup/cmd/internal/notify"
	"linkup/cmd/internal/realtime"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the LinkUp server runtime: it owns HTTP server wiring and the
// realtime gateway dependencies.
type App struct {
	cfg Config
	log *slog.Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	metricsReg *prometheus.Registry

	presence *realtime.Presence
	ws       *realtime.Gateway

	api *msgapi.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	st, deps, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := realtime.NewMetrics(reg)

	presence := realtime.NewPresence(log, metrics)
	router := realtime.NewRouter(log, presence, metrics)
	auth := realtime.NewAuthenticator(log, []byte(cfg.JWTSecret), deps.users)
	ws := realtime.NewGateway(log, auth, presence, router)

	svc, err := messaging.NewService(log, deps.messages, router)
	if err != nil {
		return nil, err
	}
	fanout := notify.NewFanout(log, deps.users, deps.notifications, router)

	api, err := msgapi.NewHandler(log, auth, svc, fanout, metrics)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:        cfg,
		log:        log,
		store:      st,
		dbPool:     deps.pool,
		dbEnabled:  deps.pool != nil,
		metricsReg: reg,
		presence:   presence,
		ws:         ws,
		api:        api,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.ws, a.api, a.metricsReg)

	var handler http.Handler = mux
	handler = WithSecurityHeaders(handler)
	handler = WithCORS(handler, a.cfg, a.log)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

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

	// Close store resources (pool etc).
	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
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

// storeDeps groups the persistence collaborators for wiring.
type storeDeps struct {
	pool          *pgxpool.Pool
	users         identity.Finder
	messages      messaging.Store
	notifications notify.Store
}

// newStores decides between Postgres-backed persistence and in-memory dev stores.
func newStores(ctx context.Context, cfg Config, log *slog.Logger) (Store, storeDeps, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return nopStore{}, storeDeps{
			users:         identity.NewMemoryStore(),
			messages:      messaging.NewInMemoryStore(),
			notifications: notify.NewInMemoryStore(),
		}, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, storeDeps{}, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)

	// Ownership model:
	// - app owns pool lifecycle
	// - the stores' Close methods are no-ops
	users, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, storeDeps{}, err
	}
	messages, err := messaging.NewPostgresStore(pool, messaging.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, storeDeps{}, err
	}
	notifications, err := notify.NewPostgresStore(pool, notify.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, storeDeps{}, err
	}

	return dbStore{pool: pool}, storeDeps{
		pool:          pool,
		users:         users,
		messages:      messages,
		notifications: notifications,
	}, nil
}

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
