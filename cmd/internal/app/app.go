// Package app wires the libra server runtime: config, logging, stores, and HTTP routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"libra/cmd/identity"
	"libra/cmd/internal/audit"
	"libra/cmd/internal/auth/api"
	"libra/cmd/internal/auth/session"
	"libra/cmd/security/password"
	"libra/cmd/security/token"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App is the libra server runtime. It owns the pool, the session registry
// and the HTTP handler graph.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool
	kafka     *audit.KafkaSink

	reg        *prometheus.Registry
	principals identity.Store
	sessions   *session.Store
	passwords  password.Config
	auth       *api.Handler
}

// New constructs a fully wired App instance from config and logger.
// With an empty DatabaseURL principals live in memory and audit goes to the log only.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	pwCfg, tokCfg, err := loadSecurityConfig(cfg)
	if err != nil {
		return nil, err
	}
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &App{cfg: cfg, log: log, reg: reg, passwords: pwCfg}
	sinks := audit.Multi{audit.NewLogSink(log)}

	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		a.principals = identity.NewMemoryStore()
	} else {
		pool, err := NewDBPool(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("db pool: %w", err)
		}
		a.dbPool, a.dbEnabled = pool, true

		principals, sink, err := newPostgresStores(ctx, pool, cfg)
		if err != nil {
			pool.Close()
			return nil, err
		}
		a.principals = principals
		sinks = append(sinks, sink)
		log.Info("db.enabled.postgres_store", "schema", principals.Schema(), "auto_migrate", cfg.DBAutoMigrate)
	}

	if len(cfg.AuditKafkaBrokers) > 0 {
		k, err := audit.NewKafkaSink(cfg.AuditKafkaBrokers, cfg.AuditKafkaTopic, log)
		if err != nil {
			a.close()
			return nil, err
		}
		a.kafka = k
		sinks = append(sinks, k)
		log.Info("audit.kafka.enabled", "topic", cfg.AuditKafkaTopic, "brokers", len(cfg.AuditKafkaBrokers))
	}

	gen := token.NewGenerator(tokCfg)

	a.sessions = session.NewStore(sessCfg,
		session.WithLogger(log),
		session.WithAuditSink(sinks),
		session.WithMetrics(session.NewMetrics(reg)),
		session.WithTokenGenerator(gen),
	)

	a.auth, err = api.NewHandler(log, api.LoadConfigFromEnv(), a.principals, a.sessions,
		api.WithPasswordConfig(pwCfg),
		api.WithTemporaryPasswords(gen),
		api.WithAuditSink(sinks),
		api.WithRegisterer(reg),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	if err := a.bootstrapAdmin(ctx); err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

func newPostgresStores(ctx context.Context, pool *pgxpool.Pool, cfg Config) (*identity.PostgresStore, *audit.PostgresSink, error) {
	principals, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		return nil, nil, err
	}
	sink, err := audit.NewPostgresSink(pool, principals.Schema())
	if err != nil {
		return nil, nil, err
	}

	if cfg.DBAutoMigrate {
		if err := principals.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure principals schema: %w", err)
		}
		if err := sink.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure audit schema: %w", err)
		}
	}
	return principals, sink, nil
}

// bootstrapAdmin creates the configured Super Admin if the username is free.
// An existing account is left untouched.
func (a *App) bootstrapAdmin(ctx context.Context) error {
	username := strings.TrimSpace(a.cfg.BootstrapAdminUsername)
	if username == "" || a.cfg.BootstrapAdminPassword == "" {
		return nil
	}

	if _, err := a.principals.GetByUsername(ctx, username); err == nil {
		a.log.Info("bootstrap.admin.exists", "username", identity.NormalizeUsername(username))
		return nil
	} else if !identity.IsNotFound(err) {
		return fmt.Errorf("bootstrap admin lookup: %w", err)
	}

	if err := a.passwords.Validate(a.cfg.BootstrapAdminPassword); err != nil {
		return fmt.Errorf("bootstrap admin password: %w", err)
	}
	hash, err := a.passwords.Hash(a.cfg.BootstrapAdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin hash: %w", err)
	}

	p, err := a.principals.CreatePrincipal(ctx, identity.CreatePrincipalInput{
		Username:           username,
		Role:               identity.RoleSuperAdmin,
		PasswordHash:       hash,
		MustChangePassword: a.cfg.BootstrapAdminMustChange,
		Now:                time.Now().UTC(),
	})
	if err != nil {
		// Another replica may have won the race.
		if identity.IsConflict(err) {
			return nil
		}
		return fmt.Errorf("bootstrap admin create: %w", err)
	}

	a.log.Warn("bootstrap.admin.created", "principal_id", p.ID, "username", p.Username, "must_change_password", p.MustChangePassword)
	return nil
}

// Handler returns the root HTTP handler with the middleware chain applied.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.reg, a.auth)

	var h http.Handler = mux
	h = WithRequestLogging(h, a.log)
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	h = WithRecover(h, a.log)
	return h
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.sessions.Run(sweepCtx)

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"http_base", base,
		"ws_base", wsBaseURL(base),
		"db_enabled", a.dbEnabled,
		"session_idle_timeout", a.sessions.IdleTimeout().String(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	// Sessions are memory-only; a restart logs everyone out.
	if err := a.sessions.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("sessions.shutdown.fail", "err", err)
	}

	a.close()
	a.log.Info("server.stopped")
	return runErr
}

func (a *App) close() {
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.log.Warn("audit.kafka.close.fail", "err", err)
		}
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
// Wildcard binds map to loopback.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}

	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(httpBase string) string {
	switch {
	case strings.HasPrefix(httpBase, "https://"):
		return "wss://" + strings.TrimPrefix(httpBase, "https://")
	case strings.HasPrefix(httpBase, "http://"):
		return "ws://" + strings.TrimPrefix(httpBase, "http://")
	default:
		return "ws://" + httpBase
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
