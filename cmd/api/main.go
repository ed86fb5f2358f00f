package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/ledgerbridge/internal/api"
	"github.com/nikhilbhutani/ledgerbridge/internal/app"
	"github.com/nikhilbhutani/ledgerbridge/internal/audit"
	"github.com/nikhilbhutani/ledgerbridge/internal/auth"
	"github.com/nikhilbhutani/ledgerbridge/internal/background"
	"github.com/nikhilbhutani/ledgerbridge/internal/cache"
	"github.com/nikhilbhutani/ledgerbridge/internal/config"
	"github.com/nikhilbhutani/ledgerbridge/internal/metrics"
	"github.com/nikhilbhutani/ledgerbridge/internal/proxy"
	"github.com/nikhilbhutani/ledgerbridge/internal/qbo"
	"github.com/nikhilbhutani/ledgerbridge/internal/tenant"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	backend, err := app.OpenBackend(ctx, cfg, true)
	if err != nil {
		slog.Error("failed to open store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	// Redis is optional: it backs the tenant cache and the distributed
	// refresh lock when those are enabled.
	var rdb *redis.Client
	if cfg.Store.TenantCache == "redis" || cfg.Token.DistributedLock {
		rdb = app.NewRedis(cfg.Redis)
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unavailable", "error", err)
		}
		defer rdb.Close()
	}

	var tenantCache cache.Cache = cache.NewMemoryCache()
	if cfg.Store.TenantCache == "redis" && rdb != nil {
		tenantCache = cache.NewRedisCache(rdb, "ledgerbridge:")
	}

	m := metrics.NewMetrics("ledgerbridge")
	runner := background.NewRunner(4, 256, 10*time.Second)
	batcher := audit.NewBatcher(backend.AuditSink, cfg.Audit.QueueSize, cfg.Audit.BatchSize, cfg.Audit.FlushInterval)

	tenants := tenant.NewService(backend.Tenants, tenantCache, cfg.Store.TenantCacheTTL)
	authenticator := auth.NewAuthenticator(backend.Keys, cfg.Auth.APIKeyPrefix,
		auth.WithRunner(runner),
		auth.WithAudit(batcher),
		auth.WithMetrics(m),
	)
	tokens := app.NewTokenManager(cfg, backend.Credentials, rdb, batcher, m, runner)
	engine := proxy.NewEngine(tokens, qbo.NewClient(cfg.QBO.BaseURL, cfg.QBO.MinorVersion, cfg.QBO.Timeout, m))

	router := api.NewRouter(api.Deps{
		Config:      cfg,
		DB:          backend.DB,
		Redis:       rdb,
		Tenants:     tenants,
		Auth:        authenticator,
		Tokens:      tokens,
		Proxy:       engine,
		Credentials: backend.Credentials,
		Audit:       batcher,
		AuditSink:   backend.AuditSink,
		Metrics:     m,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "backend", cfg.Store.Backend, "qbo_env", cfg.QBO.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	router.Close()
	runner.Close()
	batcher.Close()
	slog.Info("server stopped")
}
