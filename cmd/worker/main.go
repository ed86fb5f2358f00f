package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/ledgerbridge/internal/app"
	"github.com/nikhilbhutani/ledgerbridge/internal/audit"
	"github.com/nikhilbhutani/ledgerbridge/internal/background"
	"github.com/nikhilbhutani/ledgerbridge/internal/config"
	"github.com/nikhilbhutani/ledgerbridge/internal/metrics"
	"github.com/nikhilbhutani/ledgerbridge/internal/queue"
	"github.com/nikhilbhutani/ledgerbridge/internal/queue/workers"
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

	backend, err := app.OpenBackend(ctx, cfg, false)
	if err != nil {
		slog.Error("failed to open store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	rdb := app.NewRedis(cfg.Redis)
	defer rdb.Close()

	runner := background.NewRunner(2, 64, 10*time.Second)
	defer runner.Close()
	batcher := audit.NewBatcher(backend.AuditSink, cfg.Audit.QueueSize, cfg.Audit.BatchSize, cfg.Audit.FlushInterval)
	defer batcher.Close()

	m := metrics.NewMetrics("ledgerbridge_worker")
	tokens := app.NewTokenManager(cfg, backend.Credentials, rdb, batcher, m, runner)

	var metricsSrv *http.Server
	if cfg.Server.WorkerMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.Server.WorkerMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			slog.Info("serving worker metrics", "addr", cfg.Server.WorkerMetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics listener failed", "error", err)
			}
		}()
	}

	client := queue.NewClient(cfg.Redis)
	defer client.Close()

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	registry := queue.NewHandlersRegistry()

	within := time.Duration(cfg.Token.SweepWithin) * time.Hour
	sweep := workers.NewSweepWorker(backend.Credentials, client, within)
	refresh := workers.NewRefreshWorker(tokens)

	registry.Register(queue.TypeCredentialsSweep, asynq.HandlerFunc(sweep.ProcessTask))
	registry.Register(queue.TypeCredentialRefresh, asynq.HandlerFunc(refresh.ProcessTask))

	scheduler, err := queue.NewSweepScheduler(cfg.Redis, cfg.Token.SweepInterval, cfg.Token.SweepWithin)
	if err != nil {
		slog.Error("failed to register sweep", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Shutdown()

	slog.Info("starting worker", "concurrency", 10, "sweep", cfg.Token.SweepInterval)
	if err := srv.Start(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	srv.Shutdown()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}
