package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/nikhilbhutani/ledgerbridge/internal/app"
	"github.com/nikhilbhutani/ledgerbridge/internal/audit"
	"github.com/nikhilbhutani/ledgerbridge/internal/auth"
	"github.com/nikhilbhutani/ledgerbridge/internal/cli"
	"github.com/nikhilbhutani/ledgerbridge/internal/config"
	"github.com/nikhilbhutani/ledgerbridge/internal/tenant"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	root := cli.NewRootCmd(open)
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func open(ctx context.Context) (*cli.Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	backend, err := app.OpenBackend(ctx, cfg, true)
	if err != nil {
		return nil, err
	}
	batcher := audit.NewBatcher(backend.AuditSink, cfg.Audit.QueueSize, cfg.Audit.BatchSize, cfg.Audit.FlushInterval)

	env := &cli.Env{
		Tenants:     tenant.NewService(backend.Tenants, nil, 0),
		Keys:        auth.NewAuthenticator(backend.Keys, cfg.Auth.APIKeyPrefix, auth.WithAudit(batcher)),
		Credentials: backend.Credentials,
		Tokens:      app.NewTokenManager(cfg, backend.Credentials, nil, batcher, nil, nil),
		Close: func() {
			batcher.Close()
			backend.Close()
		},
	}
	if cfg.Auth.JWTSecret != "" {
		env.Admin = auth.NewAdminAuth(cfg.Auth.JWTSecret)
	}
	return env, nil
}
