package app

import (
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/ledgerbridge/internal/audit"
	"github.com/nikhilbhutani/ledgerbridge/internal/background"
	"github.com/nikhilbhutani/ledgerbridge/internal/config"
	"github.com/nikhilbhutani/ledgerbridge/internal/credential"
	"github.com/nikhilbhutani/ledgerbridge/internal/metrics"
	"github.com/nikhilbhutani/ledgerbridge/internal/oauth"
	"github.com/nikhilbhutani/ledgerbridge/internal/token"
)

// NewTokenManager builds the token manager shared by the API and the worker.
// rdb is only consulted when the distributed refresh lock is enabled.
func NewTokenManager(cfg *config.Config, creds credential.Store, rdb *redis.Client, rec audit.Recorder, m *metrics.Metrics, runner *background.Runner) *token.Manager {
	refresher := oauth.NewClient(cfg.QBO.ClientID, cfg.QBO.ClientSecret, cfg.QBO.TokenURL, nil)

	opts := []token.Option{
		token.WithBuffer(cfg.Token.RefreshBuffer),
		token.WithAudit(rec),
		token.WithMetrics(m),
		token.WithRunner(runner),
	}
	if cfg.Token.DistributedLock && rdb != nil {
		opts = append(opts, token.WithLocker(token.NewRedisLocker(rdb, cfg.Token.LockTTL)))
	}
	return token.NewManager(creds, refresher, opts...)
}

// NewRedis returns a client for cfg. Connectivity is not checked here.
func NewRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
