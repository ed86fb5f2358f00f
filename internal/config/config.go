package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	EnvSandbox    = "sandbox"
	EnvProduction = "production"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	QBO       QBOConfig
	Token     TokenConfig
	Store     StoreConfig
	Audit     AuditConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`
	// CORSOrigins lists browser origins allowed to call the API; "*" allows
	// any origin without credentials. Empty disables CORS.
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
	// WorkerMetricsAddr is where cmd/worker serves /metrics; empty disables it.
	WorkerMetricsAddr string `env:"WORKER_METRICS_ADDR" envDefault:":9091"`
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxConns        int           `env:"DB_MAX_CONNS" envDefault:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" envDefault:"5"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	// MigrationsPath overrides the migrations compiled into the binary.
	MigrationsPath string `env:"MIGRATIONS_PATH"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type AuthConfig struct {
	JWTSecret    string `env:"ADMIN_JWT_SECRET"`
	APIKeyHeader string `env:"API_KEY_HEADER" envDefault:"X-API-Key"`
	APIKeyPrefix string `env:"API_KEY_PREFIX" envDefault:"lbk"`
	// AllowQueryKey permits ?api_key= as a fallback credential source.
	AllowQueryKey bool `env:"API_KEY_ALLOW_QUERY" envDefault:"true"`
}

type QBOConfig struct {
	Environment  string        `env:"QBO_ENVIRONMENT" envDefault:"sandbox"`
	ClientID     string        `env:"QBO_CLIENT_ID"`
	ClientSecret string        `env:"QBO_CLIENT_SECRET"`
	TokenURL     string        `env:"QBO_TOKEN_URL" envDefault:"https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"`
	BaseURL      string        `env:"QBO_BASE_URL"`
	MinorVersion string        `env:"QBO_MINOR_VERSION" envDefault:"65"`
	Timeout      time.Duration `env:"QBO_TIMEOUT" envDefault:"30s"`
}

type TokenConfig struct {
	RefreshBuffer time.Duration `env:"TOKEN_REFRESH_BUFFER" envDefault:"5m"`
	// DistributedLock serializes refreshes across processes through redis.
	DistributedLock bool          `env:"TOKEN_REFRESH_DISTRIBUTED_LOCK" envDefault:"false"`
	LockTTL         time.Duration `env:"TOKEN_REFRESH_LOCK_TTL" envDefault:"30s"`
	SweepInterval   string        `env:"TOKEN_SWEEP_INTERVAL" envDefault:"@every 15m"`
	SweepWithin     int           `env:"TOKEN_SWEEP_WITHIN_HOURS" envDefault:"1"`
}

type StoreConfig struct {
	Backend        string        `env:"STORE_BACKEND" envDefault:"memory"`
	TenantCacheTTL time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`
	TenantCache    string        `env:"TENANT_CACHE" envDefault:"memory"`
}

type AuditConfig struct {
	BatchSize     int           `env:"AUDIT_BATCH_SIZE" envDefault:"100"`
	FlushInterval time.Duration `env:"AUDIT_FLUSH_INTERVAL" envDefault:"5s"`
	QueueSize     int           `env:"AUDIT_QUEUE_SIZE" envDefault:"1000"`
}

type RateLimitConfig struct {
	StandardRPS   float64 `env:"RATE_LIMIT_STANDARD_RPS" envDefault:"10"`
	StandardBurst int     `env:"RATE_LIMIT_STANDARD_BURST" envDefault:"20"`
	ElevatedRPS   float64 `env:"RATE_LIMIT_ELEVATED_RPS" envDefault:"50"`
	ElevatedBurst int     `env:"RATE_LIMIT_ELEVATED_BURST" envDefault:"100"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.QBO.BaseURL == "" {
		cfg.QBO.BaseURL = BaseURLFor(cfg.QBO.Environment)
	}
	return cfg, nil
}

// BaseURLFor maps the upstream environment switch to its API host.
func BaseURLFor(environment string) string {
	if strings.EqualFold(environment, EnvProduction) {
		return "https://quickbooks.api.intuit.com"
	}
	return "https://sandbox-quickbooks.api.intuit.com"
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if c.Database.URL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: want %s or %s", c.Store.Backend, StoreMemory, StorePostgres)
	}
	switch strings.ToLower(c.QBO.Environment) {
	case EnvSandbox, EnvProduction:
	default:
		return fmt.Errorf("invalid QBO_ENVIRONMENT %q: want %s or %s", c.QBO.Environment, EnvSandbox, EnvProduction)
	}
	if c.QBO.ClientID == "" {
		missing = append(missing, "QBO_CLIENT_ID")
	}
	if c.QBO.ClientSecret == "" {
		missing = append(missing, "QBO_CLIENT_SECRET")
	}
	if c.Token.RefreshBuffer < 0 {
		return fmt.Errorf("TOKEN_REFRESH_BUFFER must not be negative")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}
