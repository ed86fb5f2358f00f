package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/ledgerbridge/internal/api/handlers"
	"github.com/nikhilbhutani/ledgerbridge/internal/api/middleware"
	"github.com/nikhilbhutani/ledgerbridge/internal/audit"
	"github.com/nikhilbhutani/ledgerbridge/internal/auth"
	"github.com/nikhilbhutani/ledgerbridge/internal/config"
	"github.com/nikhilbhutani/ledgerbridge/internal/credential"
	"github.com/nikhilbhutani/ledgerbridge/internal/metrics"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
	"github.com/nikhilbhutani/ledgerbridge/internal/proxy"
	"github.com/nikhilbhutani/ledgerbridge/internal/tenant"
	"github.com/nikhilbhutani/ledgerbridge/internal/token"
)

// Deps are the services the router wires into handlers. DB and Redis may be
// nil when running on the in-memory backend.
type Deps struct {
	Config      *config.Config
	DB          *pgxpool.Pool
	Redis       *redis.Client
	Tenants     *tenant.Service
	Auth        *auth.Authenticator
	Tokens      *token.Manager
	Proxy       *proxy.Engine
	Credentials credential.Store
	Audit       audit.Recorder
	AuditSink   audit.Sink
	Metrics     *metrics.Metrics
}

type Router struct {
	mux     *chi.Mux
	deps    Deps
	apikey  *auth.APIKeyMiddleware
	guard   *auth.TenantGuard
	admin   *auth.AdminAuth
	limiter *middleware.RateLimiter
}

func NewRouter(d Deps) *Router {
	cfg := d.Config
	return &Router{
		mux:    chi.NewRouter(),
		deps:   d,
		apikey: auth.NewAPIKeyMiddleware(d.Auth, cfg.Auth.APIKeyHeader, cfg.Auth.AllowQueryKey, d.Audit),
		guard:  auth.NewTenantGuard(d.Tenants, d.Audit),
		admin:  auth.NewAdminAuth(cfg.Auth.JWTSecret),
		limiter: middleware.NewRateLimiter(map[models.RateLimitTier]middleware.Tier{
			models.TierStandard: {RPS: cfg.RateLimit.StandardRPS, Burst: cfg.RateLimit.StandardBurst},
			models.TierElevated: {RPS: cfg.RateLimit.ElevatedRPS, Burst: cfg.RateLimit.ElevatedBurst},
		}),
	}
}

// Close releases router-owned background resources.
func (rt *Router) Close() {
	rt.limiter.Close()
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics(rt.deps.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.deps.Config.Server.CORSOrigins))

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.deps.DB, rt.deps.Redis, rt.deps.Config.Store.Backend)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	if rt.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.deps.Metrics.Handler())
	}

	// Tenant-scoped API
	r.Route("/v1/org/{slug}", func(r chi.Router) {
		r.Use(rt.apikey.Authenticate)
		r.Use(rt.limiter.Limit)
		// Tenant binding is checked before the key's own allow-list so a
		// cross-tenant attempt is always reported and audited as a mismatch.
		r.Use(rt.guard.Require)
		r.Use(auth.RequirePermission)

		proxyH := handlers.NewProxyHandler(rt.deps.Proxy)
		r.Route("/proxy", func(r chi.Router) {
			r.Get("/data", proxyH.List)
			r.Get("/data/{id}", proxyH.Get)
		})

		connH := handlers.NewConnectionHandler(rt.deps.Tokens)
		r.Route("/qbo", func(r chi.Router) {
			r.Get("/status", connH.Status)
			r.Post("/disconnect", connH.Disconnect)
		})
	})

	// Operator API: global admin key or admin JWT
	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(rt.apikey.Optional)
		r.Use(rt.admin.Require)

		keyH := handlers.NewKeyHandler(rt.deps.Auth, rt.deps.Tenants)
		r.Post("/keys", keyH.Create)
		r.Post("/keys/{id}/rotate", keyH.Rotate)
		r.Post("/keys/{id}/revoke", keyH.Revoke)
		r.Get("/orgs/{slug}/keys", keyH.List)

		adminH := handlers.NewAdminHandler(rt.deps.AuditSink, rt.deps.Credentials, rt.deps.Tenants)
		r.Get("/audit", adminH.AuditLogs)
		r.Get("/credentials/expiring", adminH.ExpiringCredentials)
	})

	return r
}
