package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/ledgerbridge/internal/audit"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
	"github.com/nikhilbhutani/ledgerbridge/internal/tenant"
)

// TenantGuard binds an authenticated key to the organization named in the
// route. It must run after APIKeyMiddleware.Authenticate.
type TenantGuard struct {
	tenants *tenant.Service
	audit   audit.Recorder
	param   string
}

func NewTenantGuard(ts *tenant.Service, rec audit.Recorder) *TenantGuard {
	if rec == nil {
		rec = audit.Discard{}
	}
	return &TenantGuard{tenants: ts, audit: rec, param: "slug"}
}

func (g *TenantGuard) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := KeyFromContext(r.Context())
		if key == nil {
			writeError(w, http.StatusUnauthorized, CodeMissingKey, "missing API key")
			return
		}
		slug := chi.URLParam(r, g.param)

		t, err := g.tenants.GetBySlug(r.Context(), slug)
		switch {
		case errors.Is(err, tenant.ErrNotFound):
			if key.IsGlobalAdmin() {
				writeError(w, http.StatusNotFound, CodeOrgNotFound, "organization not found")
				return
			}
			// Tenant keys learn nothing about which slugs exist.
			g.reject(w, r, key, slug, nil)
			return
		case err != nil:
			slog.Error("tenant lookup failed", "slug", slug, "error", err)
			writeError(w, http.StatusInternalServerError, CodeInternal, "tenant lookup failed")
			return
		}

		if !key.IsGlobalAdmin() && (key.TenantID == nil || *key.TenantID != t.ID) {
			g.reject(w, r, key, slug, t)
			return
		}

		next.ServeHTTP(w, r.WithContext(tenant.WithTenant(r.Context(), t)))
	})
}

func (g *TenantGuard) reject(w http.ResponseWriter, r *http.Request, key *models.APIKey, slug string, target *models.Tenant) {
	slog.Warn("api key used against another organization",
		"key_id", key.ID, "key_tenant_id", key.TenantID, "slug", slug, "path", r.URL.Path, "remote_addr", r.RemoteAddr)

	details := map[string]interface{}{"slug": slug, "path": r.URL.Path}
	if target != nil {
		details["target_tenant_id"] = target.ID
	}
	raw, _ := json.Marshal(details)
	g.audit.Record(r.Context(), models.AuditLog{
		TenantID:     key.TenantID,
		APIKeyID:     &key.ID,
		Action:       models.AuditKeyOrgMismatch,
		ResourceType: "organization",
		ResourceID:   slug,
		Details:      raw,
		IPAddress:    r.RemoteAddr,
	})
	writeError(w, http.StatusForbidden, CodeKeyOrgMismatch, "API key does not belong to this organization")
}
