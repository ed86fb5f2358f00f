package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/ledgerbridge/internal/models"
	"github.com/nikhilbhutani/ledgerbridge/internal/tenant"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, false, body["success"])
	return body
}

func okHandler(reached *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*reached++
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyMiddleware(t *testing.T) {
	a, _, _, spy := newTestAuthenticator(t)
	issued := createTenantKey(t, a, uuid.New())
	mw := NewAPIKeyMiddleware(a, "X-API-Key", true, spy)

	var reached int
	var seen *models.APIKey
	h := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached++
		seen = KeyFromContext(r.Context())
	}))

	t.Run("missing key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/org/acme/proxy/data", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeMissingKey, decodeError(t, rec)["errorCode"])
	})

	t.Run("invalid key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/org/acme/proxy/data", nil)
		req.Header.Set("X-API-Key", "lbk_nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeInvalidKey, decodeError(t, rec)["errorCode"])
	})

	t.Run("header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/org/acme/proxy/data", nil)
		req.Header.Set("X-API-Key", issued.Secret)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, issued.Key.ID, seen.ID)
		assert.NotContains(t, spy.actions(), models.AuditKeyQueryParam)
	})

	t.Run("query fallback is audited", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/org/acme/proxy/data?api_key="+issued.Secret, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, spy.actions(), models.AuditKeyQueryParam)
	})

	assert.Equal(t, 2, reached)
}

func TestAPIKeyMiddleware_QueryFallbackDisabled(t *testing.T) {
	a, _, _, _ := newTestAuthenticator(t)
	issued := createTenantKey(t, a, uuid.New())
	mw := NewAPIKeyMiddleware(a, "X-API-Key", false, nil)

	var reached int
	rec := httptest.NewRecorder()
	mw.Authenticate(okHandler(&reached)).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/x?api_key="+issued.Secret, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, reached)
}

func guardedRouter(t *testing.T) (http.Handler, *Authenticator, *tenant.Service, *auditSpy, *int) {
	t.Helper()
	a, _, _, spy := newTestAuthenticator(t)
	tenants := tenant.NewService(tenant.NewMemoryRepository(), nil, time.Minute)
	mw := NewAPIKeyMiddleware(a, "X-API-Key", false, spy)
	guard := NewTenantGuard(tenants, spy)

	reached := new(int)
	r := chi.NewRouter()
	r.With(mw.Authenticate, guard.Require).Get("/v1/org/{slug}/proxy/data", func(w http.ResponseWriter, r *http.Request) {
		*reached++
		w.Write([]byte(tenant.FromContext(r.Context()).Slug))
	})
	return r, a, tenants, spy, reached
}

func TestTenantGuard(t *testing.T) {
	router, a, tenants, spy, reached := guardedRouter(t)
	ctx := context.Background()
	acme, err := tenants.Create(ctx, "Acme", "acme")
	require.NoError(t, err)
	globex, err := tenants.Create(ctx, "Globex", "globex")
	require.NoError(t, err)

	acmeKey := createTenantKey(t, a, acme.ID)
	globexKey := createTenantKey(t, a, globex.ID)
	admin, err := a.Create(ctx, CreateKeyParams{Name: "ops", Type: models.APIKeyGlobalAdmin})
	require.NoError(t, err)

	do := func(slug, secret string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/org/"+slug+"/proxy/data", nil)
		req.Header.Set("X-API-Key", secret)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := do("acme", acmeKey.Secret)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", rec.Body.String())

	rec = do("acme", globexKey.Secret)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeKeyOrgMismatch, decodeError(t, rec)["errorCode"])
	assert.Contains(t, spy.actions(), models.AuditKeyOrgMismatch)

	rec = do("initech", acmeKey.Secret)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do("globex", admin.Secret)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do("initech", admin.Secret)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, 2, *reached)
}

func TestRequirePermission(t *testing.T) {
	a, _, _, _ := newTestAuthenticator(t)
	tenantID := uuid.New()
	issued, err := a.Create(context.Background(), CreateKeyParams{
		TenantID:    &tenantID,
		Name:        "status only",
		Permissions: models.Permissions{Endpoints: []string{"/v1/org/*/qbo/status"}},
	})
	require.NoError(t, err)

	mw := NewAPIKeyMiddleware(a, "X-API-Key", false, nil)
	var reached int
	h := mw.Authenticate(RequirePermission(okHandler(&reached)))

	for path, want := range map[string]int{
		"/v1/org/acme/qbo/status": http.StatusOK,
		"/v1/org/acme/proxy/data": http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-API-Key", issued.Secret)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, path)
	}
	assert.Equal(t, 1, reached)
}

func TestAdminAuth(t *testing.T) {
	admin := NewAdminAuth("test-secret")
	var reached int
	h := admin.Require(okHandler(&reached))

	token, err := admin.Issue("ops@example.com", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/audit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	forged, err := NewAdminAuth("other-secret").Issue("mallory", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/v1/admin/audit", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/audit", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tenantID := uuid.New()
	tenantKey := &models.APIKey{ID: uuid.New(), TenantID: &tenantID, Type: models.APIKeyTenant}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/audit", nil).
		WithContext(WithAPIKey(context.Background(), tenantKey)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	globalKey := &models.APIKey{ID: uuid.New(), Type: models.APIKeyGlobalAdmin}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/audit", nil).
		WithContext(WithAPIKey(context.Background(), globalKey)))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 2, reached)
}
