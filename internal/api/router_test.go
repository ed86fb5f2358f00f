package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/ledgerbridge/internal/audit"
	"github.com/nikhilbhutani/ledgerbridge/internal/auth"
	"github.com/nikhilbhutani/ledgerbridge/internal/config"
	"github.com/nikhilbhutani/ledgerbridge/internal/credential"
	"github.com/nikhilbhutani/ledgerbridge/internal/metrics"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
	"github.com/nikhilbhutani/ledgerbridge/internal/oauth"
	"github.com/nikhilbhutani/ledgerbridge/internal/proxy"
	"github.com/nikhilbhutani/ledgerbridge/internal/qbo"
	"github.com/nikhilbhutani/ledgerbridge/internal/tenant"
	"github.com/nikhilbhutani/ledgerbridge/internal/token"
)

const adminSecret = "router-test-secret"

type countingRefresher struct {
	calls int32
}

func (c *countingRefresher) Refresh(context.Context, string) (*oauth.TokenSet, error) {
	atomic.AddInt32(&c.calls, 1)
	return &oauth.TokenSet{
		AccessToken:          "refreshed-access",
		RefreshToken:         "refreshed-refresh",
		AccessTokenExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

type testServer struct {
	handler       http.Handler
	tenants       *tenant.Service
	auth          *auth.Authenticator
	creds         *credential.MemoryStore
	sink          *audit.MemorySink
	refresher     *countingRefresher
	upstreamCalls int32
	upstreamToken atomic.Value
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		creds:     credential.NewMemoryStore(),
		sink:      audit.NewMemorySink(),
		refresher: &countingRefresher{},
	}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&ts.upstreamCalls, 1)
		ts.upstreamToken.Store(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/query") {
			w.Write([]byte(`{"QueryResponse":{"Customer":[{"Id":"7","DisplayName":"Acme Corp","domain":"QBO","sparse":false,"SyncToken":"1"}]}}`))
			return
		}
		w.Write([]byte(`{"Customer":{"Id":"7","DisplayName":"Acme Corp","SyncToken":"1"}}`))
	}))
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		Auth:      config.AuthConfig{JWTSecret: adminSecret, APIKeyHeader: "X-API-Key", APIKeyPrefix: "lbk"},
		Store:     config.StoreConfig{Backend: config.StoreMemory},
		RateLimit: config.RateLimitConfig{StandardRPS: 100, StandardBurst: 100, ElevatedRPS: 100, ElevatedBurst: 100},
	}
	m := metrics.NewMetrics("ledgerbridge_test")
	recorder := audit.NewBatcher(ts.sink, 100, 1, 10*time.Millisecond)
	t.Cleanup(recorder.Close)

	ts.tenants = tenant.NewService(tenant.NewMemoryRepository(), nil, time.Minute)
	ts.auth = auth.NewAuthenticator(auth.NewMemoryKeyStore(), "lbk", auth.WithAudit(recorder), auth.WithMetrics(m))
	tokens := token.NewManager(ts.creds, ts.refresher, token.WithAudit(recorder), token.WithMetrics(m))
	engine := proxy.NewEngine(tokens, qbo.NewClient(upstream.URL, "65", time.Second, m))

	rt := NewRouter(Deps{
		Config:      cfg,
		Tenants:     ts.tenants,
		Auth:        ts.auth,
		Tokens:      tokens,
		Proxy:       engine,
		Credentials: ts.creds,
		Audit:       recorder,
		AuditSink:   ts.sink,
		Metrics:     m,
	})
	t.Cleanup(rt.Close)
	ts.handler = rt.Setup()
	return ts
}

func (ts *testServer) org(t *testing.T, slug string) (*models.Tenant, string) {
	t.Helper()
	org, err := ts.tenants.Create(context.Background(), strings.ToUpper(slug[:1])+slug[1:], slug)
	require.NoError(t, err)
	issued, err := ts.auth.Create(context.Background(), auth.CreateKeyParams{TenantID: &org.ID, Name: slug + " key"})
	require.NoError(t, err)
	return org, issued.Secret
}

func (ts *testServer) connect(t *testing.T, org *models.Tenant, accessExpiresIn time.Duration) {
	t.Helper()
	exp := time.Now().Add(accessExpiresIn)
	require.NoError(t, ts.creds.Upsert(context.Background(), &models.Credential{
		TenantID:             org.ID,
		RealmID:              "9341452",
		AccessToken:          "original-access",
		RefreshToken:         "original-refresh",
		AccessTokenExpiresAt: &exp,
		Status:               models.ConnectionActive,
		IsActive:             true,
	}))
}

func (ts *testServer) do(t *testing.T, method, path, apiKey string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func (ts *testServer) adminDo(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	tok, err := auth.NewAdminAuth(adminSecret).Issue("ops", time.Hour)
	require.NoError(t, err)

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestProxy_ExpiredCredentialIsRefreshed(t *testing.T) {
	ts := newTestServer(t)
	acme, key := ts.org(t, "acme")
	ts.connect(t, acme, -10*time.Minute)

	rec, body := ts.do(t, http.MethodGet, "/v1/org/acme/proxy/data?type=customers", key, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&ts.refresher.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&ts.upstreamCalls))
	assert.Equal(t, "refreshed-access", ts.upstreamToken.Load())

	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	row := data[0].(map[string]interface{})
	assert.Equal(t, "Acme Corp", row["DisplayName"])
	assert.NotContains(t, row, "SyncToken")

	meta := body["meta"].(map[string]interface{})
	assert.Equal(t, "customers", meta["type"])
	assert.Equal(t, float64(1), meta["count"])
	assert.Equal(t, float64(20), meta["limit"])
	assert.Equal(t, false, meta["hasMore"])
}

func TestProxy_NoCredential(t *testing.T) {
	ts := newTestServer(t)
	_, key := ts.org(t, "acme")

	rec, body := ts.do(t, http.MethodGet, "/v1/org/acme/proxy/data?type=customers", key, nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "ERR_QBO_UNAVAILABLE", body["errorCode"])
	assert.Equal(t, true, body["needsReconnect"])
	assert.Zero(t, atomic.LoadInt32(&ts.upstreamCalls))
}

func TestProxy_CrossTenantKeyRejected(t *testing.T) {
	ts := newTestServer(t)
	acme, _ := ts.org(t, "acme")
	globex, globexKey := ts.org(t, "globex")
	ts.connect(t, acme, time.Hour)
	ts.connect(t, globex, time.Hour)

	for _, path := range []string{
		"/v1/org/acme/proxy/data?type=customers",
		"/v1/org/acme/proxy/data/7?type=customers",
		"/v1/org/acme/qbo/status",
	} {
		rec, body := ts.do(t, http.MethodGet, path, globexKey, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
		assert.Equal(t, "ERR_KEY_ORG_MISMATCH", body["errorCode"], path)
	}
	assert.Zero(t, atomic.LoadInt32(&ts.upstreamCalls))

	require.Eventually(t, func() bool {
		for _, e := range ts.sink.Entries() {
			if e.Action == models.AuditKeyOrgMismatch {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestProxy_ScopedKeyCrossTenant(t *testing.T) {
	ts := newTestServer(t)
	acme, _ := ts.org(t, "acme")
	globex, _ := ts.org(t, "globex")
	ts.connect(t, acme, time.Hour)
	ts.connect(t, globex, time.Hour)

	scoped, err := ts.auth.Create(context.Background(), auth.CreateKeyParams{
		TenantID:    &globex.ID,
		Name:        "globex status only",
		Permissions: models.Permissions{Endpoints: []string{"/v1/org/globex/qbo/**"}},
	})
	require.NoError(t, err)

	rec, body := ts.do(t, http.MethodGet, "/v1/org/acme/proxy/data?type=customers", scoped.Secret, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "ERR_KEY_ORG_MISMATCH", body["errorCode"])

	rec, body = ts.do(t, http.MethodGet, "/v1/org/globex/proxy/data?type=customers", scoped.Secret, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "ERR_KEY_FORBIDDEN", body["errorCode"])

	rec, _ = ts.do(t, http.MethodGet, "/v1/org/globex/qbo/status", scoped.Secret, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, atomic.LoadInt32(&ts.upstreamCalls))

	require.Eventually(t, func() bool {
		n := 0
		for _, e := range ts.sink.Entries() {
			if e.Action == models.AuditKeyOrgMismatch {
				n++
			}
		}
		return n == 1
	}, time.Second, 10*time.Millisecond)
}

func TestProxy_MissingOrInvalidKey(t *testing.T) {
	ts := newTestServer(t)
	ts.org(t, "acme")

	rec, body := ts.do(t, http.MethodGet, "/v1/org/acme/proxy/data?type=customers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, auth.CodeMissingKey, body["errorCode"])

	rec, body = ts.do(t, http.MethodGet, "/v1/org/acme/proxy/data?type=customers", "lbk_0000", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, auth.CodeInvalidKey, body["errorCode"])
}

func TestProxy_GetByIDAndValidation(t *testing.T) {
	ts := newTestServer(t)
	acme, key := ts.org(t, "acme")
	ts.connect(t, acme, time.Hour)

	rec, body := ts.do(t, http.MethodGet, "/v1/org/acme/proxy/data/7?type=customers", key, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "7", data["Id"])
	assert.NotContains(t, data, "SyncToken")

	rec, body = ts.do(t, http.MethodGet, "/v1/org/acme/proxy/data?type=widgets", key, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, proxy.ErrCodeInvalidEntityType, body["errorCode"])

	rec, body = ts.do(t, http.MethodGet, "/v1/org/acme/proxy/data?type=customers&limit=abc", key, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, proxy.ErrCodeInvalidQuery, body["errorCode"])
}

func TestConnectionStatusAndDisconnect(t *testing.T) {
	ts := newTestServer(t)
	acme, key := ts.org(t, "acme")
	ts.connect(t, acme, time.Hour)

	rec, body := ts.do(t, http.MethodGet, "/v1/org/acme/qbo/status", key, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, true, data["connected"])
	assert.Equal(t, "valid", data["validity"])
	assert.NotContains(t, rec.Body.String(), "original-access")

	rec, _ = ts.do(t, http.MethodPost, "/v1/org/acme/qbo/disconnect", key, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = ts.do(t, http.MethodGet, "/v1/org/acme/proxy/data?type=customers", key, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "ERR_QBO_UNAVAILABLE", body["errorCode"])
}

func TestAdminKeyLifecycle(t *testing.T) {
	ts := newTestServer(t)
	acme, _ := ts.org(t, "acme")
	ts.connect(t, acme, time.Hour)

	rec, body := ts.adminDo(t, http.MethodPost, "/v1/admin/keys", map[string]interface{}{
		"organization": "acme",
		"name":         "ci",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	issued := body["data"].(map[string]interface{})
	secret := issued["secret"].(string)
	keyID := issued["key"].(map[string]interface{})["id"].(string)
	assert.True(t, strings.HasPrefix(secret, "lbk_"))

	rec, _ = ts.do(t, http.MethodGet, "/v1/org/acme/qbo/status", secret, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = ts.adminDo(t, http.MethodPost, "/v1/admin/keys/"+keyID+"/rotate", map[string]interface{}{"grace_period_hours": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := body["data"].(map[string]interface{})["secret"].(string)

	rec, _ = ts.do(t, http.MethodGet, "/v1/org/acme/qbo/status", secret, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "zero grace invalidates the old key at once")
	rec, _ = ts.do(t, http.MethodGet, "/v1/org/acme/qbo/status", rotated, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = ts.adminDo(t, http.MethodGet, "/v1/admin/orgs/acme/keys", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"].([]interface{}), 3)
	assert.NotContains(t, rec.Body.String(), rotated)

	rec, _ = ts.adminDo(t, http.MethodPost, "/v1/admin/keys/"+keyID+"/revoke", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = ts.adminDo(t, http.MethodPost, "/v1/admin/keys/"+keyID+"/rotate", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	ts := newTestServer(t)
	_, key := ts.org(t, "acme")

	rec, _ := ts.do(t, http.MethodGet, "/v1/admin/audit", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := ts.do(t, http.MethodGet, "/v1/admin/audit", key, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, auth.CodeAdminRequired, body["errorCode"])

	global, err := ts.auth.Create(context.Background(), auth.CreateKeyParams{Name: "ops", Type: models.APIKeyGlobalAdmin})
	require.NoError(t, err)
	rec, _ = ts.do(t, http.MethodGet, "/v1/admin/audit", global.Secret, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminExpiringCredentials(t *testing.T) {
	ts := newTestServer(t)
	acme, _ := ts.org(t, "acme")
	globex, _ := ts.org(t, "globex")
	ts.connect(t, acme, time.Hour)
	ts.connect(t, globex, time.Hour)

	soon := time.Now().Add(12 * time.Hour)
	status := models.ConnectionActive
	require.NoError(t, ts.creds.UpdateCredential(context.Background(), acme.ID,
		models.CredentialUpdate{RefreshTokenExpiresAt: &soon, Status: &status}))

	rec, body := ts.adminDo(t, http.MethodGet, "/v1/admin/credentials/expiring?hours=24", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	assert.Equal(t, acme.ID.String(), data[0].(map[string]interface{})["tenantId"])
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, _ = ts.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ledgerbridge_test_http_request_duration_seconds")
}
