// Package token keeps each tenant's upstream access token usable: it
// refreshes ahead of expiry, retries once on an upstream 401, and records
// every refresh outcome on the stored credential.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/nikhilbhutani/ledgerbridge/internal/audit"
	"github.com/nikhilbhutani/ledgerbridge/internal/background"
	"github.com/nikhilbhutani/ledgerbridge/internal/credential"
	"github.com/nikhilbhutani/ledgerbridge/internal/metrics"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
	"github.com/nikhilbhutani/ledgerbridge/internal/oauth"
)

// maxAttempts bounds upstream calls per ExecuteWithRefresh: the initial
// call plus one retry.
const maxAttempts = 2

// CallFunc performs one upstream HTTP call with the given credentials.
type CallFunc func(ctx context.Context, accessToken, realmID string) (*http.Response, error)

// ParseFunc turns a non-401 upstream response into a result. The manager
// closes the body afterwards.
type ParseFunc[T any] func(resp *http.Response) (T, error)

type Manager struct {
	store          credential.Store
	refresher      oauth.Refresher
	locker         Locker
	group          singleflight.Group
	buffer         time.Duration
	refreshTimeout time.Duration
	now            func() time.Time
	audit          audit.Recorder
	metrics        *metrics.Metrics
	tasks          *background.Runner
}

type Option func(*Manager)

func WithLocker(l Locker) Option {
	return func(m *Manager) { m.locker = l }
}

func WithBuffer(d time.Duration) Option {
	return func(m *Manager) { m.buffer = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithAudit(r audit.Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.audit = r
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithRunner enables best-effort last-sync bookkeeping after successful calls.
func WithRunner(r *background.Runner) Option {
	return func(m *Manager) { m.tasks = r }
}

func NewManager(store credential.Store, refresher oauth.Refresher, opts ...Option) *Manager {
	m := &Manager{
		store:          store,
		refresher:      refresher,
		locker:         NoopLocker{},
		buffer:         oauth.DefaultBuffer,
		refreshTimeout: 30 * time.Second,
		now:            time.Now,
		audit:          audit.Discard{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ExecuteWithRefresh runs call against the tenant's upstream company with a
// usable access token and hands the response to parse.
//
// Expected OAuth failures come back as *Error. Errors from parse are
// returned unchanged. Any other error is unexpected and already wrapped.
func ExecuteWithRefresh[T any](ctx context.Context, m *Manager, tenantID uuid.UUID, call CallFunc, parse ParseFunc[T]) (T, error) {
	var zero T

	cred, err := m.load(ctx, tenantID)
	if err != nil {
		return zero, err
	}
	if oauth.CheckValidity(cred, m.now(), m.buffer) != oauth.Valid {
		if cred, err = m.refresh(ctx, tenantID, cred.AccessToken); err != nil {
			return zero, err
		}
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := call(ctx, cred.AccessToken, cred.RealmID)
		if err != nil {
			if ctx.Err() != nil {
				return zero, newError(CodeNetworkError, ctx.Err())
			}
			if attempt < maxAttempts {
				slog.Warn("upstream call failed, retrying", "tenant_id", tenantID, "error", err)
				continue
			}
			return zero, newError(CodeNetworkError, err)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp)
			if attempt == maxAttempts {
				return zero, m.rejectedAfterRefresh(ctx, tenantID)
			}
			slog.Info("upstream rejected access token, forcing refresh", "tenant_id", tenantID)
			if cred, err = m.refresh(ctx, tenantID, cred.AccessToken); err != nil {
				return zero, err
			}
			continue
		}

		result, err := parse(resp)
		resp.Body.Close()
		if err == nil {
			m.markSynced(tenantID)
		}
		return result, err
	}
	// The loop always returns; this satisfies the compiler.
	return zero, newError(CodeTokenExpired, errors.New("attempts exhausted"))
}

// EnsureFresh refreshes the tenant's token if it is expired or inside the
// safety buffer. Used by the background sweep.
func (m *Manager) EnsureFresh(ctx context.Context, tenantID uuid.UUID) error {
	cred, err := m.load(ctx, tenantID)
	if err != nil {
		return err
	}
	if oauth.CheckValidity(cred, m.now(), m.buffer) == oauth.Valid {
		return nil
	}
	_, err = m.refresh(ctx, tenantID, cred.AccessToken)
	return err
}

// ConnectionInfo describes a tenant's upstream connection without secrets.
type ConnectionInfo struct {
	Connected             bool                    `json:"connected"`
	Status                models.ConnectionStatus `json:"status"`
	RealmID               string                  `json:"realmId,omitempty"`
	Validity              oauth.Validity          `json:"validity,omitempty"`
	AccessTokenExpiresAt  *time.Time              `json:"accessTokenExpiresAt,omitempty"`
	RefreshTokenExpiresAt *time.Time              `json:"refreshTokenExpiresAt,omitempty"`
	LastSyncAt            *time.Time              `json:"lastSyncAt,omitempty"`
}

func (m *Manager) Connection(ctx context.Context, tenantID uuid.UUID) (*ConnectionInfo, error) {
	cred, err := m.store.GetCredential(ctx, tenantID)
	if errors.Is(err, credential.ErrNotFound) {
		return &ConnectionInfo{Connected: false, Status: models.ConnectionDisconnected}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return &ConnectionInfo{
		Connected:             cred.Usable(),
		Status:                cred.Status,
		RealmID:               cred.RealmID,
		Validity:              oauth.CheckValidity(cred, m.now(), m.buffer),
		AccessTokenExpiresAt:  cred.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: cred.RefreshTokenExpiresAt,
		LastSyncAt:            cred.LastSyncAt,
	}, nil
}

// Disconnect clears the active flag. The record is kept for audit history.
func (m *Manager) Disconnect(ctx context.Context, tenantID uuid.UUID) error {
	status := models.ConnectionDisconnected
	inactive := false
	err := m.store.UpdateCredential(ctx, tenantID, models.CredentialUpdate{Status: &status, IsActive: &inactive})
	if errors.Is(err, credential.ErrNotFound) {
		return newError(CodeNotConnected, err)
	}
	if err != nil {
		return fmt.Errorf("disconnect credential: %w", err)
	}
	m.record(ctx, tenantID, models.AuditCredDisconnected, nil)
	slog.Info("credential disconnected", "tenant_id", tenantID)
	return nil
}

func (m *Manager) load(ctx context.Context, tenantID uuid.UUID) (*models.Credential, error) {
	cred, err := m.store.GetActiveCredential(ctx, tenantID)
	if errors.Is(err, credential.ErrNotFound) {
		return nil, newError(CodeNotConnected, errors.New("no active credential"))
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if !cred.Usable() {
		return nil, newError(CodeNotConnected, fmt.Errorf("credential is %s", cred.Status))
	}
	return cred, nil
}

// refresh obtains a new access token. Concurrent refreshes for one tenant
// share a single exchange; the exchange itself runs detached from the
// caller's cancellation so a completed exchange is always persisted.
//
// The group is keyed by tenant only. A caller that joins an exchange in
// flight takes its result even if it saw a different stale token: any
// token the exchange returns was issued after both callers read theirs.
func (m *Manager) refresh(ctx context.Context, tenantID uuid.UUID, stale string) (*models.Credential, error) {
	ch := m.group.DoChan(tenantID.String(), func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return m.refreshLocked(rctx, tenantID, stale)
	})

	select {
	case <-ctx.Done():
		return nil, newError(CodeNetworkError, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		cred := *res.Val.(*models.Credential)
		return &cred, nil
	}
}

func (m *Manager) refreshLocked(ctx context.Context, tenantID uuid.UUID, stale string) (*models.Credential, error) {
	unlock, err := m.locker.Lock(ctx, tenantID)
	if err != nil {
		slog.Warn("refresh lock unavailable, refreshing without it", "tenant_id", tenantID, "error", err)
		unlock = func() {}
	}
	defer unlock()

	current, err := m.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	now := m.now()

	// Another refresher got here first.
	if current.AccessToken != stale && oauth.CheckValidity(current, now, m.buffer) == oauth.Valid {
		m.metrics.ObserveRefresh("reused")
		return current, nil
	}

	if oauth.RefreshTokenExpired(current, now) {
		status := models.ConnectionExpired
		m.persistFailure(ctx, tenantID, models.CredentialUpdate{Status: &status})
		m.record(ctx, tenantID, models.AuditTokenExpired, map[string]interface{}{"reason": "refresh token expired"})
		m.metrics.ObserveRefresh("expired")
		slog.Warn("refresh token expired, reconnect required", "tenant_id", tenantID)
		return nil, newError(CodeTokenExpired, errors.New("refresh token expired"))
	}

	set, err := m.refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return nil, m.refreshFailed(ctx, tenantID, err)
	}

	status := models.ConnectionActive
	update := models.CredentialUpdate{
		AccessToken:           &set.AccessToken,
		RefreshToken:          &set.RefreshToken,
		AccessTokenExpiresAt:  &set.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: set.RefreshTokenExpiresAt,
		Status:                &status,
	}
	if err := m.store.UpdateCredential(ctx, tenantID, update); err != nil {
		m.metrics.ObserveRefresh("persist_failed")
		return nil, fmt.Errorf("persist refreshed token: %w", err)
	}
	update.Apply(current)

	m.metrics.ObserveRefresh("success")
	m.record(ctx, tenantID, models.AuditTokenRefreshed, map[string]interface{}{
		"access_token_expires_at": set.AccessTokenExpiresAt,
	})
	slog.Info("access token refreshed", "tenant_id", tenantID, "expires_at", set.AccessTokenExpiresAt)
	return current, nil
}

func (m *Manager) refreshFailed(ctx context.Context, tenantID uuid.UUID, err error) error {
	switch kind := oauth.ClassifyRefreshError(err); kind {
	case oauth.FailureNetwork:
		m.metrics.ObserveRefresh("network")
		slog.Warn("token refresh hit a transient error", "tenant_id", tenantID, "error", err)
		return newError(CodeNetworkError, err)

	case oauth.FailureRevoked:
		status := models.ConnectionRevoked
		inactive := false
		m.persistFailure(ctx, tenantID, models.CredentialUpdate{Status: &status, IsActive: &inactive})
		m.record(ctx, tenantID, models.AuditTokenRevoked, map[string]interface{}{"error": err.Error()})
		m.metrics.ObserveRefresh("revoked")
		slog.Warn("upstream grant revoked, reconnect required", "tenant_id", tenantID, "error", err)
		return newError(CodeTokenRevoked, err)

	default:
		status := models.ConnectionRefreshFailed
		m.persistFailure(ctx, tenantID, models.CredentialUpdate{Status: &status})
		m.record(ctx, tenantID, models.AuditRefreshFailed, map[string]interface{}{"error": err.Error()})
		m.metrics.ObserveRefresh("failed")
		slog.Error("token refresh failed", "tenant_id", tenantID, "error", err)
		return newError(CodeRefreshFailed, err)
	}
}

// rejectedAfterRefresh handles a 401 on the retry, i.e. for a token we
// just obtained.
func (m *Manager) rejectedAfterRefresh(ctx context.Context, tenantID uuid.UUID) error {
	status := models.ConnectionExpired
	m.persistFailure(ctx, tenantID, models.CredentialUpdate{Status: &status})
	m.record(ctx, tenantID, models.AuditTokenExpired, map[string]interface{}{"reason": "refreshed token rejected"})
	slog.Warn("upstream rejected refreshed token", "tenant_id", tenantID)
	return newError(CodeTokenExpired, errors.New("upstream rejected refreshed access token"))
}

func (m *Manager) persistFailure(ctx context.Context, tenantID uuid.UUID, u models.CredentialUpdate) {
	if err := m.store.UpdateCredential(ctx, tenantID, u); err != nil {
		slog.Error("failed to record credential failure state", "tenant_id", tenantID, "error", err)
	}
}

func (m *Manager) markSynced(tenantID uuid.UUID) {
	if m.tasks == nil {
		return
	}
	now := m.now().UTC()
	if !m.tasks.Go("credential.last_sync", func(ctx context.Context) error {
		return m.store.UpdateCredential(ctx, tenantID, models.CredentialUpdate{LastSyncAt: &now})
	}) {
		m.metrics.ObserveDropped()
	}
}

func (m *Manager) record(ctx context.Context, tenantID uuid.UUID, action string, details map[string]interface{}) {
	entry := models.AuditLog{
		TenantID:     &tenantID,
		Action:       action,
		ResourceType: "oauth_credential",
		ResourceID:   tenantID.String(),
	}
	if details != nil {
		entry.Details, _ = json.Marshal(details)
	}
	m.audit.Record(ctx, entry)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
