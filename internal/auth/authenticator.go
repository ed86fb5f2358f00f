package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/ledgerbridge/internal/audit"
	"github.com/nikhilbhutani/ledgerbridge/internal/background"
	"github.com/nikhilbhutani/ledgerbridge/internal/metrics"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

// Authenticator validates API key secrets and manages key lifecycles.
type Authenticator struct {
	store   KeyStore
	prefix  string
	now     func() time.Time
	tasks   *background.Runner
	audit   audit.Recorder
	metrics *metrics.Metrics
}

type Option func(*Authenticator)

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// WithRunner enables last-used bookkeeping. Without it the timestamp is not recorded.
func WithRunner(r *background.Runner) Option {
	return func(a *Authenticator) { a.tasks = r }
}

func WithAudit(r audit.Recorder) Option {
	return func(a *Authenticator) { a.audit = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authenticator) { a.metrics = m }
}

func NewAuthenticator(store KeyStore, prefix string, opts ...Option) *Authenticator {
	a := &Authenticator{
		store:  store,
		prefix: prefix,
		now:    time.Now,
		audit:  audit.Discard{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Validate resolves a presented secret to its key. Every rejection is
// ErrInvalidKey so callers cannot learn which check failed.
func (a *Authenticator) Validate(ctx context.Context, secret string) (*models.APIKey, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		a.metrics.ObserveAuth("missing")
		return nil, ErrInvalidKey
	}

	hash := HashAPIKey(secret)
	key, err := a.store.GetByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			slog.Error("api key lookup failed", "error", err)
		}
		a.metrics.ObserveAuth("invalid")
		return nil, ErrInvalidKey
	}
	if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		a.metrics.ObserveAuth("invalid")
		return nil, ErrInvalidKey
	}
	if reason := a.rejection(key); reason != "" {
		slog.Debug("api key rejected", "key_id", key.ID, "reason", reason)
		a.metrics.ObserveAuth(reason)
		return nil, ErrInvalidKey
	}

	a.metrics.ObserveAuth("valid")
	a.touch(key.ID)
	return key, nil
}

func (a *Authenticator) rejection(key *models.APIKey) string {
	now := a.now()
	switch {
	case !key.IsActive:
		return "inactive"
	case key.RevokedAt != nil && !now.Before(*key.RevokedAt):
		return "revoked"
	case key.ExpiresAt != nil && !now.Before(*key.ExpiresAt):
		return "expired"
	case key.GracePeriodEndsAt != nil && !now.Before(*key.GracePeriodEndsAt):
		return "grace_elapsed"
	}
	return ""
}

func (a *Authenticator) touch(id uuid.UUID) {
	if a.tasks == nil {
		return
	}
	at := a.now().UTC()
	if !a.tasks.Go("api_key.last_used", func(ctx context.Context) error {
		return a.store.TouchLastUsed(ctx, id, at)
	}) {
		a.metrics.ObserveDropped()
	}
}

type CreateKeyParams struct {
	TenantID    *uuid.UUID         `json:"tenant_id,omitempty"`
	Name        string             `json:"name"`
	Type        models.APIKeyType  `json:"type"`
	Permissions models.Permissions `json:"permissions"`
	ExpiresAt   *time.Time         `json:"expires_at,omitempty"`
}

// IssuedKey carries a secret. It is the only place a secret ever appears.
type IssuedKey struct {
	Key    *models.APIKey `json:"key"`
	Secret string         `json:"secret"`
}

func (a *Authenticator) Create(ctx context.Context, p CreateKeyParams) (*IssuedKey, error) {
	if p.Type == "" {
		p.Type = models.APIKeyTenant
	}
	switch p.Type {
	case models.APIKeyTenant:
		if p.TenantID == nil {
			return nil, fmt.Errorf("tenant key requires a tenant id")
		}
	case models.APIKeyGlobalAdmin:
		if p.TenantID != nil {
			return nil, fmt.Errorf("global admin key must not be bound to a tenant")
		}
	default:
		return nil, fmt.Errorf("unknown key type %q", p.Type)
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("key name is required")
	}
	if len(p.Permissions.Endpoints) == 0 {
		p.Permissions.Endpoints = []string{"*"}
	}
	if p.Permissions.RateTier == "" {
		p.Permissions.RateTier = models.TierStandard
	}

	issued, err := a.issue(p.TenantID, p.Name, p.Type, p.Permissions, p.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := a.store.Create(ctx, issued.Key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	a.record(ctx, issued.Key, models.AuditKeyCreated, nil)
	slog.Info("api key created", "key_id", issued.Key.ID, "tenant_id", issued.Key.TenantID, "type", issued.Key.Type)
	return issued, nil
}

// Rotate issues a replacement for id with the same binding and permissions.
// The old key keeps validating until now+grace.
func (a *Authenticator) Rotate(ctx context.Context, id uuid.UUID, grace time.Duration) (*IssuedKey, error) {
	if grace < 0 {
		return nil, fmt.Errorf("grace period must not be negative")
	}
	old, err := a.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if old.RevokedAt != nil || !old.IsActive {
		return nil, ErrKeyRevoked
	}
	if old.GracePeriodEndsAt != nil {
		return nil, ErrKeyRotated
	}

	issued, err := a.issue(old.TenantID, old.Name, old.Type, old.Permissions, old.ExpiresAt)
	if err != nil {
		return nil, err
	}
	graceEnds := a.now().Add(grace).UTC()
	if err := a.store.Rotate(ctx, old.ID, graceEnds, issued.Key); err != nil {
		return nil, fmt.Errorf("rotate api key: %w", err)
	}

	a.record(ctx, old, models.AuditKeyRotated, map[string]interface{}{
		"new_key_id":           issued.Key.ID,
		"grace_period_ends_at": graceEnds,
	})
	slog.Info("api key rotated", "key_id", old.ID, "new_key_id", issued.Key.ID, "grace_period_ends_at", graceEnds)
	return issued, nil
}

func (a *Authenticator) Revoke(ctx context.Context, id uuid.UUID) error {
	key, err := a.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := a.store.Revoke(ctx, id, a.now().UTC()); err != nil {
		return err
	}
	a.record(ctx, key, models.AuditKeyRevoked, nil)
	slog.Info("api key revoked", "key_id", id)
	return nil
}

func (a *Authenticator) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.APIKey, error) {
	return a.store.ListByTenant(ctx, tenantID)
}

func (a *Authenticator) issue(tenantID *uuid.UUID, name string, keyType models.APIKeyType, perms models.Permissions, expiresAt *time.Time) (*IssuedKey, error) {
	secret, display, err := GenerateKey(a.prefix)
	if err != nil {
		return nil, err
	}
	return &IssuedKey{
		Secret: secret,
		Key: &models.APIKey{
			ID:          uuid.New(),
			TenantID:    tenantID,
			KeyHash:     HashAPIKey(secret),
			KeyPrefix:   display,
			Name:        name,
			Type:        keyType,
			Permissions: perms,
			IsActive:    true,
			ExpiresAt:   expiresAt,
			CreatedAt:   a.now().UTC(),
		},
	}, nil
}

func (a *Authenticator) record(ctx context.Context, key *models.APIKey, action string, details map[string]interface{}) {
	entry := models.AuditLog{
		TenantID:     key.TenantID,
		APIKeyID:     &key.ID,
		Action:       action,
		ResourceType: "api_key",
		ResourceID:   key.ID.String(),
	}
	if details != nil {
		entry.Details, _ = json.Marshal(details)
	}
	a.audit.Record(ctx, entry)
}
