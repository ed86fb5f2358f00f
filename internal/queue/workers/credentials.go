package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/ledgerbridge/internal/credential"
	"github.com/nikhilbhutani/ledgerbridge/internal/queue"
	"github.com/nikhilbhutani/ledgerbridge/internal/token"
)

type RefreshEnqueuer interface {
	EnqueueCredentialRefresh(ctx context.Context, payload queue.CredentialRefreshPayload) error
}

// SweepWorker fans out a refresh task for every active credential whose
// access or refresh token expires inside the look-ahead window.
type SweepWorker struct {
	store    credential.Store
	enqueuer RefreshEnqueuer
	within   time.Duration
}

func NewSweepWorker(store credential.Store, enqueuer RefreshEnqueuer, within time.Duration) *SweepWorker {
	return &SweepWorker{store: store, enqueuer: enqueuer, within: within}
}

func (w *SweepWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.CredentialsSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	within := w.within
	if payload.WithinHours > 0 {
		within = time.Duration(payload.WithinHours) * time.Hour
	}

	creds, err := w.store.GetCredentialsExpiringWithin(ctx, within)
	if err != nil {
		return fmt.Errorf("list expiring credentials: %w", err)
	}

	var failed int
	for _, c := range creds {
		err := w.enqueuer.EnqueueCredentialRefresh(ctx, queue.CredentialRefreshPayload{TenantID: c.TenantID.String()})
		if err != nil {
			failed++
			slog.Error("failed to enqueue credential refresh", "tenant_id", c.TenantID, "error", err)
		}
	}
	slog.Info("credential sweep completed", "expiring", len(creds), "enqueue_failures", failed, "within", within)
	if failed > 0 {
		return fmt.Errorf("enqueue failed for %d of %d credentials", failed, len(creds))
	}
	return nil
}

type Freshener interface {
	EnsureFresh(ctx context.Context, tenantID uuid.UUID) error
}

// RefreshWorker refreshes one tenant's token ahead of expiry. Outcomes that
// need the tenant to reconnect are not retried.
type RefreshWorker struct {
	tokens Freshener
}

func NewRefreshWorker(tokens Freshener) *RefreshWorker {
	return &RefreshWorker{tokens: tokens}
}

func (w *RefreshWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.CredentialRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return fmt.Errorf("parse tenant ID: %w: %w", err, asynq.SkipRetry)
	}

	err = w.tokens.EnsureFresh(ctx, tenantID)
	if err == nil {
		return nil
	}

	var tokErr *token.Error
	if errors.As(err, &tokErr) && tokErr.NeedsReconnect {
		slog.Warn("credential needs reconnect, not retrying", "tenant_id", tenantID, "code", tokErr.Code)
		return fmt.Errorf("refresh %s: %w: %w", tenantID, err, asynq.SkipRetry)
	}
	return fmt.Errorf("refresh %s: %w", tenantID, err)
}
