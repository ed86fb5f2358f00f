package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

// Recorder accepts audit entries without blocking the caller.
type Recorder interface {
	Record(ctx context.Context, entry models.AuditLog)
}

// Sink persists batches of audit entries and serves the audit viewer.
type Sink interface {
	Write(ctx context.Context, entries []models.AuditLog) error
	Query(ctx context.Context, q Query) ([]models.AuditLog, error)
}

type Query struct {
	TenantID  *uuid.UUID
	Action    string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// Discard is a Recorder that drops everything.
type Discard struct{}

func (Discard) Record(context.Context, models.AuditLog) {}
