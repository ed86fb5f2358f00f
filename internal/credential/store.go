// Package credential persists one OAuth credential per tenant.
package credential

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

var ErrNotFound = errors.New("credential not found")

type Store interface {
	// GetActiveCredential returns the tenant's credential if its active flag
	// is set, or ErrNotFound.
	GetActiveCredential(ctx context.Context, tenantID uuid.UUID) (*models.Credential, error)
	// GetCredential returns the tenant's credential in any state.
	GetCredential(ctx context.Context, tenantID uuid.UUID) (*models.Credential, error)
	UpdateCredential(ctx context.Context, tenantID uuid.UUID, u models.CredentialUpdate) error
	// GetCredentialsExpiringWithin lists active credentials whose access or
	// refresh token expires before now+within.
	GetCredentialsExpiringWithin(ctx context.Context, within time.Duration) ([]models.Credential, error)
	Upsert(ctx context.Context, c *models.Credential) error
}
