package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

var (
	// ErrInvalidKey is the only rejection Validate reports, whatever check failed.
	ErrInvalidKey  = errors.New("invalid API key")
	ErrKeyNotFound = errors.New("api key not found")
	ErrKeyRevoked  = errors.New("api key is revoked")
	// ErrKeyRotated rejects rotating a key that already has a successor.
	ErrKeyRotated = errors.New("api key was already rotated")
)

const secretBytes = 32

// KeyStore persists API keys by hash. Secrets are never stored.
type KeyStore interface {
	Create(ctx context.Context, key *models.APIKey) error
	GetByHash(ctx context.Context, hash string) (*models.APIKey, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.APIKey, error)
	// Rotate stores next and starts the grace window of the old key in one step.
	Rotate(ctx context.Context, oldID uuid.UUID, graceEndsAt time.Time, next *models.APIKey) error
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// GenerateKey returns a new secret of the form <prefix>_<hex> together with
// the short display prefix stored alongside the hash.
func GenerateKey(prefix string) (secret, display string, err error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	secret = prefix + "_" + hex.EncodeToString(buf)
	display = secret[:len(prefix)+1+8]
	return secret, display, nil
}
