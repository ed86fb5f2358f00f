package models

import (
	"time"

	"github.com/google/uuid"
)

type APIKeyType string

const (
	APIKeyTenant      APIKeyType = "tenant"
	APIKeyGlobalAdmin APIKeyType = "global_admin"
)

type RateLimitTier string

const (
	TierStandard  RateLimitTier = "standard"
	TierElevated  RateLimitTier = "elevated"
	TierUnlimited RateLimitTier = "unlimited"
)

type Permissions struct {
	// Endpoints holds path.Match patterns; "*" allows every path.
	Endpoints []string      `json:"endpoints"`
	RateTier  RateLimitTier `json:"rate_limit_tier"`
}

type APIKey struct {
	ID                uuid.UUID   `json:"id" db:"id"`
	TenantID          *uuid.UUID  `json:"tenant_id,omitempty" db:"tenant_id"`
	KeyHash           string      `json:"-" db:"key_hash"`
	KeyPrefix         string      `json:"key_prefix" db:"key_prefix"`
	Name              string      `json:"name" db:"name"`
	Type              APIKeyType  `json:"type" db:"type"`
	Permissions       Permissions `json:"permissions" db:"permissions"`
	IsActive          bool        `json:"is_active" db:"is_active"`
	LastUsedAt        *time.Time  `json:"last_used_at,omitempty" db:"last_used_at"`
	ExpiresAt         *time.Time  `json:"expires_at,omitempty" db:"expires_at"`
	RevokedAt         *time.Time  `json:"revoked_at,omitempty" db:"revoked_at"`
	GracePeriodEndsAt *time.Time  `json:"grace_period_ends_at,omitempty" db:"grace_period_ends_at"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
}

func (k *APIKey) IsGlobalAdmin() bool {
	return k.Type == APIKeyGlobalAdmin
}
