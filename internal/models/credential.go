package models

import (
	"time"

	"github.com/google/uuid"
)

type ConnectionStatus string

const (
	ConnectionActive        ConnectionStatus = "active"
	ConnectionExpired       ConnectionStatus = "expired"
	ConnectionError         ConnectionStatus = "error"
	ConnectionRevoked       ConnectionStatus = "revoked"
	ConnectionDisconnected  ConnectionStatus = "disconnected"
	ConnectionRefreshFailed ConnectionStatus = "refresh_failed"
)

// Credential is the stored OAuth grant for one tenant's upstream company.
// Rows are never deleted; disconnection is a status and flag change.
type Credential struct {
	TenantID              uuid.UUID        `json:"tenant_id" db:"tenant_id"`
	RealmID               string           `json:"realm_id" db:"realm_id"`
	AccessToken           string           `json:"-" db:"access_token"`
	RefreshToken          string           `json:"-" db:"refresh_token"`
	AccessTokenExpiresAt  *time.Time       `json:"access_token_expires_at,omitempty" db:"access_token_expires_at"`
	RefreshTokenExpiresAt *time.Time       `json:"refresh_token_expires_at,omitempty" db:"refresh_token_expires_at"`
	Status                ConnectionStatus `json:"status" db:"status"`
	IsActive              bool             `json:"is_active" db:"is_active"`
	LastSyncAt            *time.Time       `json:"last_sync_at,omitempty" db:"last_sync_at"`
	CreatedAt             time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at" db:"updated_at"`
}

// Usable reports whether the credential may be handed to an upstream call
// at all, independent of token expiry.
func (c *Credential) Usable() bool {
	if c == nil || !c.IsActive {
		return false
	}
	return c.Status != ConnectionRevoked && c.Status != ConnectionDisconnected
}

// CredentialUpdate is a partial write; nil fields are left unchanged.
type CredentialUpdate struct {
	AccessToken           *string
	RefreshToken          *string
	AccessTokenExpiresAt  *time.Time
	RefreshTokenExpiresAt *time.Time
	Status                *ConnectionStatus
	IsActive              *bool
	LastSyncAt            *time.Time
}

// Apply copies the set fields of u onto c.
func (u CredentialUpdate) Apply(c *Credential) {
	if u.AccessToken != nil {
		c.AccessToken = *u.AccessToken
	}
	if u.RefreshToken != nil {
		c.RefreshToken = *u.RefreshToken
	}
	if u.AccessTokenExpiresAt != nil {
		t := *u.AccessTokenExpiresAt
		c.AccessTokenExpiresAt = &t
	}
	if u.RefreshTokenExpiresAt != nil {
		t := *u.RefreshTokenExpiresAt
		c.RefreshTokenExpiresAt = &t
	}
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.IsActive != nil {
		c.IsActive = *u.IsActive
	}
	if u.LastSyncAt != nil {
		t := *u.LastSyncAt
		c.LastSyncAt = &t
	}
}
