package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	AuditKeyOrgMismatch   = "api_key.org_mismatch"
	AuditKeyQueryParam    = "api_key.query_param_used"
	AuditKeyCreated       = "api_key.created"
	AuditKeyRotated       = "api_key.rotated"
	AuditKeyRevoked       = "api_key.revoked"
	AuditTokenRefreshed   = "credential.refreshed"
	AuditTokenRevoked     = "credential.revoked"
	AuditRefreshFailed    = "credential.refresh_failed"
	AuditTokenExpired     = "credential.expired"
	AuditCredDisconnected = "credential.disconnected"
)

type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	TenantID     *uuid.UUID      `json:"tenant_id,omitempty" db:"tenant_id"`
	APIKeyID     *uuid.UUID      `json:"api_key_id,omitempty" db:"api_key_id"`
	Action       string          `json:"action" db:"action"`
	ResourceType string          `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID   string          `json:"resource_id,omitempty" db:"resource_id"`
	Details      json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress    string          `json:"ip_address,omitempty" db:"ip_address"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
