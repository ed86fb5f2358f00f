package queue

const (
	TypeCredentialsSweep  = "credentials:sweep"
	TypeCredentialRefresh = "credential:refresh"
)

type CredentialsSweepPayload struct {
	// WithinHours overrides the configured look-ahead window when positive.
	WithinHours int `json:"within_hours,omitempty"`
}

type CredentialRefreshPayload struct {
	TenantID string `json:"tenant_id"`
}
