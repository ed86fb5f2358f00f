package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/ledgerbridge/internal/audit"
	"github.com/nikhilbhutani/ledgerbridge/internal/credential"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
	"github.com/nikhilbhutani/ledgerbridge/internal/tenant"
)

type AdminHandler struct {
	auditSink   audit.Sink
	credentials credential.Store
	tenants     *tenant.Service
}

func NewAdminHandler(sink audit.Sink, creds credential.Store, ts *tenant.Service) *AdminHandler {
	return &AdminHandler{auditSink: sink, credentials: creds, tenants: ts}
}

func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	q := audit.Query{
		Action: r.URL.Query().Get("action"),
	}

	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	q.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	if slug := r.URL.Query().Get("organization"); slug != "" {
		t, err := h.tenants.GetBySlug(r.Context(), slug)
		if err != nil {
			writeError(w, http.StatusNotFound, "ERR_ORG_NOT_FOUND", "organization not found", false)
			return
		}
		q.TenantID = &t.ID
	} else if s := r.URL.Query().Get("tenant_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "ERR_INVALID_ID", "invalid tenant_id", false)
			return
		}
		q.TenantID = &id
	}

	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err == nil {
			q.StartDate = &t
		}
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err == nil {
			q.EndDate = &t
		}
	}

	logs, err := h.auditSink.Query(r.Context(), q)
	if err != nil {
		slog.Error("audit query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "ERR_INTERNAL", "failed to load audit logs", false)
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    logs,
		"meta":    map[string]int{"count": len(logs), "limit": q.Limit, "offset": q.Offset},
	})
}

type expiringCredential struct {
	TenantID              uuid.UUID               `json:"tenantId"`
	RealmID               string                  `json:"realmId"`
	Status                models.ConnectionStatus `json:"status"`
	RefreshTokenExpiresAt *time.Time              `json:"refreshTokenExpiresAt"`
	LastSyncAt            *time.Time              `json:"lastSyncAt,omitempty"`
}

// ExpiringCredentials lists connections whose refresh token lapses within
// ?hours= (default 72). Those tenants must reconnect before then.
func (h *AdminHandler) ExpiringCredentials(w http.ResponseWriter, r *http.Request) {
	hours, err := intParam(r, "hours", 72)
	if err != nil || hours == 0 {
		writeError(w, http.StatusBadRequest, "ERR_INVALID_QUERY", "hours must be a positive integer", false)
		return
	}
	within := time.Duration(hours) * time.Hour

	creds, err := h.credentials.GetCredentialsExpiringWithin(r.Context(), within)
	if err != nil {
		slog.Error("expiring credentials query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "ERR_INTERNAL", "failed to load credentials", false)
		return
	}

	cutoff := time.Now().Add(within)
	out := []expiringCredential{}
	for _, c := range creds {
		if c.RefreshTokenExpiresAt == nil || !c.RefreshTokenExpiresAt.Before(cutoff) {
			continue
		}
		out = append(out, expiringCredential{
			TenantID:              c.TenantID,
			RealmID:               c.RealmID,
			Status:                c.Status,
			RefreshTokenExpiresAt: c.RefreshTokenExpiresAt,
			LastSyncAt:            c.LastSyncAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    out,
		"meta":    map[string]int{"count": len(out), "hours": hours},
	})
}
