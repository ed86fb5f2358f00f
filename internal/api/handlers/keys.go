package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/ledgerbridge/internal/auth"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
	"github.com/nikhilbhutani/ledgerbridge/internal/tenant"
)

const defaultGracePeriod = 24 * time.Hour

type KeyHandler struct {
	auth    *auth.Authenticator
	tenants *tenant.Service
}

func NewKeyHandler(a *auth.Authenticator, ts *tenant.Service) *KeyHandler {
	return &KeyHandler{auth: a, tenants: ts}
}

type createKeyRequest struct {
	Organization string             `json:"organization"`
	Name         string             `json:"name"`
	Type         models.APIKeyType  `json:"type"`
	Permissions  models.Permissions `json:"permissions"`
	ExpiresAt    *time.Time         `json:"expires_at"`
}

func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "ERR_INVALID_BODY", "invalid request body", false)
		return
	}

	params := auth.CreateKeyParams{
		Name:        req.Name,
		Type:        req.Type,
		Permissions: req.Permissions,
		ExpiresAt:   req.ExpiresAt,
	}
	if req.Type != models.APIKeyGlobalAdmin {
		t, err := h.tenants.GetBySlug(r.Context(), req.Organization)
		if err != nil {
			writeError(w, http.StatusNotFound, auth.CodeOrgNotFound, "organization not found", false)
			return
		}
		params.TenantID = &t.ID
	}

	issued, err := h.auth.Create(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusBadRequest, "ERR_INVALID_KEY_REQUEST", err.Error(), false)
		return
	}
	writeData(w, http.StatusCreated, issued)
}

func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenants.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, http.StatusNotFound, auth.CodeOrgNotFound, "organization not found", false)
		return
	}
	keys, err := h.auth.ListByTenant(r.Context(), t.ID)
	if err != nil {
		slog.Error("list api keys failed", "tenant_id", t.ID, "error", err)
		writeError(w, http.StatusInternalServerError, auth.CodeInternal, "failed to list keys", false)
		return
	}
	if keys == nil {
		keys = []models.APIKey{}
	}
	writeData(w, http.StatusOK, keys)
}

type rotateKeyRequest struct {
	GracePeriodHours *float64 `json:"grace_period_hours"`
}

func (h *KeyHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	id, ok := keyID(w, r)
	if !ok {
		return
	}
	var req rotateKeyRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "ERR_INVALID_BODY", "invalid request body", false)
			return
		}
	}
	grace := defaultGracePeriod
	if req.GracePeriodHours != nil {
		grace = time.Duration(*req.GracePeriodHours * float64(time.Hour))
	}

	issued, err := h.auth.Rotate(r.Context(), id, grace)
	if err != nil {
		h.keyError(w, err)
		return
	}
	writeData(w, http.StatusOK, issued)
}

func (h *KeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := keyID(w, r)
	if !ok {
		return
	}
	if err := h.auth.Revoke(r.Context(), id); err != nil {
		h.keyError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{"revoked": true})
}

func (h *KeyHandler) keyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrKeyNotFound):
		writeError(w, http.StatusNotFound, "ERR_KEY_NOT_FOUND", "api key not found", false)
	case errors.Is(err, auth.ErrKeyRevoked):
		writeError(w, http.StatusConflict, "ERR_KEY_REVOKED", "api key is revoked", false)
	case errors.Is(err, auth.ErrKeyRotated):
		writeError(w, http.StatusConflict, "ERR_KEY_ROTATED", "api key was already rotated", false)
	default:
		slog.Error("api key operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, auth.CodeInternal, "api key operation failed", false)
	}
}

func keyID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "ERR_INVALID_ID", "invalid key id", false)
		return uuid.Nil, false
	}
	return id, true
}
