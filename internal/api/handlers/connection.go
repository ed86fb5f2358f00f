package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/nikhilbhutani/ledgerbridge/internal/proxy"
	"github.com/nikhilbhutani/ledgerbridge/internal/tenant"
	"github.com/nikhilbhutani/ledgerbridge/internal/token"
)

type ConnectionHandler struct {
	tokens *token.Manager
}

func NewConnectionHandler(tokens *token.Manager) *ConnectionHandler {
	return &ConnectionHandler{tokens: tokens}
}

func (h *ConnectionHandler) Status(w http.ResponseWriter, r *http.Request) {
	info, err := h.tokens.Connection(r.Context(), tenant.IDFromContext(r.Context()))
	if err != nil {
		slog.Error("connection status failed", "error", err)
		writeError(w, http.StatusInternalServerError, proxy.ErrCodeFailed, "failed to load connection status", false)
		return
	}
	writeData(w, http.StatusOK, info)
}

func (h *ConnectionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	err := h.tokens.Disconnect(r.Context(), tenant.IDFromContext(r.Context()))
	var tokErr *token.Error
	switch {
	case errors.As(err, &tokErr):
		writeError(w, http.StatusNotFound, proxy.ErrCodeUnavailable, "QuickBooks is not connected for this organization", true)
		return
	case err != nil:
		slog.Error("disconnect failed", "error", err)
		writeError(w, http.StatusInternalServerError, proxy.ErrCodeFailed, "failed to disconnect", false)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{"disconnected": true})
}
