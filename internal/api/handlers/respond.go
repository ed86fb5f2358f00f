package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/nikhilbhutani/ledgerbridge/internal/proxy"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, code, msg string, needsReconnect bool) {
	writeJSON(w, status, map[string]interface{}{
		"success":        false,
		"error":          msg,
		"errorCode":      code,
		"needsReconnect": needsReconnect,
	})
}

func writeProxyError(w http.ResponseWriter, err error) {
	var pErr *proxy.Error
	if errors.As(err, &pErr) {
		writeError(w, pErr.Status, pErr.Code, pErr.Message, pErr.NeedsReconnect)
		return
	}
	slog.Error("unhandled proxy error", "error", err)
	writeError(w, http.StatusInternalServerError, proxy.ErrCodeFailed, "proxy request failed", false)
}

// intParam parses an optional non-negative integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}
