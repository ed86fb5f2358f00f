package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/ledgerbridge/internal/proxy"
	"github.com/nikhilbhutani/ledgerbridge/internal/tenant"
)

type ProxyHandler struct {
	engine *proxy.Engine
}

func NewProxyHandler(engine *proxy.Engine) *ProxyHandler {
	return &ProxyHandler{engine: engine}
}

func (h *ProxyHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, proxy.ErrCodeInvalidQuery, err.Error(), false)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, proxy.ErrCodeInvalidQuery, err.Error(), false)
		return
	}

	q := r.URL.Query()
	res, err := h.engine.Fetch(r.Context(), tenant.IDFromContext(r.Context()), proxy.Request{
		EntityType: q.Get("type"),
		Search:     q.Get("search"),
		Status:     q.Get("status"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeProxyError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    res.Data,
		"meta":    res.Meta,
	})
}

func (h *ProxyHandler) Get(w http.ResponseWriter, r *http.Request) {
	obj, err := h.engine.FetchByID(r.Context(), tenant.IDFromContext(r.Context()),
		r.URL.Query().Get("type"), chi.URLParam(r, "id"))
	if err != nil {
		writeProxyError(w, err)
		return
	}
	writeData(w, http.StatusOK, obj)
}
