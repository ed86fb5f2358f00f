// Package proxy serves read queries for a tenant's upstream accounting
// entities through the token manager.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/ledgerbridge/internal/qbo"
	"github.com/nikhilbhutani/ledgerbridge/internal/token"
)

type Request struct {
	EntityType string
	Search     string
	Status     string
	Limit      int
	Offset     int
}

type Meta struct {
	Type    string `json:"type"`
	Count   int    `json:"count"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
	HasMore bool   `json:"hasMore"`
}

type Result struct {
	Data []map[string]interface{}
	Meta Meta
}

type Engine struct {
	tokens *token.Manager
	client *qbo.Client
}

func NewEngine(tokens *token.Manager, client *qbo.Client) *Engine {
	return &Engine{tokens: tokens, client: client}
}

// Fetch lists entities. All failures are returned as *Error.
func (e *Engine) Fetch(ctx context.Context, tenantID uuid.UUID, req Request) (*Result, error) {
	ent, err := normalize(&req)
	if err != nil {
		return nil, err
	}

	statement := BuildQuery(ent, req.Search, req.Status, req.Limit, req.Offset)
	rows, err := token.ExecuteWithRefresh(ctx, e.tokens, tenantID,
		e.client.Query(ent.Name, statement),
		func(resp *http.Response) ([]map[string]interface{}, error) {
			return qbo.DecodeQuery(resp, ent.Name)
		})
	if err != nil {
		return nil, e.fail(tenantID, ent, err, false)
	}

	data := sanitizeAll(rows)
	return &Result{
		Data: data,
		Meta: Meta{
			Type:    ent.Type,
			Count:   len(data),
			Limit:   req.Limit,
			Offset:  req.Offset,
			HasMore: len(data) == req.Limit,
		},
	}, nil
}

// FetchByID loads one entity. A missing entity is *Error with NOT_FOUND.
func (e *Engine) FetchByID(ctx context.Context, tenantID uuid.UUID, entityType, id string) (map[string]interface{}, error) {
	ent, ok := LookupEntity(entityType)
	if !ok {
		return nil, unknownEntity(entityType)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, invalid(ErrCodeInvalidQuery, "id is required")
	}

	obj, err := token.ExecuteWithRefresh(ctx, e.tokens, tenantID,
		e.client.Read(ent.Name, id),
		func(resp *http.Response) (map[string]interface{}, error) {
			return qbo.DecodeEntity(resp, ent.Name)
		})
	if err != nil {
		return nil, e.fail(tenantID, ent, err, true)
	}
	return Sanitize(obj), nil
}

func (e *Engine) fail(tenantID uuid.UUID, ent Entity, err error, byID bool) *Error {
	pErr := mapError(err, byID)
	if pErr.Status >= 500 && pErr.Status != http.StatusServiceUnavailable {
		slog.Error("proxy request failed", "tenant_id", tenantID, "entity", ent.Name, "code", pErr.Code, "error", err)
	} else {
		slog.Warn("proxy request rejected", "tenant_id", tenantID, "entity", ent.Name, "code", pErr.Code, "error", err)
	}
	return pErr
}

func normalize(req *Request) (Entity, error) {
	ent, ok := LookupEntity(req.EntityType)
	if !ok {
		return Entity{}, unknownEntity(req.EntityType)
	}
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if req.Status == "" {
		req.Status = StatusActive
	}
	if !validStatus(req.Status) {
		return Entity{}, invalid(ErrCodeInvalidQuery, fmt.Sprintf("status must be one of %s, %s, %s", StatusActive, StatusInactive, StatusAll))
	}
	if req.Limit < 0 || req.Offset < 0 {
		return Entity{}, invalid(ErrCodeInvalidQuery, "limit and offset must not be negative")
	}
	if req.Limit == 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	req.Search = strings.TrimSpace(req.Search)
	return ent, nil
}

func unknownEntity(entityType string) *Error {
	return invalid(ErrCodeInvalidEntityType,
		fmt.Sprintf("unknown entity type %q, supported: %s", entityType, strings.Join(EntityTypes(), ", ")))
}
