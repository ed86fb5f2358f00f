// Package qbo issues requests against the QuickBooks Online accounting API.
// It only builds and sends requests; credentials are supplied per call by
// the token manager.
package qbo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nikhilbhutani/ledgerbridge/internal/metrics"
)

type Client struct {
	baseURL      string
	minorVersion string
	httpClient   *http.Client
	metrics      *metrics.Metrics
}

func NewClient(baseURL, minorVersion string, timeout time.Duration, m *metrics.Metrics) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		minorVersion: minorVersion,
		httpClient:   &http.Client{Timeout: timeout},
		metrics:      m,
	}
}

// Query returns a call that runs a query-language statement for the realm.
func (c *Client) Query(entity, statement string) func(ctx context.Context, accessToken, realmID string) (*http.Response, error) {
	return func(ctx context.Context, accessToken, realmID string) (*http.Response, error) {
		params := url.Values{}
		params.Set("query", statement)
		if c.minorVersion != "" {
			params.Set("minorversion", c.minorVersion)
		}
		endpoint := fmt.Sprintf("%s/v3/company/%s/query?%s", c.baseURL, url.PathEscape(realmID), params.Encode())
		return c.get(ctx, entity, endpoint, accessToken)
	}
}

// Read returns a call that fetches one entity by id.
func (c *Client) Read(entity, id string) func(ctx context.Context, accessToken, realmID string) (*http.Response, error) {
	return func(ctx context.Context, accessToken, realmID string) (*http.Response, error) {
		endpoint := fmt.Sprintf("%s/v3/company/%s/%s/%s",
			c.baseURL, url.PathEscape(realmID), strings.ToLower(entity), url.PathEscape(id))
		if c.minorVersion != "" {
			endpoint += "?minorversion=" + url.QueryEscape(c.minorVersion)
		}
		return c.get(ctx, entity, endpoint, accessToken)
	}
}

func (c *Client) get(ctx context.Context, entity, endpoint, accessToken string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream(entity, 0)
		return nil, fmt.Errorf("qbo request: %w", err)
	}
	c.metrics.ObserveUpstream(entity, resp.StatusCode)
	return resp, nil
}

// DecodeQuery reads a query response and returns the rows for entity.
// A response without the entity key means zero rows.
func DecodeQuery(resp *http.Response, entity string) ([]map[string]interface{}, error) {
	if resp.StatusCode >= 300 {
		return nil, ParseError(resp)
	}
	var body struct {
		QueryResponse map[string]json.RawMessage `json:"QueryResponse"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	raw, ok := body.QueryResponse[entity]
	if !ok {
		return []map[string]interface{}{}, nil
	}
	var rows []map[string]interface{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode %s rows: %w", entity, err)
	}
	return rows, nil
}

// DecodeEntity reads a by-id response and returns the entity object.
func DecodeEntity(resp *http.Response, entity string) (map[string]interface{}, error) {
	if resp.StatusCode >= 300 {
		return nil, ParseError(resp)
	}
	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode entity response: %w", err)
	}
	raw, ok := body[entity]
	if !ok {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: entity + " missing from response"}
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode %s: %w", entity, err)
	}
	return obj, nil
}

func drainLimit(r io.Reader) []byte {
	b, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	return b
}
