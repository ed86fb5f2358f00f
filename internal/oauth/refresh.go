package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// TokenSet is the result of a successful refresh-token exchange.
type TokenSet struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt *time.Time
}

// Refresher exchanges a refresh token for a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
}

type Client struct {
	cfg        *oauth2.Config
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(clientID, clientSecret, tokenURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: httpClient,
		now:        time.Now,
	}
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token is empty")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token exchange: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, errors.New("refresh token exchange: empty access token in response")
	}

	set := &TokenSet{
		AccessToken:          tok.AccessToken,
		RefreshToken:         tok.RefreshToken,
		AccessTokenExpiresAt: tok.Expiry,
	}
	if set.RefreshToken == "" {
		set.RefreshToken = refreshToken
	}
	if set.AccessTokenExpiresAt.IsZero() {
		set.AccessTokenExpiresAt = c.now().Add(time.Hour)
	}
	if secs, ok := extraSeconds(tok.Extra("x_refresh_token_expires_in")); ok {
		t := c.now().Add(time.Duration(secs) * time.Second)
		set.RefreshTokenExpiresAt = &t
	}
	return set, nil
}

func extraSeconds(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), n > 0
	case int64:
		return n, n > 0
	case json.Number:
		i, err := n.Int64()
		return i, err == nil && i > 0
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil && i > 0
	}
	return 0, false
}

// FailureKind classifies a failed refresh exchange.
type FailureKind int

const (
	// FailureOther is any failure that is neither revocation nor transport.
	FailureOther FailureKind = iota
	// FailureRevoked means the grant is dead and the tenant must reconnect.
	FailureRevoked
	// FailureNetwork is a transient transport failure on our side.
	FailureNetwork
)

func (k FailureKind) String() string {
	switch k {
	case FailureRevoked:
		return "revoked"
	case FailureNetwork:
		return "network"
	default:
		return "other"
	}
}

var networkMarkers = []string{
	"timeout",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
	"broken pipe",
	"eof",
	"tls handshake",
}

// ClassifyRefreshError inspects a refresh failure. Revocation markers win
// over transport markers since an error body can mention both.
func ClassifyRefreshError(err error) FailureKind {
	if err == nil {
		return FailureOther
	}
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.ErrorCode == "invalid_grant" {
		return FailureRevoked
	}

	text := strings.ToLower(err.Error())
	if strings.Contains(text, "invalid_grant") || strings.Contains(text, "revoked") {
		return FailureRevoked
	}

	if rErr != nil {
		// The server answered; a non-OAuth error body is not a transport issue.
		return FailureOther
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureNetwork
	}
	for _, m := range networkMarkers {
		if strings.Contains(text, m) {
			return FailureNetwork
		}
	}
	return FailureOther
}
