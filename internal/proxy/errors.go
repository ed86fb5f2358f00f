package proxy

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nikhilbhutani/ledgerbridge/internal/qbo"
	"github.com/nikhilbhutani/ledgerbridge/internal/token"
)

const (
	ErrCodeUnavailable       = "ERR_QBO_UNAVAILABLE"
	ErrCodeTokenExpired      = "ERR_QBO_TOKEN_EXPIRED"
	ErrCodeTokenRevoked      = "ERR_QBO_TOKEN_REVOKED"
	ErrCodeRefreshFailed     = "ERR_QBO_REFRESH_FAILED"
	ErrCodeNetwork           = "ERR_QBO_NETWORK"
	ErrCodeRequestFailed     = "ERR_QBO_REQUEST_FAILED"
	ErrCodeUpstream          = "ERR_QBO_UPSTREAM"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInvalidEntityType = "ERR_INVALID_ENTITY_TYPE"
	ErrCodeInvalidQuery      = "ERR_INVALID_QUERY"
	ErrCodeFailed            = "ERR_PROXY_FAILED"
)

// Error is the single vocabulary the HTTP boundary needs to understand.
type Error struct {
	Code           string
	Message        string
	Status         int
	NeedsReconnect bool
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalid(code, msg string) *Error {
	return &Error{Code: code, Message: msg, Status: http.StatusBadRequest}
}

var tokenCodes = map[token.Code]struct {
	code string
	msg  string
}{
	token.CodeNotConnected:  {ErrCodeUnavailable, "QuickBooks is not connected for this organization"},
	token.CodeTokenExpired:  {ErrCodeTokenExpired, "QuickBooks authorization expired, reconnect required"},
	token.CodeTokenRevoked:  {ErrCodeTokenRevoked, "QuickBooks authorization was revoked, reconnect required"},
	token.CodeRefreshFailed: {ErrCodeRefreshFailed, "QuickBooks token refresh failed, reconnect required"},
	token.CodeNetworkError:  {ErrCodeNetwork, "QuickBooks is temporarily unreachable, try again"},
}

// mapError translates token manager and upstream failures. byID enables
// the not-found mapping.
func mapError(err error, byID bool) *Error {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr
	}

	var tokErr *token.Error
	if errors.As(err, &tokErr) {
		m, ok := tokenCodes[tokErr.Code]
		if !ok {
			m.code, m.msg = ErrCodeFailed, "QuickBooks request failed"
		}
		return &Error{
			Code:           m.code,
			Message:        m.msg,
			Status:         http.StatusServiceUnavailable,
			NeedsReconnect: tokErr.NeedsReconnect,
			Err:            err,
		}
	}

	var apiErr *qbo.APIError
	if errors.As(err, &apiErr) {
		switch {
		case byID && apiErr.NotFound():
			return &Error{Code: ErrCodeNotFound, Message: "entity not found", Status: http.StatusNotFound, Err: err}
		case apiErr.StatusCode >= 500:
			return &Error{Code: ErrCodeUpstream, Message: "QuickBooks returned an error", Status: http.StatusBadGateway, Err: err}
		default:
			return &Error{Code: ErrCodeRequestFailed, Message: apiErr.Message, Status: http.StatusBadRequest, Err: err}
		}
	}

	return &Error{Code: ErrCodeFailed, Message: "proxy request failed", Status: http.StatusInternalServerError, Err: err}
}
