package token

import "fmt"

// Code classifies why an upstream call could not be made with a usable token.
type Code string

const (
	CodeNotConnected  Code = "NOT_CONNECTED"
	CodeTokenExpired  Code = "TOKEN_EXPIRED"
	CodeTokenRevoked  Code = "TOKEN_REVOKED"
	CodeRefreshFailed Code = "REFRESH_FAILED"
	CodeNetworkError  Code = "NETWORK_ERROR"
)

// Error is returned for every expected OAuth failure mode. Anything else
// returned by the manager is an unexpected failure (store unreachable, ...).
type Error struct {
	Code Code
	// NeedsReconnect is true when retrying cannot help and the tenant must
	// re-authorize.
	NeedsReconnect bool
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code Code, err error) *Error {
	return &Error{Code: code, NeedsReconnect: code != CodeNetworkError, Err: err}
}
