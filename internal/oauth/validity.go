package oauth

import (
	"time"

	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

// Validity is the usability of a stored access token at a point in time.
type Validity string

const (
	Valid        Validity = "valid"
	ExpiringSoon Validity = "expiring_soon"
	Expired      Validity = "expired"
)

// DefaultBuffer keeps a call that starts just before expiry from being
// rejected mid-flight.
const DefaultBuffer = 5 * time.Minute

// CheckValidity classifies the credential's access token. A credential
// without an access-token expiry is treated as expired.
func CheckValidity(c *models.Credential, now time.Time, buffer time.Duration) Validity {
	if c == nil || c.AccessToken == "" || c.AccessTokenExpiresAt == nil {
		return Expired
	}
	exp := *c.AccessTokenExpiresAt
	if !now.Before(exp) {
		return Expired
	}
	if !now.Add(buffer).Before(exp) {
		return ExpiringSoon
	}
	return Valid
}

// RefreshTokenExpired reports whether the refresh token can no longer be
// exchanged. An unknown refresh expiry is assumed usable.
func RefreshTokenExpired(c *models.Credential, now time.Time) bool {
	if c == nil || c.RefreshToken == "" {
		return true
	}
	return c.RefreshTokenExpiresAt != nil && !now.Before(*c.RefreshTokenExpiresAt)
}
