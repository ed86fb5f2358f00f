package oauth

import (
	"testing"
	"time"

	"github.com/nikhilbhutani/ledgerbridge/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCheckValidity(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	tests := []struct {
		name string
		cred *models.Credential
		want Validity
	}{
		{"nil credential", nil, Expired},
		{"no expiry fails closed", &models.Credential{AccessToken: "at"}, Expired},
		{"empty token", &models.Credential{AccessTokenExpiresAt: at(time.Hour)}, Expired},
		{"past expiry", &models.Credential{AccessToken: "at", AccessTokenExpiresAt: at(-10 * time.Minute)}, Expired},
		{"exactly now", &models.Credential{AccessToken: "at", AccessTokenExpiresAt: at(0)}, Expired},
		{"inside buffer", &models.Credential{AccessToken: "at", AccessTokenExpiresAt: at(4 * time.Minute)}, ExpiringSoon},
		{"at buffer edge", &models.Credential{AccessToken: "at", AccessTokenExpiresAt: at(5 * time.Minute)}, ExpiringSoon},
		{"beyond buffer", &models.Credential{AccessToken: "at", AccessTokenExpiresAt: at(6 * time.Minute)}, Valid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckValidity(tt.cred, now, DefaultBuffer))
		})
	}
}

func TestRefreshTokenExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	assert.True(t, RefreshTokenExpired(&models.Credential{}, now))
	assert.False(t, RefreshTokenExpired(&models.Credential{RefreshToken: "rt"}, now))
	assert.True(t, RefreshTokenExpired(&models.Credential{RefreshToken: "rt", RefreshTokenExpiresAt: &past}, now))
	assert.False(t, RefreshTokenExpired(&models.Credential{RefreshToken: "rt", RefreshTokenExpiresAt: &future}, now))
}
