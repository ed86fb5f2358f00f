package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/nikhilbhutani/ledgerbridge/internal/auth"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

func TestRateLimiterTiers(t *testing.T) {
	rl := NewRateLimiter(map[models.RateLimitTier]Tier{
		models.TierStandard: {RPS: 1, Burst: 2},
		models.TierElevated: {RPS: 1, Burst: 4},
	})
	defer rl.Close()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	send := func(key *models.APIKey) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if key != nil {
			req = req.WithContext(auth.WithAPIKey(req.Context(), key))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	key := func(tier models.RateLimitTier) *models.APIKey {
		return &models.APIKey{ID: uuid.New(), Permissions: models.Permissions{RateTier: tier}}
	}

	standard := key(models.TierStandard)
	assert.Equal(t, http.StatusOK, send(standard))
	assert.Equal(t, http.StatusOK, send(standard))
	assert.Equal(t, http.StatusTooManyRequests, send(standard))

	elevated := key(models.TierElevated)
	for i := 0; i < 4; i++ {
		assert.Equal(t, http.StatusOK, send(elevated))
	}
	assert.Equal(t, http.StatusTooManyRequests, send(elevated))

	unlimited := key(models.TierUnlimited)
	for i := 0; i < 50; i++ {
		assert.Equal(t, http.StatusOK, send(unlimited))
	}

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, send(standard), "bucket refills over time")
}
