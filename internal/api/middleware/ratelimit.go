package middleware

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/nikhilbhutani/ledgerbridge/internal/auth"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

// Tier is a token bucket configuration.
type Tier struct {
	RPS   float64
	Burst int
}

type visitor struct {
	tokens   float64
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per API key, sized by the key's tier.
// Anonymous requests are bucketed by remote address on the standard tier.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	tiers    map[models.RateLimitTier]Tier
	now      func() time.Time
	done     chan struct{}
	once     sync.Once
}

func NewRateLimiter(tiers map[models.RateLimitTier]Tier) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		tiers:    tiers,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := "addr:" + r.RemoteAddr
		tierName := models.TierStandard
		if key := auth.KeyFromContext(r.Context()); key != nil {
			id = "key:" + key.ID.String()
			if key.Permissions.RateTier != "" {
				tierName = key.Permissions.RateTier
			}
		}
		if tierName == models.TierUnlimited {
			next.ServeHTTP(w, r)
			return
		}
		tier, ok := rl.tiers[tierName]
		if !ok {
			tier = rl.tiers[models.TierStandard]
		}

		if !rl.allow(id, tier) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success":   false,
				"error":     "rate limit exceeded",
				"errorCode": "ERR_RATE_LIMITED",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(id string, tier Tier) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	burst := float64(tier.Burst)
	v, exists := rl.visitors[id]
	if !exists {
		v = &visitor{tokens: burst, lastSeen: now}
		rl.visitors[id] = v
	}

	v.tokens += now.Sub(v.lastSeen).Seconds() * tier.RPS
	if v.tokens > burst {
		v.tokens = burst
	}
	v.lastSeen = now

	if v.tokens < 1 {
		return false
	}
	v.tokens--
	return true
}

// Close stops the idle-bucket cleanup loop.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
		}
		rl.mu.Lock()
		for id, v := range rl.visitors {
			if rl.now().Sub(v.lastSeen) > 3*time.Minute {
				delete(rl.visitors, id)
			}
		}
		rl.mu.Unlock()
	}
}
