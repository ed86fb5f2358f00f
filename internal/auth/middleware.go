package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nikhilbhutani/ledgerbridge/internal/audit"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

const (
	CodeMissingKey     = "ERR_MISSING_KEY"
	CodeInvalidKey     = "ERR_INVALID_KEY"
	CodeKeyOrgMismatch = "ERR_KEY_ORG_MISMATCH"
	CodeKeyForbidden   = "ERR_KEY_FORBIDDEN"
	CodeOrgNotFound    = "ERR_ORG_NOT_FOUND"
	CodeAdminRequired  = "ERR_ADMIN_REQUIRED"
	CodeInternal       = "ERR_INTERNAL"
)

type ctxKey string

const (
	claimsKey ctxKey = "claims"
	apiKeyKey ctxKey = "api_key"
)

func WithAPIKey(ctx context.Context, k *models.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyKey, k)
}

func KeyFromContext(ctx context.Context) *models.APIKey {
	k, _ := ctx.Value(apiKeyKey).(*models.APIKey)
	return k
}

func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

// APIKeyMiddleware authenticates tenant requests by API key.
type APIKeyMiddleware struct {
	auth       *Authenticator
	headerName string
	allowQuery bool
	audit      audit.Recorder
}

func NewAPIKeyMiddleware(a *Authenticator, headerName string, allowQuery bool, rec audit.Recorder) *APIKeyMiddleware {
	if rec == nil {
		rec = audit.Discard{}
	}
	return &APIKeyMiddleware{auth: a, headerName: headerName, allowQuery: allowQuery, audit: rec}
}

// Authenticate rejects requests without a valid key with 401.
func (m *APIKeyMiddleware) Authenticate(next http.Handler) http.Handler {
	return m.handle(next, true)
}

// Optional authenticates a key when one is presented and passes anonymous
// requests through. A presented but invalid key is still a 401.
func (m *APIKeyMiddleware) Optional(next http.Handler) http.Handler {
	return m.handle(next, false)
}

func (m *APIKeyMiddleware) handle(next http.Handler, required bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret, fromQuery := m.extract(r)
		if secret == "" {
			if !required {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusUnauthorized, CodeMissingKey, "missing API key")
			return
		}

		key, err := m.auth.Validate(r.Context(), secret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, CodeInvalidKey, ErrInvalidKey.Error())
			return
		}

		if fromQuery {
			slog.Warn("api key supplied in query string", "key_id", key.ID, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			m.audit.Record(r.Context(), models.AuditLog{
				TenantID:     key.TenantID,
				APIKeyID:     &key.ID,
				Action:       models.AuditKeyQueryParam,
				ResourceType: "api_key",
				ResourceID:   key.ID.String(),
				IPAddress:    r.RemoteAddr,
			})
		}

		next.ServeHTTP(w, r.WithContext(WithAPIKey(r.Context(), key)))
	})
}

func (m *APIKeyMiddleware) extract(r *http.Request) (string, bool) {
	if key := strings.TrimSpace(r.Header.Get(m.headerName)); key != "" {
		return key, false
	}
	if m.allowQuery {
		if key := strings.TrimSpace(r.URL.Query().Get("api_key")); key != "" {
			return key, true
		}
	}
	return "", false
}

type Claims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

const RoleAdmin = "admin"

// AdminAuth guards operator routes. It admits a global admin API key that
// an earlier middleware put on the context, or an HS256 JWT with the admin role.
type AdminAuth struct {
	secret []byte
}

func NewAdminAuth(secret string) *AdminAuth {
	return &AdminAuth{secret: []byte(secret)}
}

func (a *AdminAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := KeyFromContext(r.Context()); key != nil {
			if key.IsGlobalAdmin() {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusForbidden, CodeAdminRequired, "admin access required")
			return
		}

		tokenStr := extractBearerToken(r)
		if tokenStr == "" || len(a.secret) == 0 {
			writeError(w, http.StatusUnauthorized, CodeMissingKey, "missing authorization token")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.secret, nil
		})
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, CodeInvalidKey, "invalid token")
			return
		}
		if claims.Role != RoleAdmin {
			writeError(w, http.StatusForbidden, CodeAdminRequired, "admin access required")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// Issue signs an admin token for subject.
func (a *AdminAuth) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Sub:  subject,
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	return signed, nil
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":        false,
		"error":          msg,
		"errorCode":      code,
		"needsReconnect": false,
	})
}
