package auth

import (
	"net/http"
	"path"
	"strings"

	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

const PermWildcard = "*"

// Allows reports whether the permission set admits requestPath. Patterns
// use path.Match syntax; a trailing "/**" also matches everything below.
func Allows(p models.Permissions, requestPath string) bool {
	for _, pattern := range p.Endpoints {
		if pattern == PermWildcard {
			return true
		}
		if base, ok := strings.CutSuffix(pattern, "/**"); ok {
			if matchPrefix(base, requestPath) {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, requestPath); ok {
			return true
		}
	}
	return false
}

// matchPrefix matches base segment by segment against the leading
// segments of requestPath.
func matchPrefix(base, requestPath string) bool {
	baseSegs := strings.Split(base, "/")
	pathSegs := strings.Split(requestPath, "/")
	if len(pathSegs) < len(baseSegs) {
		return false
	}
	for i, seg := range baseSegs {
		if ok, _ := path.Match(seg, pathSegs[i]); !ok {
			return false
		}
	}
	return true
}

// RequirePermission rejects keys whose allow-list does not cover the path.
func RequirePermission(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := KeyFromContext(r.Context())
		if key == nil {
			writeError(w, http.StatusUnauthorized, CodeMissingKey, "missing API key")
			return
		}
		if !key.IsGlobalAdmin() && !Allows(key.Permissions, r.URL.Path) {
			writeError(w, http.StatusForbidden, CodeKeyForbidden, "API key is not permitted for this endpoint")
			return
		}
		next.ServeHTTP(w, r)
	})
}
