package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/partsflow/storefront/backend/internal/config"
)

// adminAuthMiddleware gates admin endpoints behind a Bearer token. With no
// token configured the endpoints are disabled outright rather than left
// open.
func adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := config.Load().AdminAPIToken
		if token == "" {
			http.Error(w, "admin token not configured", http.StatusServiceUnavailable)
			return
		}

		auth := r.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
