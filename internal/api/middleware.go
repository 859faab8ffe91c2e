package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthMiddleware guards a handler with a shared token, accepted either as a
// bearer header or a `token` query parameter (convenient for quick testing).
// An empty configured token disables the check.
func AuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			if tokenMatches(r.URL.Query().Get("token"), token) {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") && tokenMatches(strings.TrimPrefix(auth, "Bearer "), token) {
				next.ServeHTTP(w, r)
				return
			}

			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}

func tokenMatches(candidate, token string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1
}
