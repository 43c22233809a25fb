package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// userHeader carries the authenticated caller's email. The fronting identity
// proxy sets it after the IdP login; the server itself does not run a login
// flow.
const userHeader = "X-Genie-User"

func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// callerEmail returns the authenticated caller's email, normalized to lower
// case, or "" when the identity header is absent.
func callerEmail(r *http.Request) string {
	return strings.ToLower(strings.TrimSpace(r.Header.Get(userHeader)))
}
