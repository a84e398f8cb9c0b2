package middleware

import (
	"crypto/subtle"
	"net/http"
)

// InternalTokenHeader carries the shared secret of service-to-service calls.
const InternalTokenHeader = "X-Internal-Token"

// InternalOnly admits requests carrying the shared token. These routes are
// called by the like and activity services, never by end users.
func InternalOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(InternalTokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeUnauthorized(w, "internal endpoint")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
