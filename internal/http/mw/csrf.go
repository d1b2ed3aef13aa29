package mw

import (
	"crypto/subtle"
	"net/http"

	"github.com/snapdock/snapdock-api/internal/http/respond"
)

// CSRFHeader is the request header mirroring the CSRF cookie.
const CSRFHeader = "X-CSRF-Token"

// CSRF enforces the double-submit check for cookie-authenticated
// mutations. API-key and gateway requests carry no ambient credential,
// so they skip it, as do safe methods. Comparison is constant time.
func CSRF() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			identity := GetIdentity(r.Context())
			if identity == nil || identity.Source != SourceSession {
				next.ServeHTTP(w, r)
				return
			}

			token := r.Header.Get(CSRFHeader)
			if token == "" {
				respond.Error(w, r, http.StatusForbidden, "CSRF_MISSING", "CSRF token is required", nil)
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(identity.CSRFToken)) != 1 {
				respond.Error(w, r, http.StatusForbidden, "CSRF_INVALID", "CSRF token does not match", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
