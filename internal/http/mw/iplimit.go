package mw

import (
	"net"
	"net/http"
	"strconv"

	"github.com/snapdock/snapdock-api/internal/cache"
	"github.com/snapdock/snapdock-api/internal/constants"
	"github.com/snapdock/snapdock-api/internal/http/respond"
)

// IPRateLimit throttles unauthenticated endpoints per client address:
// 20 requests per minute, 5 minute blockout on excess. Runs before
// Auth on the public surface.
func IPRateLimit(store *cache.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := ClientIP(r)
			result := store.Allow(r.Context(), cache.IPLimitKey(addr),
				constants.IPRateLimitPoints, constants.IPRateLimitWindow, constants.IPRateLimitBlockout)

			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				respond.Error(w, r, http.StatusTooManyRequests, "IP_RATE_LIMIT_EXCEEDED",
					"Too many requests from this address", map[string]any{
						"retryAfter": result.RetryAfter,
					})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the request's remote address without the port.
// chi's RealIP middleware has already folded X-Forwarded-For into
// RemoteAddr by the time this runs.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
