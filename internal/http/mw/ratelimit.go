package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/snapdock/snapdock-api/internal/cache"
	"github.com/snapdock/snapdock-api/internal/constants"
	"github.com/snapdock/snapdock-api/internal/http/respond"
)

// TierRateLimit consumes one point against the tenant's tier bucket on
// every request. The limit headers are set on success and failure so
// clients can pace themselves. Runs after Auth.
func TierRateLimit(store *cache.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			if identity == nil {
				// Auth rejects unauthenticated requests before this runs.
				next.ServeHTTP(w, r)
				return
			}

			limits := constants.LimitsForTier(string(identity.Tier))
			result := store.Allow(r.Context(),
				cache.TierLimitKey(identity.Tier, identity.TenantID),
				limits.RateLimitPoints, limits.RateLimitWindow, constants.TierRateLimitBlockout)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", result.ResetAt.UTC().Format(time.RFC3339))
			w.Header().Set("X-RateLimit-Tier", string(identity.Tier))

			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				respond.Error(w, r, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED",
					"Rate limit exceeded for your tier", map[string]any{
						"retryAfter": result.RetryAfter,
						"tier":       identity.Tier,
					})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
