package mw

import (
	"errors"
	"net/http"

	"github.com/snapdock/snapdock-api/internal/http/respond"
	"github.com/snapdock/snapdock-api/internal/service"
)

// QuotaPrecheck rejects create requests from tenants with an exhausted
// credit budget before the body is even parsed. The check uses the
// minimum cost of 1; the handler re-checks with the exact event cost
// after validation. The lazy monthly rollover happens inside the check.
func QuotaPrecheck(usage *service.UsageService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			if identity == nil {
				next.ServeHTTP(w, r)
				return
			}

			if _, err := usage.CheckQuota(r.Context(), identity.TenantID, 1); err != nil {
				if errors.Is(err, service.ErrQuotaExceeded) {
					respond.Error(w, r, http.StatusTooManyRequests, "QUOTA_EXCEEDED",
						"Monthly credit budget exhausted", nil)
					return
				}
				respond.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to check quota", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
