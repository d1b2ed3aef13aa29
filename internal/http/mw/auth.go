// Package mw contains HTTP middleware for the snapdock-api.
package mw

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	appconfig "github.com/snapdock/snapdock-api/internal/config"
	"github.com/snapdock/snapdock-api/internal/http/respond"
	"github.com/snapdock/snapdock-api/internal/models"
	"github.com/snapdock/snapdock-api/internal/service"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

// IdentityKey is the context key for the resolved request identity.
const IdentityKey ContextKey = "identity"

// Identity sources, in resolution order.
const (
	SourceGateway = "gateway"
	SourceAPIKey  = "api_key"
	SourceSession = "session"
)

// Identity is the authenticated principal attached to the request.
// UserID, SessionID, and CSRFToken are only set for session auth.
type Identity struct {
	TenantID  string
	Tier      models.Tier
	Source    string
	UserID    string
	SessionID string
	CSRFToken string
}

// GetIdentity extracts the identity from the request context.
// Returns nil if not authenticated.
func GetIdentity(ctx context.Context) *Identity {
	identity, _ := ctx.Value(IdentityKey).(*Identity)
	return identity
}

// Auth resolves the request credential. Resolution order: the trusted
// gateway header triple (when gateway mode is on), then a bearer
// sk_ credential, then the session cookie. Unauthenticated requests
// never fall back to a default tenant.
func Auth(cfg *appconfig.Config, svcs *service.Services) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if cfg.GatewayEnabled && r.Header.Get("X-RapidAPI-Proxy-Secret") != "" {
				secret := r.Header.Get("X-RapidAPI-Proxy-Secret")
				if subtle.ConstantTimeCompare([]byte(secret), []byte(cfg.GatewayProxySecret)) != 1 {
					respond.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Invalid gateway credentials", nil)
					return
				}
				user := strings.TrimSpace(r.Header.Get("X-RapidAPI-User"))
				if user == "" {
					respond.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Missing gateway user", nil)
					return
				}
				tenant, err := svcs.Auth.ResolveGatewayTenant(ctx, user, parseGatewayTier(r.Header.Get("X-RapidAPI-Subscription")))
				if err != nil {
					respond.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve gateway tenant", nil)
					return
				}
				serveWithIdentity(next, w, r, &Identity{
					TenantID: tenant.ID,
					Tier:     tenant.Tier,
					Source:   SourceGateway,
				})
				return
			}

			if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
				raw := header
				if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
					raw = strings.TrimSpace(header[7:])
				}
				if !strings.HasPrefix(raw, "sk_") {
					respond.Error(w, r, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Authorization must carry an sk_ API key", nil)
					return
				}
				identity, err := svcs.Auth.ValidateAPIKey(ctx, raw)
				switch {
				case errors.Is(err, service.ErrInvalidKey):
					respond.Error(w, r, http.StatusUnauthorized, "INVALID_API_KEY", "Invalid API key", nil)
					return
				case errors.Is(err, service.ErrRevokedKey):
					respond.Error(w, r, http.StatusUnauthorized, "REVOKED_API_KEY", "API key has been revoked", nil)
					return
				case err != nil:
					respond.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to validate credentials", nil)
					return
				}
				serveWithIdentity(next, w, r, &Identity{
					TenantID: identity.TenantID,
					Tier:     identity.Tier,
					Source:   SourceAPIKey,
				})
				return
			}

			if cookie, err := r.Cookie(cfg.SessionCookie); err == nil && cookie.Value != "" {
				session, user, err := svcs.Session.Validate(ctx, cookie.Value)
				if errors.Is(err, service.ErrSessionNotFound) {
					respond.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Session expired or invalid", nil)
					return
				}
				if err != nil {
					respond.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to validate session", nil)
					return
				}
				tenant, err := svcs.Auth.TenantByID(ctx, user.TenantID)
				if err != nil || tenant == nil || !tenant.IsActive {
					respond.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Account is not active", nil)
					return
				}
				serveWithIdentity(next, w, r, &Identity{
					TenantID:  tenant.ID,
					Tier:      tenant.Tier,
					Source:    SourceSession,
					UserID:    user.ID,
					SessionID: session.ID,
					CSRFToken: session.CSRFToken,
				})
				return
			}

			respond.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Authentication required", nil)
		})
	}
}

func serveWithIdentity(next http.Handler, w http.ResponseWriter, r *http.Request, identity *Identity) {
	ctx := context.WithValue(r.Context(), IdentityKey, identity)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// parseGatewayTier maps the gateway subscription header onto a tier.
// Unknown values degrade to FREE.
func parseGatewayTier(subscription string) models.Tier {
	switch strings.ToUpper(strings.TrimSpace(subscription)) {
	case "PRO":
		return models.TierPro
	case "BUSINESS":
		return models.TierBusiness
	case "ENTERPRISE", "ULTRA", "MEGA":
		return models.TierEnterprise
	default:
		return models.TierFree
	}
}
