package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	appconfig "github.com/snapdock/snapdock-api/internal/config"
	"github.com/snapdock/snapdock-api/internal/http/mw"
	"github.com/snapdock/snapdock-api/internal/http/respond"
	"github.com/snapdock/snapdock-api/internal/models"
	"github.com/snapdock/snapdock-api/internal/privacy"
	"github.com/snapdock/snapdock-api/internal/service"
)

// AuthHandler serves the dashboard sign-in surface: password login,
// logout, session management, and the CSRF token endpoint.
type AuthHandler struct {
	svcs   *service.Services
	cfg    *appconfig.Config
	logger *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(svcs *service.Services, cfg *appconfig.Config, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svcs: svcs, cfg: cfg, logger: logger}
}

// UserResponse is the shaped dashboard user.
type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

func shapeUser(user *models.User) *UserResponse {
	return &UserResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		AvatarURL:   user.AvatarURL,
	}
}

// setSessionCookies writes the session and CSRF cookies. The session
// cookie is HttpOnly; the CSRF cookie is readable by the dashboard so
// it can mirror the token into the X-CSRF-Token header.
func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, result *service.SessionResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookie,
		Value:    result.RawToken,
		Path:     "/",
		Expires:  result.Session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CSRFCookie,
		Value:    result.CSRFToken,
		Path:     "/",
		Expires:  result.Session.ExpiresAt,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{h.cfg.SessionCookie, h.cfg.CSRFCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:    name,
			Value:   "",
			Path:    "/",
			Expires: time.Unix(0, 0),
			MaxAge:  -1,
		})
	}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Email == "" || body.Password == "" {
		respond.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Email and password are required", nil)
		return
	}

	ip := mw.ClientIP(r)
	result, err := h.svcs.Session.Login(r.Context(), body.Email, body.Password, privacy.AnonymizeIP(ip), r.UserAgent())
	switch {
	case errors.Is(err, service.ErrLoginRateLimited):
		respond.Error(w, r, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many login attempts, try again later", nil)
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		respond.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Invalid email or password", nil)
		return
	case err != nil:
		h.logger.Error("login failed", "error", err)
		respond.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to sign in", nil)
		return
	}

	h.setSessionCookies(w, result)
	respond.JSON(w, r, http.StatusOK, map[string]any{
		"user":      shapeUser(result.User),
		"csrfToken": result.CSRFToken,
		"expiresAt": result.Session.ExpiresAt.Format(time.RFC3339),
	})
}

// Logout handles POST /auth/logout. Unknown tokens are a silent no-op
// so logout is idempotent.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.cfg.SessionCookie); err == nil && cookie.Value != "" {
		if err := h.svcs.Session.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Warn("logout failed", "error", err)
		}
	}
	h.clearSessionCookies(w)
	respond.NoContent(w)
}

// CSRFToken handles GET /auth/csrf-token for cookie-authenticated
// dashboard clients.
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	if identity == nil || identity.Source != mw.SourceSession {
		respond.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "A session is required", nil)
		return
	}
	respond.JSON(w, r, http.StatusOK, map[string]string{"csrfToken": identity.CSRFToken})
}

// SessionResponse is a shaped session record for the dashboard.
type SessionResponse struct {
	ID        string `json:"id"`
	UserAgent string `json:"userAgent,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	Current   bool   `json:"current"`
	ExpiresAt string `json:"expiresAt"`
	CreatedAt string `json:"createdAt"`
}

// ListSessions handles GET /auth/sessions.
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	if identity == nil || identity.Source != mw.SourceSession {
		respond.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "A session is required", nil)
		return
	}

	sessions, err := h.svcs.Session.ListSessions(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("failed to list sessions", "user_id", identity.UserID, "error", err)
		respond.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list sessions", nil)
		return
	}

	shaped := make([]*SessionResponse, len(sessions))
	for i, s := range sessions {
		shaped[i] = &SessionResponse{
			ID:        s.ID,
			UserAgent: s.UserAgent,
			IPAddress: s.IPAddress,
			Current:   s.ID == identity.SessionID,
			ExpiresAt: s.ExpiresAt.Format(time.RFC3339),
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
		}
	}
	respond.JSON(w, r, http.StatusOK, map[string]any{"sessions": shaped})
}

// RevokeSession handles DELETE /auth/sessions/{id}.
func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	if identity == nil || identity.Source != mw.SourceSession {
		respond.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "A session is required", nil)
		return
	}

	err := h.svcs.Session.RevokeSession(r.Context(), identity.UserID, chi.URLParam(r, "id"))
	if errors.Is(err, service.ErrSessionNotFound) {
		respond.Error(w, r, http.StatusNotFound, "NOT_FOUND", "Session not found", nil)
		return
	}
	if err != nil {
		h.logger.Error("failed to revoke session", "user_id", identity.UserID, "error", err)
		respond.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke session", nil)
		return
	}
	respond.NoContent(w)
}
