package handlers

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	appconfig "github.com/snapdock/snapdock-api/internal/config"
	"github.com/snapdock/snapdock-api/internal/http/mw"
	"github.com/snapdock/snapdock-api/internal/http/respond"
	"github.com/snapdock/snapdock-api/internal/privacy"
	"github.com/snapdock/snapdock-api/internal/service"
)

const oauthStateCookie = "snapdock_oauth_state"

// OAuthHandler implements the Google and GitHub sign-in flows. Google
// goes through OIDC discovery; GitHub uses the plain OAuth2 code flow
// plus its REST user endpoint.
type OAuthHandler struct {
	svcs   *service.Services
	cfg    *appconfig.Config
	auth   *AuthHandler
	logger *slog.Logger

	googleOnce     sync.Once
	googleProvider *oidc.Provider
	googleErr      error
}

// NewOAuthHandler creates a new OAuth handler. The auth handler is
// shared so callback responses set the same session cookies as
// password login.
func NewOAuthHandler(svcs *service.Services, cfg *appconfig.Config, auth *AuthHandler, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{svcs: svcs, cfg: cfg, auth: auth, logger: logger}
}

func (h *OAuthHandler) redirectURL(provider string) string {
	return fmt.Sprintf("%s/auth/oauth/%s/callback", h.cfg.OAuthRedirectBase, provider)
}

// google resolves the Google OIDC provider once. Discovery is deferred
// so the server still boots when accounts.google.com is unreachable.
func (h *OAuthHandler) google(ctx context.Context) (*oidc.Provider, error) {
	h.googleOnce.Do(func() {
		h.googleProvider, h.googleErr = oidc.NewProvider(ctx, "https://accounts.google.com")
	})
	return h.googleProvider, h.googleErr
}

func (h *OAuthHandler) oauthConfig(ctx context.Context, provider string) (*oauth2.Config, error) {
	switch provider {
	case "google":
		p, err := h.google(ctx)
		if err != nil {
			return nil, fmt.Errorf("google discovery: %w", err)
		}
		return &oauth2.Config{
			ClientID:     h.cfg.OAuthGoogleClientID,
			ClientSecret: h.cfg.OAuthGoogleClientSecret,
			RedirectURL:  h.redirectURL("google"),
			Endpoint:     p.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		}, nil
	case "github":
		return &oauth2.Config{
			ClientID:     h.cfg.OAuthGitHubClientID,
			ClientSecret: h.cfg.OAuthGitHubClientSecret,
			RedirectURL:  h.redirectURL("github"),
			Endpoint:     github.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		}, nil
	default:
		return nil, fmt.Errorf("unknown oauth provider %q", provider)
	}
}

// Start handles GET /auth/oauth/{provider}.
func (h *OAuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	conf, err := h.oauthConfig(r.Context(), provider)
	if err != nil {
		respond.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Unsupported sign-in provider", nil)
		return
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start sign-in", nil)
		return
	}
	state := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/oauth",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, conf.AuthCodeURL(state), http.StatusFound)
}

// Callback handles GET /auth/oauth/{provider}/callback.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	conf, err := h.oauthConfig(r.Context(), provider)
	if err != nil {
		respond.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Unsupported sign-in provider", nil)
		return
	}

	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" ||
		subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(r.URL.Query().Get("state"))) != 1 {
		respond.Error(w, r, http.StatusForbidden, "CSRF_INVALID", "Sign-in state mismatch", nil)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/auth/oauth", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		respond.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Missing authorization code", nil)
		return
	}

	token, err := conf.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("oauth code exchange failed", "provider", provider, "error", err)
		respond.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Sign-in was not completed", nil)
		return
	}

	var profile service.OAuthProfile
	switch provider {
	case "google":
		profile, err = h.googleProfile(r.Context(), token)
	case "github":
		profile, err = h.githubProfile(r.Context(), conf, token)
	}
	if err != nil {
		h.logger.Warn("oauth profile fetch failed", "provider", provider, "error", err)
		respond.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Could not load the provider profile", nil)
		return
	}

	user, err := h.svcs.Session.ResolveOAuthProfile(r.Context(), profile)
	if err != nil {
		h.logger.Error("oauth profile resolve failed", "provider", provider, "error", err)
		respond.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to sign in", nil)
		return
	}

	result, err := h.svcs.Session.CreateForUser(r.Context(), user, privacy.AnonymizeIP(mw.ClientIP(r)), r.UserAgent())
	if err != nil {
		h.logger.Error("session create failed", "provider", provider, "error", err)
		respond.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to sign in", nil)
		return
	}

	h.auth.setSessionCookies(w, result)
	respond.JSON(w, r, http.StatusOK, map[string]any{
		"user":      shapeUser(result.User),
		"csrfToken": result.CSRFToken,
		"expiresAt": result.Session.ExpiresAt.Format(time.RFC3339),
	})
}

// googleProfile verifies the ID token from the exchange and reads the
// standard OIDC claims.
func (h *OAuthHandler) googleProfile(ctx context.Context, token *oauth2.Token) (service.OAuthProfile, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return service.OAuthProfile{}, fmt.Errorf("token response has no id_token")
	}

	provider, err := h.google(ctx)
	if err != nil {
		return service.OAuthProfile{}, err
	}
	idToken, err := provider.VerifierContext(ctx, &oidc.Config{ClientID: h.cfg.OAuthGoogleClientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return service.OAuthProfile{}, fmt.Errorf("verify id token: %w", err)
	}

	var claims struct {
		Subject string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return service.OAuthProfile{}, fmt.Errorf("decode claims: %w", err)
	}
	return service.OAuthProfile{
		Provider:   "google",
		ExternalID: claims.Subject,
		Email:      claims.Email,
		Name:       claims.Name,
		AvatarURL:  claims.Picture,
	}, nil
}

// githubProfile loads the user record over the REST API, falling back
// to /user/emails when the profile email is private.
func (h *OAuthHandler) githubProfile(ctx context.Context, conf *oauth2.Config, token *oauth2.Token) (service.OAuthProfile, error) {
	client := conf.Client(ctx, token)

	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := githubGet(ctx, client, "https://api.github.com/user", &user); err != nil {
		return service.OAuthProfile{}, err
	}

	email := user.Email
	if email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := githubGet(ctx, client, "https://api.github.com/user/emails", &emails); err != nil {
			return service.OAuthProfile{}, err
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				break
			}
		}
	}
	if email == "" {
		return service.OAuthProfile{}, fmt.Errorf("github account has no verified primary email")
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}
	return service.OAuthProfile{
		Provider:   "github",
		ExternalID: strconv.FormatInt(user.ID, 10),
		Email:      email,
		Name:       name,
		AvatarURL:  user.AvatarURL,
	}, nil
}

func githubGet(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github api %s returned %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
