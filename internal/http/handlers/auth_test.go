package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	appconfig "github.com/snapdock/snapdock-api/internal/config"
	"github.com/snapdock/snapdock-api/internal/http/mw"
)

func testAuthHandler() *AuthHandler {
	cfg := &appconfig.Config{
		SessionCookie: "snapdock_session",
		CSRFCookie:    "snapdock_csrf",
	}
	return NewAuthHandler(nil, cfg, testLogger())
}

func withSessionIdentity(r *http.Request) *http.Request {
	identity := &mw.Identity{
		TenantID:  "tenant-1",
		Source:    mw.SourceSession,
		UserID:    "user-1",
		SessionID: "sess-1",
		CSRFToken: "csrf-token-value",
	}
	return r.WithContext(context.WithValue(r.Context(), mw.IdentityKey, identity))
}

func TestLogin_RejectsEmptyCredentials(t *testing.T) {
	h := testAuthHandler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.co"}`))
	h.Login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	env := decodeErrorEnvelope(t, rec)
	if env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error code = %q, want VALIDATION_ERROR", env.Error.Code)
	}
}

func TestLogin_RejectsMalformedBody(t *testing.T) {
	h := testAuthHandler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("not json"))
	h.Login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestLogout_ClearsCookiesWithoutSession(t *testing.T) {
	h := testAuthHandler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	h.Logout(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}

	cleared := map[string]bool{}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.MaxAge < 0 {
			cleared[cookie.Name] = true
		}
	}
	if !cleared["snapdock_session"] || !cleared["snapdock_csrf"] {
		t.Errorf("expected both cookies cleared, got %v", cleared)
	}
}

func TestCSRFToken(t *testing.T) {
	h := testAuthHandler()

	t.Run("requires session identity", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/auth/csrf-token", nil)
		h.CSRFToken(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("returns the session token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := withSessionIdentity(httptest.NewRequest(http.MethodGet, "/auth/csrf-token", nil))
		h.CSRFToken(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var env struct {
			Data struct {
				CSRFToken string `json:"csrfToken"`
			} `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("failed to decode envelope: %v", err)
		}
		if env.Data.CSRFToken != "csrf-token-value" {
			t.Errorf("csrfToken = %q, want csrf-token-value", env.Data.CSRFToken)
		}
	})
}
