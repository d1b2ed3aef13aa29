package mw

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/snapdock/snapdock-api/internal/cache"
	"github.com/snapdock/snapdock-api/internal/models"
)

// A store with no backing Redis fails open, which lets the middleware
// contract (headers + pass-through) be exercised without a server.
func openStore(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.New("", slog.Default())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestTierRateLimit_SetsHeaders(t *testing.T) {
	handler := TierRateLimit(openStore(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/screenshots", nil)
	req = req.WithContext(context.WithValue(req.Context(), IdentityKey,
		&Identity{TenantID: "tenant-1", Tier: models.TierFree, Source: SourceAPIKey}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "100" {
		t.Errorf("X-RateLimit-Limit = %q, want 100 for FREE", got)
	}
	if got := rec.Header().Get("X-RateLimit-Tier"); got != "FREE" {
		t.Errorf("X-RateLimit-Tier = %q, want FREE", got)
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("expected X-RateLimit-Reset to be set")
	}
}

func TestTierRateLimit_NoIdentityPassesThrough(t *testing.T) {
	called := false
	handler := TierRateLimit(openStore(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/screenshots", nil))
	if !called {
		t.Error("expected pass-through without identity")
	}
}

func TestIPRateLimit_FailsOpenWithoutStore(t *testing.T) {
	called := false
	handler := IPRateLimit(openStore(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if !called {
		t.Error("expected pass-through when the store is disabled")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:52114"
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Errorf("ClientIP = %q, want 203.0.113.9", got)
	}

	req.RemoteAddr = "203.0.113.9"
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Errorf("ClientIP without port = %q, want 203.0.113.9", got)
	}
}
