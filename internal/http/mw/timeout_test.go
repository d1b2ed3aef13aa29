package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTimeout_DefaultDeadline(t *testing.T) {
	handler := Timeout(TimeoutConfig{
		Default:  20 * time.Millisecond,
		Extended: 500 * time.Millisecond,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
			t.Error("handler context was never canceled")
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/keys", nil))

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
	if code := decodeErrorCode(t, rec.Body.Bytes()); code != "TIMEOUT" {
		t.Errorf("code = %q, want TIMEOUT", code)
	}
}

func TestTimeout_ExtendedPattern(t *testing.T) {
	handler := Timeout(TimeoutConfig{
		Default:          20 * time.Millisecond,
		Extended:         time.Second,
		ExtendedPatterns: []string{"/v1/screenshots", "/v1/pdfs"},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/screenshots", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 on the extended path", rec.Code)
	}
}

func TestAPIVersionHeader(t *testing.T) {
	handler := APIVersion()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("X-API-Version") == "" {
		t.Error("expected X-API-Version header")
	}
}
