package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/snapdock/snapdock-api/internal/browser"
	"github.com/snapdock/snapdock-api/internal/models"
	"github.com/snapdock/snapdock-api/internal/service"
	"github.com/snapdock/snapdock-api/internal/validate"
)

type errorEnvelope struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeErrorEnvelope(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if env.Success {
		t.Error("error envelope must have success=false")
	}
	return env
}

func TestWriteCaptureError(t *testing.T) {
	cases := []struct {
		name     string
		kind     models.JobKind
		err      error
		wantCode int
		wantErr  string
	}{
		{
			name:     "validation errors",
			kind:     models.JobKindScreenshot,
			err:      validate.Errors{{Field: "width", Message: "must be between 1 and 3840"}},
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION_ERROR",
		},
		{
			name:     "bad url gets its own code",
			kind:     models.JobKindScreenshot,
			err:      validate.Errors{{Field: "url", Message: "must use http or https"}},
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_URL",
		},
		{
			name:     "quota exceeded",
			kind:     models.JobKindScreenshot,
			err:      service.ErrQuotaExceeded,
			wantCode: http.StatusTooManyRequests,
			wantErr:  "QUOTA_EXCEEDED",
		},
		{
			name:     "screenshot not found",
			kind:     models.JobKindScreenshot,
			err:      service.ErrJobNotFound,
			wantCode: http.StatusNotFound,
			wantErr:  "SCREENSHOT_NOT_FOUND",
		},
		{
			name:     "pdf not found",
			kind:     models.JobKindPDF,
			err:      service.ErrJobNotFound,
			wantCode: http.StatusNotFound,
			wantErr:  "PDF_NOT_FOUND",
		},
		{
			name:     "engine timeout",
			kind:     models.JobKindScreenshot,
			err:      &browser.EngineError{Code: "TIMEOUT", Message: "render timed out"},
			wantCode: http.StatusGatewayTimeout,
			wantErr:  "TIMEOUT",
		},
		{
			name:     "navigation timeout",
			kind:     models.JobKindScreenshot,
			err:      &browser.EngineError{Code: "NAVIGATION_TIMEOUT", Message: "page load timed out"},
			wantCode: http.StatusGatewayTimeout,
			wantErr:  "NAVIGATION_TIMEOUT",
		},
		{
			name:     "engine failure",
			kind:     models.JobKindPDF,
			err:      &browser.EngineError{Code: "BROWSER_CRASH", Message: "target closed"},
			wantCode: http.StatusInternalServerError,
			wantErr:  "BROWSER_ERROR",
		},
		{
			name:     "unknown error",
			kind:     models.JobKindScreenshot,
			err:      errors.New("boom"),
			wantCode: http.StatusInternalServerError,
			wantErr:  "PROCESSING_FAILED",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/screenshots", nil)

			writeCaptureError(rec, req, tc.kind, tc.err)

			if rec.Code != tc.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantCode)
			}
			env := decodeErrorEnvelope(t, rec)
			if env.Error.Code != tc.wantErr {
				t.Errorf("error code = %q, want %q", env.Error.Code, tc.wantErr)
			}
		})
	}
}

func TestWriteCaptureError_ContextDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/screenshots", nil).WithContext(ctx)

	writeCaptureError(rec, req, models.JobKindScreenshot, ctx.Err())

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
	env := decodeErrorEnvelope(t, rec)
	if env.Error.Code != "TIMEOUT" {
		t.Errorf("error code = %q, want TIMEOUT", env.Error.Code)
	}
}
