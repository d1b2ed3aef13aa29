package handlers

import (
	"errors"
	"net/http"

	"github.com/snapdock/snapdock-api/internal/browser"
	"github.com/snapdock/snapdock-api/internal/http/respond"
	"github.com/snapdock/snapdock-api/internal/models"
	"github.com/snapdock/snapdock-api/internal/service"
	"github.com/snapdock/snapdock-api/internal/validate"
)

// notFoundCode returns the kind-specific 404 code so a cross-tenant
// probe is indistinguishable from a genuinely missing job.
func notFoundCode(kind models.JobKind) string {
	if kind == models.JobKindPDF {
		return "PDF_NOT_FOUND"
	}
	return "SCREENSHOT_NOT_FOUND"
}

// writeCaptureError maps a capture-path failure onto the error
// taxonomy and writes the envelope.
func writeCaptureError(w http.ResponseWriter, r *http.Request, kind models.JobKind, err error) {
	var verrs validate.Errors
	if errors.As(err, &verrs) {
		code := "VALIDATION_ERROR"
		if len(verrs) == 1 && verrs[0].Field == "url" {
			code = "INVALID_URL"
		}
		respond.Error(w, r, http.StatusBadRequest, code, verrs.Error(), verrs.Details())
		return
	}

	if errors.Is(err, service.ErrQuotaExceeded) {
		respond.Error(w, r, http.StatusTooManyRequests, "QUOTA_EXCEEDED", "Monthly credit budget exhausted", nil)
		return
	}

	if errors.Is(err, service.ErrJobNotFound) {
		respond.Error(w, r, http.StatusNotFound, notFoundCode(kind), "Resource not found", nil)
		return
	}

	var engineErr *browser.EngineError
	if errors.As(err, &engineErr) {
		switch engineErr.Code {
		case "NAVIGATION_TIMEOUT":
			respond.Error(w, r, http.StatusGatewayTimeout, "NAVIGATION_TIMEOUT", engineErr.Message, nil)
		case "TIMEOUT":
			respond.Error(w, r, http.StatusGatewayTimeout, "TIMEOUT", engineErr.Message, nil)
		default:
			respond.Error(w, r, http.StatusInternalServerError, "BROWSER_ERROR", engineErr.Message, nil)
		}
		return
	}

	if errors.Is(err, r.Context().Err()) && r.Context().Err() != nil {
		respond.Error(w, r, http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil)
		return
	}

	respond.Error(w, r, http.StatusInternalServerError, "PROCESSING_FAILED", "Failed to process the request", nil)
}
