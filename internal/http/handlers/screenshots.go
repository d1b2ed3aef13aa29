package handlers

import (
	"net/http"

	"github.com/snapdock/snapdock-api/internal/http/mw"
	"github.com/snapdock/snapdock-api/internal/http/respond"
	"github.com/snapdock/snapdock-api/internal/models"
	"github.com/snapdock/snapdock-api/internal/validate"
)

// CreateScreenshot handles POST /v1/screenshots.
func (h *CaptureHandler) CreateScreenshot(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	if identity == nil {
		respond.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Authentication required", nil)
		return
	}

	var req validate.ScreenshotRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svcs.Capture.CreateScreenshot(r.Context(), identity.TenantID, &req)
	if err != nil {
		writeCaptureError(w, r, models.JobKindScreenshot, err)
		return
	}
	h.writeCreateResult(w, r, result, req.Async, req.NoStore)
}

// GetScreenshot handles GET /v1/screenshots/{id}.
func (h *CaptureHandler) GetScreenshot(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, models.JobKindScreenshot)
}

// ListScreenshots handles GET /v1/screenshots.
func (h *CaptureHandler) ListScreenshots(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, models.JobKindScreenshot)
}

// DownloadScreenshot handles GET /v1/screenshots/{id}/download.
func (h *CaptureHandler) DownloadScreenshot(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, models.JobKindScreenshot)
}

// DeleteScreenshot handles DELETE /v1/screenshots/{id}.
func (h *CaptureHandler) DeleteScreenshot(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, models.JobKindScreenshot)
}
