package handlers

import (
	"net/http"

	"github.com/snapdock/snapdock-api/internal/http/mw"
	"github.com/snapdock/snapdock-api/internal/http/respond"
	"github.com/snapdock/snapdock-api/internal/models"
	"github.com/snapdock/snapdock-api/internal/validate"
)

// CreatePDF handles POST /v1/pdfs.
func (h *CaptureHandler) CreatePDF(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	if identity == nil {
		respond.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Authentication required", nil)
		return
	}

	var req validate.PDFRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svcs.Capture.CreatePDF(r.Context(), identity.TenantID, &req)
	if err != nil {
		writeCaptureError(w, r, models.JobKindPDF, err)
		return
	}
	h.writeCreateResult(w, r, result, req.Async, req.NoStore)
}

// GetPDF handles GET /v1/pdfs/{id}.
func (h *CaptureHandler) GetPDF(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, models.JobKindPDF)
}

// ListPDFs handles GET /v1/pdfs.
func (h *CaptureHandler) ListPDFs(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, models.JobKindPDF)
}

// DownloadPDF handles GET /v1/pdfs/{id}/download.
func (h *CaptureHandler) DownloadPDF(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, models.JobKindPDF)
}

// DeletePDF handles DELETE /v1/pdfs/{id}.
func (h *CaptureHandler) DeletePDF(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, models.JobKindPDF)
}
