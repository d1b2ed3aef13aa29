// Package handlers implements the HTTP handlers for the snapdock-api.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/snapdock/snapdock-api/internal/http/mw"
	"github.com/snapdock/snapdock-api/internal/http/respond"
	"github.com/snapdock/snapdock-api/internal/models"
	"github.com/snapdock/snapdock-api/internal/repository"
	"github.com/snapdock/snapdock-api/internal/service"
	"github.com/snapdock/snapdock-api/internal/validate"
)

// CaptureHandler serves the screenshot and PDF endpoints. Create
// responses branch on delivery mode: 202 for async submissions, 201
// for stored renders, and a raw 200 binary for sync+noStore.
type CaptureHandler struct {
	svcs   *service.Services
	logger *slog.Logger
}

// NewCaptureHandler creates a new capture handler.
func NewCaptureHandler(svcs *service.Services, logger *slog.Logger) *CaptureHandler {
	return &CaptureHandler{svcs: svcs, logger: logger}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Request body is not valid JSON", nil)
		return false
	}
	return true
}

// writeCreateResult shapes the three create outcomes.
func (h *CaptureHandler) writeCreateResult(w http.ResponseWriter, r *http.Request, result *service.CaptureResult, async, noStore bool) {
	if async {
		respond.JSON(w, r, http.StatusAccepted, shapeJob(result.Job))
		return
	}
	if noStore {
		h.writeArtifact(w, result.Job, result.Data, result.ContentType, true)
		return
	}
	respond.JSON(w, r, http.StatusCreated, shapeJob(result.Job))
}

// writeArtifact streams artifact bytes with metadata headers.
func (h *CaptureHandler) writeArtifact(w http.ResponseWriter, job *models.Job, data []byte, contentType string, noStore bool) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifactFilename(job, contentType)))
	w.Header().Set("X-Snapdock-Job-Id", job.ID)
	if job.PageCount > 0 {
		w.Header().Set("X-Snapdock-Page-Count", strconv.Itoa(job.PageCount))
	}
	if noStore {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func artifactFilename(job *models.Job, contentType string) string {
	ext := "png"
	switch contentType {
	case "application/pdf":
		ext = "pdf"
	case "image/jpeg":
		ext = "jpg"
	case "image/webp":
		ext = "webp"
	}
	return job.ID + "." + ext
}

// getJobOfKind loads a tenant's job and hides jobs of the other kind
// behind the same kind-specific 404.
func (h *CaptureHandler) getJobOfKind(w http.ResponseWriter, r *http.Request, kind models.JobKind) *models.Job {
	identity := mw.GetIdentity(r.Context())
	if identity == nil {
		respond.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Authentication required", nil)
		return nil
	}

	job, err := h.svcs.Capture.GetJob(r.Context(), identity.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeCaptureError(w, r, kind, err)
		return nil
	}
	if job.Kind != kind {
		respond.Error(w, r, http.StatusNotFound, notFoundCode(kind), "Resource not found", nil)
		return nil
	}
	return job
}

func (h *CaptureHandler) get(w http.ResponseWriter, r *http.Request, kind models.JobKind) {
	job := h.getJobOfKind(w, r, kind)
	if job == nil {
		return
	}
	respond.JSON(w, r, http.StatusOK, shapeJob(job))
}

func (h *CaptureHandler) list(w http.ResponseWriter, r *http.Request, kind models.JobKind) {
	identity := mw.GetIdentity(r.Context())
	if identity == nil {
		respond.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Authentication required", nil)
		return
	}

	params, ok := parseListParams(w, r, kind)
	if !ok {
		return
	}

	jobs, total, err := h.svcs.Capture.ListJobs(r.Context(), identity.TenantID, params)
	if err != nil {
		h.logger.Error("failed to list jobs", "tenant_id", identity.TenantID, "error", err)
		respond.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list jobs", nil)
		return
	}

	respond.Page(w, r, http.StatusOK, shapeJobs(jobs), respond.NewPagination(params.Page, params.Limit, total))
}

func (h *CaptureHandler) download(w http.ResponseWriter, r *http.Request, kind models.JobKind) {
	job := h.getJobOfKind(w, r, kind)
	if job == nil {
		return
	}

	if job.Status != models.JobStatusCompleted || job.StorageKey == "" {
		respond.Error(w, r, http.StatusBadRequest, "NOT_READY",
			fmt.Sprintf("Job is not downloadable (status: %s)", strings.ToLower(string(job.Status))), nil)
		return
	}

	identity := mw.GetIdentity(r.Context())
	data, contentType, _, err := h.svcs.Capture.DownloadArtifact(r.Context(), identity.TenantID, job.ID)
	if err != nil {
		h.logger.Error("failed to download artifact", "job_id", job.ID, "error", err)
		respond.Error(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to fetch the artifact", nil)
		return
	}

	h.writeArtifact(w, job, data, contentType, false)
}

func (h *CaptureHandler) delete(w http.ResponseWriter, r *http.Request, kind models.JobKind) {
	job := h.getJobOfKind(w, r, kind)
	if job == nil {
		return
	}

	identity := mw.GetIdentity(r.Context())
	if err := h.svcs.Capture.DeleteJob(r.Context(), identity.TenantID, job.ID); err != nil {
		writeCaptureError(w, r, kind, err)
		return
	}
	respond.NoContent(w)
}

// parseListParams reads pagination, filter, and sort query parameters.
func parseListParams(w http.ResponseWriter, r *http.Request, kind models.JobKind) (repository.ListJobsParams, bool) {
	q := r.URL.Query()

	page := queryInt(q.Get("page"), 1)
	limit := queryInt(q.Get("limit"), 20)
	sortBy := q.Get("sortBy")
	sortOrder := q.Get("sortOrder")

	if err := validate.ValidateListParams(page, limit, sortBy, sortOrder); err != nil {
		writeCaptureError(w, r, kind, err)
		return repository.ListJobsParams{}, false
	}

	params := repository.ListJobsParams{
		Page:      page,
		Limit:     limit,
		Kind:      kind,
		SortBy:    sortBy,
		SortOrder: sortOrder,
	}
	if status := strings.ToUpper(q.Get("status")); status != "" {
		params.Status = models.JobStatus(status)
	}
	return params, true
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
