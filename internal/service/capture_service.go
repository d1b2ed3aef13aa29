package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/snapdock/snapdock-api/internal/browser"
	appconfig "github.com/snapdock/snapdock-api/internal/config"
	"github.com/snapdock/snapdock-api/internal/models"
	"github.com/snapdock/snapdock-api/internal/privacy"
	"github.com/snapdock/snapdock-api/internal/queue"
	"github.com/snapdock/snapdock-api/internal/repository"
	"github.com/snapdock/snapdock-api/internal/validate"
)

// ErrJobNotFound is returned when a job does not exist for the tenant.
var ErrJobNotFound = errors.New("job not found")

// CaptureService orchestrates screenshot and PDF jobs: validation,
// quota, the job record, and either the synchronous render or the
// queue handoff.
type CaptureService struct {
	repos    *repository.Repositories
	storage  *StorageService
	usage    *UsageService
	webhooks *WebhookService
	engine   *browser.Client
	queues   *Queues
	cfg      *appconfig.Config
	logger   *slog.Logger
}

// Queues groups the per-kind work queues.
type Queues struct {
	Screenshots *queue.Queue
	PDFs        *queue.Queue
}

// NewQueues creates the work queues.
func NewQueues() *Queues {
	return &Queues{
		Screenshots: queue.New("screenshots"),
		PDFs:        queue.New("pdfs"),
	}
}

// NewCaptureService creates a new capture service.
func NewCaptureService(
	repos *repository.Repositories,
	storage *StorageService,
	usage *UsageService,
	webhooks *WebhookService,
	engine *browser.Client,
	queues *Queues,
	cfg *appconfig.Config,
	logger *slog.Logger,
) *CaptureService {
	return &CaptureService{
		repos:    repos,
		storage:  storage,
		usage:    usage,
		webhooks: webhooks,
		engine:   engine,
		queues:   queues,
		cfg:      cfg,
		logger:   logger,
	}
}

// ScreenshotTask is the in-memory queue payload for a screenshot job.
// The request carries cookies and headers, which is why the payload
// never leaves process memory.
type ScreenshotTask struct {
	Job     *models.Job
	Tier    models.Tier
	Request *validate.ScreenshotRequest

	// ephemeral marks the sync+noStore path: no job row exists, so no
	// state transitions are recorded. Never set on queued tasks.
	ephemeral bool
}

// PDFTask is the in-memory queue payload for a PDF job.
type PDFTask struct {
	Job     *models.Job
	Tier    models.Tier
	Request *validate.PDFRequest
	Source  validate.PDFSource

	ephemeral bool
}

// CaptureResult is what a create call hands back to the transport
// layer. For synchronous renders Data holds the artifact bytes; for
// async submissions only Job is set.
type CaptureResult struct {
	Job         *models.Job
	Data        []byte
	ContentType string
	Stored      bool
}

// CreateScreenshot validates, checks quota, records the job, and
// either renders inline or enqueues.
func (s *CaptureService) CreateScreenshot(ctx context.Context, tenantID string, req *validate.ScreenshotRequest) (*CaptureResult, error) {
	if err := validate.ValidateScreenshot(req); err != nil {
		return nil, err
	}

	eventType := models.EventScreenshot
	if req.FullPage {
		eventType = models.EventScreenshotFullPage
	}
	tenant, err := s.usage.CheckQuota(ctx, tenantID, CostFor(eventType))
	if err != nil {
		return nil, err
	}

	// Sync + noStore renders without ever materializing a job row.
	if req.NoStore {
		job := s.buildJob(tenantID, models.JobKindScreenshot, models.SourceKindURL, req.URL, req.Format, req, req.WebhookURL)
		return s.renderScreenshot(ctx, &ScreenshotTask{Job: job, Tier: tenant.Tier, Request: req, ephemeral: true})
	}

	job, err := s.createJob(ctx, tenantID, models.JobKindScreenshot, models.SourceKindURL, req.URL, req.Format, req, req.WebhookURL)
	if err != nil {
		return nil, err
	}

	task := &ScreenshotTask{Job: job, Tier: tenant.Tier, Request: req}
	if req.Async {
		return s.enqueue(ctx, s.queues.Screenshots, job, req.Priority, task)
	}
	return s.renderScreenshot(ctx, task)
}

// CreatePDF validates, checks quota, records the job, and either
// renders inline or enqueues.
func (s *CaptureService) CreatePDF(ctx context.Context, tenantID string, req *validate.PDFRequest) (*CaptureResult, error) {
	source, err := validate.ValidatePDF(req)
	if err != nil {
		return nil, err
	}

	eventType := models.EventPDF
	if req.HasTemplate() {
		eventType = models.EventPDFWithTemplate
	}
	tenant, err := s.usage.CheckQuota(ctx, tenantID, CostFor(eventType))
	if err != nil {
		return nil, err
	}

	if req.NoStore {
		job := s.buildJob(tenantID, models.JobKindPDF, source.Kind, source.URL, req.Format, req, req.WebhookURL)
		return s.renderPDF(ctx, &PDFTask{Job: job, Tier: tenant.Tier, Request: req, Source: source, ephemeral: true})
	}

	job, err := s.createJob(ctx, tenantID, models.JobKindPDF, source.Kind, source.URL, req.Format, req, req.WebhookURL)
	if err != nil {
		return nil, err
	}

	task := &PDFTask{Job: job, Tier: tenant.Tier, Request: req, Source: source}
	if req.Async {
		return s.enqueue(ctx, s.queues.PDFs, job, req.Priority, task)
	}
	return s.renderPDF(ctx, task)
}

// createJob persists the PENDING job record. The options blob passes
// through the privacy filter inside the repository, so html, cookies,
// and headers never reach the database.
func (s *CaptureService) createJob(ctx context.Context, tenantID string, kind models.JobKind, sourceKind models.SourceKind, sourceURL, format string, options any, webhookURL string) (*models.Job, error) {
	job := s.buildJob(tenantID, kind, sourceKind, sourceURL, format, options, webhookURL)
	if err := s.repos.Job.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// buildJob assembles the job record without persisting it. The
// ephemeral noStore path uses it directly.
func (s *CaptureService) buildJob(tenantID string, kind models.JobKind, sourceKind models.SourceKind, sourceURL, format string, options any, webhookURL string) *models.Job {
	optionsJSON, _ := json.Marshal(options)

	now := time.Now()
	job := &models.Job{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Kind:        kind,
		Status:      models.JobStatusPending,
		SourceKind:  sourceKind,
		Format:      format,
		OptionsJSON: string(optionsJSON),
		WebhookURL:  webhookURL,
		ExpiresAt:   now.Add(s.cfg.JobRetention),
		CreatedAt:   now,
	}
	if sourceKind == models.SourceKindURL {
		job.SourceURL = sourceURL
		job.URLHash = privacy.HashURL(sourceURL)
		job.URLDomain = privacy.URLDomain(sourceURL)
	}
	return job
}

// enqueue hands a PENDING job to its queue for the worker pool. The
// task gets its own queue-side id; JobID links it back to the row. An
// enqueue failure fails the job immediately rather than stranding it.
func (s *CaptureService) enqueue(ctx context.Context, q *queue.Queue, job *models.Job, priority int, payload any) (*CaptureResult, error) {
	taskID := queue.NewTaskID(strings.ToLower(string(job.Kind)))
	err := q.Enqueue(&queue.Task{
		ID:       taskID,
		JobID:    job.ID,
		Priority: priority,
		Payload:  payload,
	})
	if err != nil {
		if markErr := s.repos.Job.MarkFailed(ctx, job.ID, "Failed to enqueue job"); markErr != nil {
			s.logger.Error("failed to mark enqueue failure", "job_id", job.ID, "error", markErr)
		}
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	s.logger.Info("job enqueued",
		"job_id", job.ID,
		"task_id", taskID,
		"queue", q.Name(),
		"priority", priority,
	)
	return &CaptureResult{Job: job}, nil
}

// RenderScreenshot runs a screenshot job through the engine and
// settles the job record. It is shared by the synchronous path and the
// worker pool.
func (s *CaptureService) RenderScreenshot(ctx context.Context, task *ScreenshotTask) (*CaptureResult, error) {
	return s.renderScreenshot(ctx, task)
}

// RenderPDF is the PDF counterpart of RenderScreenshot.
func (s *CaptureService) RenderPDF(ctx context.Context, task *PDFTask) (*CaptureResult, error) {
	return s.renderPDF(ctx, task)
}

func (s *CaptureService) renderScreenshot(ctx context.Context, task *ScreenshotTask) (*CaptureResult, error) {
	job, req := task.Job, task.Request

	if !task.ephemeral {
		if err := s.repos.Job.MarkProcessing(ctx, job.ID); err != nil {
			return nil, fmt.Errorf("failed to mark job processing: %w", err)
		}
	}
	job.Status = models.JobStatusProcessing

	result, err := s.engine.Screenshot(ctx, s.renderContext(job, task.Tier), screenshotRenderPayload(req))
	if err != nil {
		return nil, s.settleFailure(job, err, task.ephemeral)
	}

	contentType := result.ContentType
	if contentType == "" {
		contentType = formatContentType(req.Format)
	}

	eventType := models.EventScreenshot
	if req.FullPage {
		eventType = models.EventScreenshotFullPage
	}

	dims := map[string]string{}
	if req.Viewport != nil {
		if req.Viewport.Width > 0 {
			dims["width"] = strconv.Itoa(req.Viewport.Width)
		}
		if req.Viewport.Height > 0 {
			dims["height"] = strconv.Itoa(req.Viewport.Height)
		}
	}
	return s.settleSuccess(ctx, job, result, contentType, eventType, dims, task.ephemeral)
}

func (s *CaptureService) renderPDF(ctx context.Context, task *PDFTask) (*CaptureResult, error) {
	job, req := task.Job, task.Request

	if !task.ephemeral {
		if err := s.repos.Job.MarkProcessing(ctx, job.ID); err != nil {
			return nil, fmt.Errorf("failed to mark job processing: %w", err)
		}
	}
	job.Status = models.JobStatusProcessing

	result, err := s.engine.PDF(ctx, s.renderContext(job, task.Tier), pdfRenderPayload(req, task.Source))
	if err != nil {
		return nil, s.settleFailure(job, err, task.ephemeral)
	}

	eventType := models.EventPDF
	if req.HasTemplate() {
		eventType = models.EventPDFWithTemplate
	}
	return s.settleSuccess(ctx, job, result, "application/pdf", eventType, nil, task.ephemeral)
}

func (s *CaptureService) renderContext(job *models.Job, tier models.Tier) browser.RenderContext {
	return browser.RenderContext{
		TenantID: job.TenantID,
		Tier:     string(tier),
		JobID:    job.ID,
	}
}

// settleSuccess stores the artifact, completes the job, debits
// credits, and fires the completion webhook. Ephemeral renders skip
// storage and the row transitions but still pay for the render.
// Settlement runs on a fresh context so a caller disconnect after the
// render cannot strand a PROCESSING job.
func (s *CaptureService) settleSuccess(ctx context.Context, job *models.Job, result *browser.RenderResult, contentType string, eventType models.EventType, dims map[string]string, ephemeral bool) (*CaptureResult, error) {
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	var storageKey, downloadURL string
	stored := false

	if !ephemeral && s.storage.IsEnabled() {
		name := job.URLDomain
		if name == "" {
			name = "document"
		}
		if job.Kind == models.JobKindPDF {
			storageKey = PDFKey(job.TenantID, name)
			downloadURL = fmt.Sprintf("%s/v1/pdfs/%s/download", s.cfg.BaseURL, job.ID)
		} else {
			storageKey = ScreenshotKey(job.TenantID, name, job.Format)
			downloadURL = fmt.Sprintf("%s/v1/screenshots/%s/download", s.cfg.BaseURL, job.ID)
		}
		if err := s.storage.Upload(settleCtx, storageKey, result.Data, contentType, s.objectMetadata(job, result, dims)); err != nil {
			return nil, s.settleFailure(job, fmt.Errorf("failed to store artifact: %w", err), ephemeral)
		}
		stored = true
	}

	if !ephemeral {
		if err := s.repos.Job.MarkCompleted(settleCtx, job.ID, downloadURL, storageKey, int64(len(result.Data)), result.PageCount); err != nil {
			return nil, fmt.Errorf("failed to mark job completed: %w", err)
		}
	}
	now := time.Now()
	job.Status = models.JobStatusCompleted
	job.StorageKey = storageKey
	job.DownloadURL = downloadURL
	job.FileSize = int64(len(result.Data))
	job.PageCount = result.PageCount
	job.CompletedAt = &now

	if err := s.usage.Debit(settleCtx, job.TenantID, eventType, s.usageMetadata(job, ephemeral)); err != nil {
		// The artifact was delivered; losing the debit is logged, not fatal.
		s.logger.Error("failed to debit credits", "job_id", job.ID, "error", err)
	}

	s.webhooks.NotifyJobCompleted(settleCtx, job)

	s.logger.Info("job completed",
		"job_id", job.ID,
		"kind", job.Kind,
		"size_bytes", job.FileSize,
		"stored", stored,
	)
	return &CaptureResult{
		Job:         job,
		Data:        result.Data,
		ContentType: contentType,
		Stored:      stored,
	}, nil
}

// settleFailure records the failure and fires the failure webhook,
// then returns the original render error for the transport layer.
func (s *CaptureService) settleFailure(job *models.Job, renderErr error, ephemeral bool) error {
	settleCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reason := renderErr.Error()
	var engineErr *browser.EngineError
	if errors.As(renderErr, &engineErr) {
		reason = engineErr.Message
	}

	if !ephemeral {
		if err := s.repos.Job.MarkFailed(settleCtx, job.ID, reason); err != nil {
			s.logger.Error("failed to mark job failed", "job_id", job.ID, "error", err)
		}
	}
	job.Status = models.JobStatusFailed
	job.Error = reason

	s.webhooks.NotifyJobFailed(settleCtx, job)

	s.logger.Warn("job failed",
		"job_id", job.ID,
		"kind", job.Kind,
		"reason", reason,
	)
	return renderErr
}

// objectMetadata builds the object-store metadata for an uploaded
// artifact: job id, domain (never the full URL), and dimensions.
func (s *CaptureService) objectMetadata(job *models.Job, result *browser.RenderResult, dims map[string]string) map[string]string {
	meta := map[string]string{"job_id": job.ID}
	if job.URLDomain != "" {
		meta["url_domain"] = job.URLDomain
	}
	if result.PageCount > 0 {
		meta["page_count"] = strconv.Itoa(result.PageCount)
	}
	for k, v := range dims {
		meta[k] = v
	}
	return meta
}

// usageMetadata builds the privacy-safe metadata blob for the usage
// event: domain and hash only, never the raw URL.
func (s *CaptureService) usageMetadata(job *models.Job, noStore bool) string {
	meta := map[string]any{
		"job_id": job.ID,
		"kind":   string(job.Kind),
	}
	if job.URLDomain != "" {
		meta["url_domain"] = job.URLDomain
	}
	if job.URLHash != "" {
		meta["url_hash"] = job.URLHash
	}
	if noStore {
		meta["no_store"] = true
	}
	out, _ := json.Marshal(meta)
	return string(out)
}

// GetJob returns a tenant's job, or ErrJobNotFound. Jobs of other
// tenants are indistinguishable from missing ones.
func (s *CaptureService) GetJob(ctx context.Context, tenantID, jobID string) (*models.Job, error) {
	job, err := s.repos.Job.GetByIDAndTenant(ctx, jobID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ListJobs returns a page of the tenant's jobs plus the total count.
func (s *CaptureService) ListJobs(ctx context.Context, tenantID string, params repository.ListJobsParams) ([]*models.Job, int, error) {
	return s.repos.Job.ListByTenant(ctx, tenantID, params)
}

// DownloadArtifact streams a completed job's artifact from storage.
func (s *CaptureService) DownloadArtifact(ctx context.Context, tenantID, jobID string) ([]byte, string, *models.Job, error) {
	job, err := s.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, "", nil, err
	}
	if job.Status != models.JobStatusCompleted || job.StorageKey == "" {
		return nil, "", job, fmt.Errorf("job is not downloadable")
	}

	data, contentType, err := s.storage.Download(ctx, job.StorageKey)
	if err != nil {
		return nil, "", job, err
	}
	if contentType == "" {
		if job.Kind == models.JobKindPDF {
			contentType = "application/pdf"
		} else {
			contentType = formatContentType(job.Format)
		}
	}
	return data, contentType, job, nil
}

// DeleteJob removes the job record and best-effort deletes its blob.
// PENDING jobs still in the queue are canceled first.
func (s *CaptureService) DeleteJob(ctx context.Context, tenantID, jobID string) error {
	job, err := s.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return err
	}

	if job.Status == models.JobStatusPending {
		s.queues.Screenshots.CancelJob(job.ID)
		s.queues.PDFs.CancelJob(job.ID)
	}

	deleted, err := s.repos.Job.DeleteByIDAndTenant(ctx, jobID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if !deleted {
		return ErrJobNotFound
	}

	if job.StorageKey != "" {
		if err := s.storage.Delete(ctx, job.StorageKey); err != nil {
			s.logger.Warn("failed to delete artifact blob", "job_id", jobID, "error", err)
		}
	}
	return nil
}

// screenshotRenderPayload is the engine request body. Delivery-only
// fields (async, noStore, priority, webhookUrl) stay out of it.
func screenshotRenderPayload(req *validate.ScreenshotRequest) map[string]any {
	payload := map[string]any{
		"url":    req.URL,
		"format": req.Format,
	}
	if req.Quality != 0 {
		payload["quality"] = req.Quality
	}
	if req.FullPage {
		payload["fullPage"] = true
	}
	if req.ScrollPosition != nil {
		payload["scrollPosition"] = req.ScrollPosition
	}
	if req.Viewport != nil {
		payload["viewport"] = req.Viewport
	}
	if req.Clip != nil {
		payload["clip"] = req.Clip
	}
	if len(req.BlockResources) > 0 {
		payload["blockResources"] = req.BlockResources
	}
	if req.WaitUntil != "" {
		payload["waitUntil"] = req.WaitUntil
	}
	if req.TimeoutMs != 0 {
		payload["timeout"] = req.TimeoutMs
	}
	if len(req.Cookies) > 0 {
		payload["cookies"] = req.Cookies
	}
	if len(req.Headers) > 0 {
		payload["headers"] = req.Headers
	}
	return payload
}

func pdfRenderPayload(req *validate.PDFRequest, source validate.PDFSource) map[string]any {
	payload := map[string]any{
		"format": req.Format,
	}
	if source.Kind == models.SourceKindHTML {
		payload["html"] = source.HTML
	} else {
		payload["url"] = source.URL
	}
	if req.Scale != 0 {
		payload["scale"] = req.Scale
	}
	if req.Landscape {
		payload["landscape"] = true
	}
	if req.PrintBackground {
		payload["printBackground"] = true
	}
	if req.Margins != nil {
		payload["margins"] = req.Margins
	}
	if req.Width != "" {
		payload["width"] = req.Width
	}
	if req.Height != "" {
		payload["height"] = req.Height
	}
	if req.HeaderTemplate != "" {
		payload["headerTemplate"] = req.HeaderTemplate
	}
	if req.FooterTemplate != "" {
		payload["footerTemplate"] = req.FooterTemplate
	}
	if req.WaitUntil != "" {
		payload["waitUntil"] = req.WaitUntil
	}
	if req.TimeoutMs != 0 {
		payload["timeout"] = req.TimeoutMs
	}
	if len(req.Cookies) > 0 {
		payload["cookies"] = req.Cookies
	}
	if len(req.Headers) > 0 {
		payload["headers"] = req.Headers
	}
	return payload
}

func formatContentType(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
