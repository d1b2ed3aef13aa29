package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/snapdock/snapdock-api/internal/models"
)

// webhookAttempts is how many delivery tries an event gets before it
// is dropped with a warning.
const webhookAttempts = 3

// WebhookService delivers job lifecycle events to tenant-supplied
// endpoints. Payloads are signed so receivers can verify origin.
type WebhookService struct {
	httpClient *http.Client
	signer     *svix.Webhook
	logger     *slog.Logger
}

// NewWebhookService creates a webhook service. The signing key is the
// HKDF-derived webhook key from config.
func NewWebhookService(signingKey []byte, logger *slog.Logger) (*WebhookService, error) {
	signer, err := svix.NewWebhook("whsec_" + base64.StdEncoding.EncodeToString(signingKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook signer: %w", err)
	}
	return &WebhookService{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		signer:     signer,
		logger:     logger,
	}, nil
}

// JobEvent is the webhook payload body. It carries the job's public
// fields only; render options never leave the process this way.
type JobEvent struct {
	Event     string       `json:"event"`
	Timestamp time.Time    `json:"timestamp"`
	Data      JobEventData `json:"data"`
}

// JobEventData is the job summary inside a webhook payload.
type JobEventData struct {
	JobID       string     `json:"jobId"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	DownloadURL string     `json:"downloadUrl,omitempty"`
	FileSize    int64      `json:"fileSize,omitempty"`
	PageCount   int        `json:"pageCount,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NotifyJobCompleted fires the job.completed event if the job has a
// webhook URL. Delivery happens off the request path.
func (s *WebhookService) NotifyJobCompleted(ctx context.Context, job *models.Job) {
	s.notify(job, "job.completed")
}

// NotifyJobFailed fires the job.failed event if the job has a webhook
// URL.
func (s *WebhookService) NotifyJobFailed(ctx context.Context, job *models.Job) {
	s.notify(job, "job.failed")
}

func (s *WebhookService) notify(job *models.Job, event string) {
	if job.WebhookURL == "" {
		return
	}

	payload := JobEvent{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data: JobEventData{
			JobID:       job.ID,
			Kind:        string(job.Kind),
			Status:      string(job.Status),
			DownloadURL: job.DownloadURL,
			FileSize:    job.FileSize,
			PageCount:   job.PageCount,
			Error:       job.Error,
			CreatedAt:   job.CreatedAt,
			CompletedAt: job.CompletedAt,
		},
	}

	go s.deliver(job.WebhookURL, job.ID, event, payload)
}

// deliver posts the signed event with bounded retries. Failures are
// logged and dropped; the job record is the source of truth either way.
func (s *WebhookService) deliver(url, jobID, event string, payload JobEvent) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to encode webhook payload", "job_id", jobID, "error", err)
		return
	}

	msgID := fmt.Sprintf("%s.%s", jobID, event)

	var lastErr error
	for attempt := 1; attempt <= webhookAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(time.Duration(attempt-1) * 2 * time.Second)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		lastErr = s.post(ctx, url, msgID, body)
		cancel()
		if lastErr == nil {
			s.logger.Info("webhook delivered",
				"job_id", jobID,
				"event", event,
				"attempt", attempt,
			)
			return
		}
	}

	s.logger.Warn("webhook delivery failed",
		"job_id", jobID,
		"event", event,
		"attempts", webhookAttempts,
		"error", lastErr,
	)
}

func (s *WebhookService) post(ctx context.Context, url, msgID string, body []byte) error {
	now := time.Now()
	signature, err := s.signer.Sign(msgID, now, body)
	if err != nil {
		return fmt.Errorf("failed to sign payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("svix-id", msgID)
	req.Header.Set("svix-timestamp", fmt.Sprintf("%d", now.Unix()))
	req.Header.Set("svix-signature", signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
