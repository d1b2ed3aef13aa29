package handlers

import (
	"time"

	"github.com/snapdock/snapdock-api/internal/models"
)

// JobResponse is the shaped job record returned on the public API.
// Sensitive request material (html, headers, cookies) is never part of
// the record, so there is nothing to filter here.
type JobResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	SourceKind  string `json:"sourceKind"`
	URL         string `json:"url,omitempty"`
	Format      string `json:"format"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	FileSize    int64  `json:"fileSize,omitempty"`
	PageCount   int    `json:"pageCount,omitempty"`
	Error       string `json:"error,omitempty"`
	WebhookURL  string `json:"webhookUrl,omitempty"`
	ExpiresAt   string `json:"expiresAt"`
	CreatedAt   string `json:"createdAt"`
	CompletedAt string `json:"completedAt,omitempty"`
}

func shapeJob(job *models.Job) *JobResponse {
	resp := &JobResponse{
		ID:          job.ID,
		Kind:        string(job.Kind),
		Status:      string(job.Status),
		SourceKind:  string(job.SourceKind),
		URL:         job.SourceURL,
		Format:      job.Format,
		DownloadURL: job.DownloadURL,
		FileSize:    job.FileSize,
		PageCount:   job.PageCount,
		Error:       job.Error,
		WebhookURL:  job.WebhookURL,
		ExpiresAt:   job.ExpiresAt.Format(time.RFC3339),
		CreatedAt:   job.CreatedAt.Format(time.RFC3339),
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

func shapeJobs(jobs []*models.Job) []*JobResponse {
	shaped := make([]*JobResponse, len(jobs))
	for i, job := range jobs {
		shaped[i] = shapeJob(job)
	}
	return shaped
}
