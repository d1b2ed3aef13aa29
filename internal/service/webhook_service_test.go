package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/snapdock/snapdock-api/internal/models"
)

type capturedDelivery struct {
	body    []byte
	headers http.Header
}

func TestWebhookService_DeliversSignedEvent(t *testing.T) {
	received := make(chan capturedDelivery, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- capturedDelivery{body: body, headers: r.Header.Clone()}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	signingKey := make([]byte, 32)
	for i := range signingKey {
		signingKey[i] = byte(i)
	}
	svc, err := NewWebhookService(signingKey, testLogger())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	now := time.Now()
	job := &models.Job{
		ID:          "screenshot_1700000000000_abc123xyz",
		TenantID:    "tenant-1",
		Kind:        models.JobKindScreenshot,
		Status:      models.JobStatusCompleted,
		DownloadURL: "https://api.snapdock.test/v1/screenshots/screenshot_1700000000000_abc123xyz/download",
		FileSize:    12345,
		WebhookURL:  srv.URL,
		CreatedAt:   now,
		CompletedAt: &now,
	}

	svc.NotifyJobCompleted(context.Background(), job)

	var delivery capturedDelivery
	select {
	case delivery = <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	var event JobEvent
	if err := json.Unmarshal(delivery.body, &event); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if event.Event != "job.completed" {
		t.Errorf("Event = %q, want job.completed", event.Event)
	}
	if event.Data.JobID != job.ID {
		t.Errorf("JobID = %q, want %q", event.Data.JobID, job.ID)
	}
	if event.Data.DownloadURL != job.DownloadURL {
		t.Errorf("DownloadURL = %q, want %q", event.Data.DownloadURL, job.DownloadURL)
	}
	if event.Timestamp.IsZero() {
		t.Error("expected Timestamp to be set")
	}

	// A receiver holding the shared secret must be able to verify.
	verifier, err := svix.NewWebhook("whsec_" + base64.StdEncoding.EncodeToString(signingKey))
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}
	if err := verifier.Verify(delivery.body, delivery.headers); err != nil {
		t.Errorf("signature verification failed: %v", err)
	}
}

func TestWebhookService_FailedEventPayload(t *testing.T) {
	received := make(chan capturedDelivery, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- capturedDelivery{body: body, headers: r.Header.Clone()}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc, err := NewWebhookService(make([]byte, 32), testLogger())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	job := &models.Job{
		ID:         "pdf_1700000000000_def456uvw",
		Kind:       models.JobKindPDF,
		Status:     models.JobStatusFailed,
		Error:      "Navigation timeout of 30000 ms exceeded",
		WebhookURL: srv.URL,
		CreatedAt:  time.Now(),
	}
	svc.NotifyJobFailed(context.Background(), job)

	var delivery capturedDelivery
	select {
	case delivery = <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	var event JobEvent
	if err := json.Unmarshal(delivery.body, &event); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if event.Event != "job.failed" {
		t.Errorf("Event = %q, want job.failed", event.Event)
	}
	if event.Data.Error != job.Error {
		t.Errorf("Error = %q, want %q", event.Data.Error, job.Error)
	}
	if event.Data.DownloadURL != "" {
		t.Error("failed events must not carry a download url")
	}
}

func TestWebhookService_NoURLIsNoOp(t *testing.T) {
	svc, err := NewWebhookService(make([]byte, 32), testLogger())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	// Must not panic or block.
	svc.NotifyJobCompleted(context.Background(), &models.Job{ID: "screenshot_1_a", CreatedAt: time.Now()})
}
