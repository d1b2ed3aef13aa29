package service

import (
	"context"
	"testing"
	"time"

	appconfig "github.com/snapdock/snapdock-api/internal/config"
	"github.com/snapdock/snapdock-api/internal/models"
	"github.com/snapdock/snapdock-api/internal/queue"
	"github.com/snapdock/snapdock-api/internal/repository"
)

func TestCleanupService_Run(t *testing.T) {
	tenants := newMockTenantRepository()
	jobs := newMockJobRepository()
	sessions := newMockSessionRepository()
	usage := newMockUsageRepository(tenants)
	repos := &repository.Repositories{
		Tenant:  tenants,
		Job:     jobs,
		Session: sessions,
		Usage:   usage,
	}

	cfg := &appconfig.Config{
		QueueCompletedRetention: time.Minute,
	}
	storage, err := NewStorageService(cfg, testLogger())
	if err != nil {
		t.Fatalf("failed to create storage service: %v", err)
	}
	queues := NewQueues()
	usageSvc := NewUsageService(repos, testLogger())
	svc := NewCleanupService(repos, storage, usageSvc, queues, cfg, testLogger())

	now := time.Now()

	// One expired job, one current.
	if err := jobs.Create(context.Background(), &models.Job{
		ID: "screenshot_1_expired", TenantID: "tenant-1",
		Kind: models.JobKindScreenshot, Status: models.JobStatusCompleted,
		ExpiresAt: now.Add(-time.Hour), CreatedAt: now.Add(-25 * time.Hour),
	}); err != nil {
		t.Fatalf("failed to seed job: %v", err)
	}
	if err := jobs.Create(context.Background(), &models.Job{
		ID: "screenshot_2_live", TenantID: "tenant-1",
		Kind: models.JobKindScreenshot, Status: models.JobStatusCompleted,
		ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}); err != nil {
		t.Fatalf("failed to seed job: %v", err)
	}

	// One expired session, one current.
	if err := sessions.Create(context.Background(), &models.Session{
		ID: "sess-old", UserID: "user-1", TokenHash: "a",
		ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	if err := sessions.Create(context.Background(), &models.Session{
		ID: "sess-new", UserID: "user-1", TokenHash: "b",
		ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}); err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}

	// One settled queue task past retention.
	if err := queues.Screenshots.Enqueue(&queue.Task{ID: "screenshot_3_done"}); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	task, _, err := queues.Screenshots.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	queues.Screenshots.Complete(task.ID)
	cfg.QueueCompletedRetention = 0 // everything settled is old enough

	svc.Run(context.Background())

	if _, ok := jobs.jobs["screenshot_1_expired"]; ok {
		t.Error("expected expired job to be removed")
	}
	if _, ok := jobs.jobs["screenshot_2_live"]; !ok {
		t.Error("expected live job to remain")
	}

	remaining, _ := sessions.GetByUserID(context.Background(), "user-1")
	if len(remaining) != 1 || remaining[0].ID != "sess-new" {
		t.Errorf("expected only sess-new to remain, got %v", remaining)
	}

	stats := queues.Screenshots.Stats()
	if stats.Completed != 0 {
		t.Errorf("queue completed = %d, want 0 after clean", stats.Completed)
	}
}
