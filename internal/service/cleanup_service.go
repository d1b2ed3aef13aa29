package service

import (
	"context"
	"log/slog"
	"time"

	appconfig "github.com/snapdock/snapdock-api/internal/config"
	"github.com/snapdock/snapdock-api/internal/repository"
)

// CleanupService removes expired jobs and their stored artifacts,
// expired sessions, and settled queue entries.
type CleanupService struct {
	repos   *repository.Repositories
	storage *StorageService
	usage   *UsageService
	queues  *Queues
	cfg     *appconfig.Config
	logger  *slog.Logger
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(repos *repository.Repositories, storage *StorageService, usage *UsageService, queues *Queues, cfg *appconfig.Config, logger *slog.Logger) *CleanupService {
	return &CleanupService{
		repos:   repos,
		storage: storage,
		usage:   usage,
		queues:  queues,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run executes one cleanup sweep. Each stage is independent; a failure
// in one never blocks the others.
func (s *CleanupService) Run(ctx context.Context) {
	s.cleanupJobs(ctx)
	s.cleanupSessions(ctx)
	s.cleanupQueues()
	s.rolloverPeriods(ctx)
}

// Start runs the sweep on an interval until the context ends.
func (s *CleanupService) Start(ctx context.Context) {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("cleanup loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cleanup loop stopped")
			return
		case <-ticker.C:
			s.Run(ctx)
		}
	}
}

// cleanupJobs deletes expired job records, then best-effort deletes
// their blobs. The record goes first so an artifact delete failure
// cannot resurrect an expired job.
func (s *CleanupService) cleanupJobs(ctx context.Context) {
	expired, err := s.repos.Job.CleanupExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error("failed to clean up expired jobs", "error", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	for _, job := range expired {
		if job.StorageKey == "" {
			continue
		}
		if err := s.storage.Delete(ctx, job.StorageKey); err != nil {
			s.logger.Warn("failed to delete expired artifact", "key", job.StorageKey, "error", err)
		}
	}
	s.logger.Info("cleaned up expired jobs", "count", len(expired))
}

func (s *CleanupService) cleanupSessions(ctx context.Context) {
	deleted, err := s.repos.Session.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error("failed to clean up sessions", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("cleaned up expired sessions", "count", deleted)
	}
}

func (s *CleanupService) cleanupQueues() {
	retention := s.cfg.QueueCompletedRetention
	removed := s.queues.Screenshots.Clean(retention) + s.queues.PDFs.Clean(retention)
	if removed > 0 {
		s.logger.Info("cleaned up settled queue entries", "count", removed)
	}
}

func (s *CleanupService) rolloverPeriods(ctx context.Context) {
	reset, err := s.usage.SweepExpiredPeriods(ctx)
	if err != nil {
		s.logger.Error("failed to sweep credit periods", "error", err)
		return
	}
	if reset > 0 {
		s.logger.Info("rolled over idle tenant periods", "count", reset)
	}
}
