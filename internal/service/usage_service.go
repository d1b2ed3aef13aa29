package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/snapdock/snapdock-api/internal/constants"
	"github.com/snapdock/snapdock-api/internal/models"
	"github.com/snapdock/snapdock-api/internal/repository"
)

// ErrQuotaExceeded is returned when a debit would overrun the monthly
// credit budget.
var ErrQuotaExceeded = errors.New("monthly credit quota exceeded")

// UsageService tracks credit spend against monthly tenant budgets.
type UsageService struct {
	repos  *repository.Repositories
	logger *slog.Logger
}

// NewUsageService creates a new usage service.
func NewUsageService(repos *repository.Repositories, logger *slog.Logger) *UsageService {
	return &UsageService{
		repos:  repos,
		logger: logger,
	}
}

// CostFor maps an event type to its credit cost.
func CostFor(eventType models.EventType) int {
	switch eventType {
	case models.EventScreenshotFullPage:
		return constants.CostScreenshotFullPage
	case models.EventPDF:
		return constants.CostPDF
	case models.EventPDFWithTemplate:
		return constants.CostPDFWithTemplate
	default:
		return constants.CostScreenshot
	}
}

// EnsureCurrentPeriod applies the lazy monthly rollover: when the
// tenant's last reset is more than a calendar month old, used credits
// zero out before any quota math. The tenant struct is updated in
// place on rollover.
func (s *UsageService) EnsureCurrentPeriod(ctx context.Context, tenant *models.Tenant) error {
	now := time.Now()
	if tenant.LastResetAt.AddDate(0, 1, 0).After(now) {
		return nil
	}

	if err := s.repos.Tenant.ResetPeriod(ctx, tenant.ID, now); err != nil {
		return fmt.Errorf("failed to roll over period: %w", err)
	}
	tenant.UsedCredits = 0
	tenant.LastResetAt = now

	s.logger.Info("rolled over credit period", "tenant_id", tenant.ID)
	return nil
}

// CheckQuota loads the tenant, rolls the period if due, and verifies
// that cost credits still fit the budget. The check-then-debit pair is
// not atomic; a small overage under concurrency is accepted over
// serializing every capture.
func (s *UsageService) CheckQuota(ctx context.Context, tenantID string, cost int) (*models.Tenant, error) {
	tenant, err := s.repos.Tenant.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	if tenant == nil {
		return nil, fmt.Errorf("tenant %s not found", tenantID)
	}

	if err := s.EnsureCurrentPeriod(ctx, tenant); err != nil {
		return nil, err
	}

	if tenant.UsedCredits+cost > tenant.MonthlyCredits {
		return tenant, ErrQuotaExceeded
	}
	return tenant, nil
}

// Debit records credit spend for a completed render. The metadata is
// expected to be privacy-filtered already (url domain and hash only).
func (s *UsageService) Debit(ctx context.Context, tenantID string, eventType models.EventType, metadataJSON string) error {
	event := &models.UsageEvent{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		EventType:    eventType,
		Credits:      CostFor(eventType),
		MetadataJSON: metadataJSON,
		CreatedAt:    time.Now(),
	}
	if err := s.repos.Usage.DebitCredits(ctx, event); err != nil {
		return fmt.Errorf("failed to debit credits: %w", err)
	}
	return nil
}

// Report is the usage summary exposed on the API.
type Report struct {
	Tier             models.Tier `json:"tier"`
	MonthlyCredits   int         `json:"monthlyCredits"`
	UsedCredits      int         `json:"usedCredits"`
	RemainingCredits int         `json:"remainingCredits"`
	PeriodStart      time.Time   `json:"periodStart"`
	PeriodEnd        time.Time   `json:"periodEnd"`
	TotalEvents      int         `json:"totalEvents"`
}

// Summarize builds the usage report for a tenant's current period.
func (s *UsageService) Summarize(ctx context.Context, tenantID string) (*Report, error) {
	tenant, err := s.repos.Tenant.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	if tenant == nil {
		return nil, fmt.Errorf("tenant %s not found", tenantID)
	}
	if err := s.EnsureCurrentPeriod(ctx, tenant); err != nil {
		return nil, err
	}

	summary, err := s.repos.Usage.SummarySince(ctx, tenantID, tenant.LastResetAt)
	if err != nil {
		return nil, err
	}

	remaining := tenant.MonthlyCredits - tenant.UsedCredits
	if remaining < 0 {
		remaining = 0
	}

	return &Report{
		Tier:             tenant.Tier,
		MonthlyCredits:   tenant.MonthlyCredits,
		UsedCredits:      tenant.UsedCredits,
		RemainingCredits: remaining,
		PeriodStart:      tenant.LastResetAt,
		PeriodEnd:        tenant.LastResetAt.AddDate(0, 1, 0),
		TotalEvents:      summary.TotalEvents,
	}, nil
}

// SweepExpiredPeriods rolls over every tenant overdue for a reset.
// The request-path lazy rollover covers active tenants; this sweep
// catches idle ones so dashboards show fresh budgets.
func (s *UsageService) SweepExpiredPeriods(ctx context.Context) (int64, error) {
	now := time.Now()
	return s.repos.Tenant.ResetExpiredPeriods(ctx, now.AddDate(0, -1, 0), now)
}
