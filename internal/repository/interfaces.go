// Package repository defines repository interfaces and their SQLite
// implementations. All job reads on the public surface are tenant
// scoped; there is no unscoped lookup to reach for by accident.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/snapdock/snapdock-api/internal/models"
)

// TenantRepository defines methods for tenant data access.
type TenantRepository interface {
	Create(ctx context.Context, tenant *models.Tenant) error
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
	GetByEmail(ctx context.Context, email string) (*models.Tenant, error)
	Update(ctx context.Context, tenant *models.Tenant) error
	// SetTier updates tier and credit budget, zeroes used_credits, and
	// stamps last_reset_at. Used by the subscription reconciler.
	SetTier(ctx context.Context, tenantID string, tier models.Tier, monthlyCredits int, at time.Time) error
	// ResetPeriod zeroes used_credits and stamps last_reset_at for the
	// lazy monthly rollover.
	ResetPeriod(ctx context.Context, tenantID string, at time.Time) error
	// ResetExpiredPeriods sweeps every tenant whose last_reset_at
	// precedes the given instant. Returns the number reset.
	ResetExpiredPeriods(ctx context.Context, before time.Time, at time.Time) (int64, error)
	Deactivate(ctx context.Context, id string) error
}

// UserRepository defines methods for dashboard user data access.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// GetByOAuth resolves a user through an oauth link.
	GetByOAuth(ctx context.Context, provider, externalID string) (*models.User, error)
	// CreateWithTenant inserts a tenant, its first user, and an optional
	// oauth link in a single transaction.
	CreateWithTenant(ctx context.Context, tenant *models.Tenant, user *models.User, link *models.OAuthLink) error
	CreateOAuthLink(ctx context.Context, link *models.OAuthLink) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// APIKeyRepository defines methods for API key data access.
type APIKeyRepository interface {
	Create(ctx context.Context, key *models.APIKey) error
	GetByKeyHash(ctx context.Context, hash string) (*models.APIKey, error)
	GetByTenantID(ctx context.Context, tenantID string) ([]*models.APIKey, error)
	UpdateLastUsed(ctx context.Context, id string, lastUsed time.Time) error
	// Revoke deactivates a key owned by the tenant. Returns false when
	// no active key matched.
	Revoke(ctx context.Context, id, tenantID string) (bool, error)
}

// SessionRepository defines methods for session data access.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, hash string) (*models.Session, error)
	GetByUserID(ctx context.Context, userID string) ([]*models.Session, error)
	ExtendExpiry(ctx context.Context, id string, expiresAt time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ListJobsParams controls job listing. Limit is capped at 100 by the
// validation layer before it reaches the repository.
type ListJobsParams struct {
	Page      int
	Limit     int
	Status    models.JobStatus // optional filter
	Kind      models.JobKind   // optional filter
	SortBy    string           // created_at (default) or completed_at
	SortOrder string           // asc or desc (default)
}

// ExpiredJob pairs a pruned job with its storage key so the sweep can
// remove the blob.
type ExpiredJob struct {
	ID         string
	StorageKey string
}

// JobRepository defines methods for job data access and the state
// machine transitions. Create strips sensitive fields (html, headers,
// cookies) from the options blob before insert; terminal transitions
// are idempotent with respect to completed_at.
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByIDAndTenant(ctx context.Context, id, tenantID string) (*models.Job, error)
	// ListByTenant returns a page of jobs and the total count in one
	// transaction.
	ListByTenant(ctx context.Context, tenantID string, params ListJobsParams) ([]*models.Job, int, error)
	// DeleteByIDAndTenant reports whether a row was actually removed.
	DeleteByIDAndTenant(ctx context.Context, id, tenantID string) (bool, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, downloadURL, storageKey string, fileSize int64, pageCount int) error
	MarkFailed(ctx context.Context, id, reason string) error
	FindPending(ctx context.Context, limit int) ([]*models.Job, error)
	// CleanupExpired removes jobs past their retention horizon and
	// returns their storage keys for blob deletion.
	CleanupExpired(ctx context.Context, before time.Time) ([]ExpiredJob, error)
	// MarkStaleProcessingFailed fails jobs stuck in PROCESSING longer
	// than maxAge (startup recovery). Returns the number marked.
	MarkStaleProcessingFailed(ctx context.Context, maxAge time.Duration) (int64, error)
}

// UsageSummary aggregates credit spend for a period.
type UsageSummary struct {
	TotalEvents  int `json:"total_events"`
	TotalCredits int `json:"total_credits"`
}

// UsageRepository defines methods for usage event data access.
type UsageRepository interface {
	// DebitCredits inserts the usage event and increments the tenant's
	// used_credits by the same amount in a single transaction.
	DebitCredits(ctx context.Context, event *models.UsageEvent) error
	ListByTenant(ctx context.Context, tenantID string, since time.Time, limit int) ([]*models.UsageEvent, error)
	SummarySince(ctx context.Context, tenantID string, since time.Time) (*UsageSummary, error)
}

// WebhookEventRepository defines methods for incoming billing event
// deduplication.
type WebhookEventRepository interface {
	// Insert records a new event. Returns false when the provider event
	// id was already seen (at-most-once guarantee).
	Insert(ctx context.Context, event *models.WebhookEvent) (bool, error)
	MarkProcessed(ctx context.Context, providerEventID string, processErr string) error
	GetByProviderEventID(ctx context.Context, providerEventID string) (*models.WebhookEvent, error)
}

// SubscriptionRepository defines methods for subscription data access.
type SubscriptionRepository interface {
	Upsert(ctx context.Context, sub *models.Subscription) error
	GetByProviderSubID(ctx context.Context, providerSubID string) (*models.Subscription, error)
	GetByTenantID(ctx context.Context, tenantID string) (*models.Subscription, error)
	UpdateStatus(ctx context.Context, providerSubID string, status models.SubscriptionStatus) error
}

// Repositories holds all repository instances.
type Repositories struct {
	Tenant       TenantRepository
	User         UserRepository
	APIKey       APIKeyRepository
	Session      SessionRepository
	Job          JobRepository
	Usage        UsageRepository
	WebhookEvent WebhookEventRepository
	Subscription SubscriptionRepository
}

// NewRepositories creates all repository instances.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Tenant:       NewSQLiteTenantRepository(db),
		User:         NewSQLiteUserRepository(db),
		APIKey:       NewSQLiteAPIKeyRepository(db),
		Session:      NewSQLiteSessionRepository(db),
		Job:          NewSQLiteJobRepository(db),
		Usage:        NewSQLiteUsageRepository(db),
		WebhookEvent: NewSQLiteWebhookEventRepository(db),
		Subscription: NewSQLiteSubscriptionRepository(db),
	}
}
