// Package models defines the domain models for the application.
package models

import (
	"time"
)

// Tier is a tenant's subscription class. It controls rate limits and
// the monthly credit budget.
type Tier string

const (
	TierFree       Tier = "FREE"
	TierPro        Tier = "PRO"
	TierBusiness   Tier = "BUSINESS"
	TierEnterprise Tier = "ENTERPRISE"
)

// Tenant is the account entity that owns API keys, jobs, and credits.
// Tenants are never deleted, only deactivated.
type Tenant struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Tier           Tier      `json:"tier"`
	MonthlyCredits int       `json:"monthly_credits"`
	UsedCredits    int       `json:"used_credits"`
	LastResetAt    time.Time `json:"last_reset_at"`
	IsActive       bool      `json:"is_active"`
	WebhookURL     string    `json:"webhook_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// User is a dashboard user attached to a tenant.
type User struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name,omitempty"`
	AvatarURL    string     `json:"avatar_url,omitempty"`
	PasswordHash string     `json:"-"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// OAuthLink connects a user to an external identity provider account.
type OAuthLink struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Provider   string    `json:"provider"` // google, github
	ExternalID string    `json:"external_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// APIKey is an opaque bearer credential owned by a tenant.
// The raw secret is never persisted; only its SHA-256 digest is.
type APIKey struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	KeyPrefix  string     `json:"key_prefix"` // First 8 hex chars for display
	IsActive   bool       `json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// KeyIdentity is the compact resolution of a validated credential.
// It is what gets cached by digest.
type KeyIdentity struct {
	KeyID          string `json:"key_id"`
	TenantID       string `json:"tenant_id"`
	Tier           Tier   `json:"tier"`
	MonthlyCredits int    `json:"monthly_credits"`
	UsedCredits    int    `json:"used_credits"`
	IsActive       bool   `json:"is_active"`
}

// Session is a dashboard-user session. The raw token is never persisted.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	CSRFToken string    `json:"-"`
	UserAgent string    `json:"user_agent,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// JobKind is the artifact type a job produces.
type JobKind string

const (
	JobKindScreenshot JobKind = "SCREENSHOT"
	JobKindPDF        JobKind = "PDF"
)

// JobStatus represents the state machine position of a job.
// Valid transitions: PENDING -> PROCESSING -> {COMPLETED, FAILED},
// and PENDING -> FAILED when enqueue fails. Terminal states never change.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// SourceKind distinguishes URL captures from raw HTML renders.
type SourceKind string

const (
	SourceKindURL  SourceKind = "URL"
	SourceKindHTML SourceKind = "HTML"
)

// Job is one capture or render request, durably tracked through its
// state machine. Privacy invariant: html content, request headers, and
// cookies are never persisted on this record. OptionsJSON holds only
// the filtered render options.
type Job struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Kind        JobKind    `json:"kind"`
	Status      JobStatus  `json:"status"`
	SourceKind  SourceKind `json:"source_kind"`
	SourceURL   string     `json:"source_url,omitempty"`
	Format      string     `json:"format"`
	OptionsJSON string     `json:"options_json,omitempty"`
	StorageKey  string     `json:"storage_key,omitempty"`
	DownloadURL string     `json:"download_url,omitempty"`
	FileSize    int64      `json:"file_size,omitempty"`
	PageCount   int        `json:"page_count,omitempty"` // PDF only
	Error       string     `json:"error,omitempty"`
	URLHash     string     `json:"url_hash,omitempty"` // digest for analytics dedup
	URLDomain   string     `json:"url_domain,omitempty"`
	WebhookURL  string     `json:"webhook_url,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// EventType classifies usage events for credit costing.
type EventType string

const (
	EventScreenshot         EventType = "SCREENSHOT"
	EventScreenshotFullPage EventType = "SCREENSHOT_FULLPAGE"
	EventPDF                EventType = "PDF"
	EventPDFWithTemplate    EventType = "PDF_WITH_TEMPLATE"
)

// UsageEvent is an append-only record of credit spend. It is created
// atomically with the tenant's used_credits increment.
type UsageEvent struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	EventType    EventType `json:"event_type"`
	Credits      int       `json:"credits"`
	MetadataJSON string    `json:"metadata_json,omitempty"` // already privacy-filtered
	CreatedAt    time.Time `json:"created_at"`
}

// WebhookEvent is the deduplication record for incoming billing events.
// A given ProviderEventID is processed at most once.
type WebhookEvent struct {
	ID              string     `json:"id"`
	ProviderEventID string     `json:"provider_event_id"`
	EventType       string     `json:"event_type"`
	Payload         string     `json:"-"`
	Processed       bool       `json:"processed"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// SubscriptionStatus mirrors the billing provider's lifecycle.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription links a tenant to its billing-provider subscription.
type Subscription struct {
	ID             string             `json:"id"`
	TenantID       string             `json:"tenant_id"`
	ProviderSubID  string             `json:"provider_sub_id"`
	ProviderCustID string             `json:"provider_cust_id,omitempty"`
	Tier           Tier               `json:"tier"`
	Status         SubscriptionStatus `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}
