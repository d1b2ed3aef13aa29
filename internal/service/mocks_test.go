package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/snapdock/snapdock-api/internal/cache"
	"github.com/snapdock/snapdock-api/internal/models"
	"github.com/snapdock/snapdock-api/internal/repository"
)

// In-memory repository mocks shared across the service tests.

func testLogger() *slog.Logger {
	return slog.Default()
}

// testCache returns a disabled store: cache reads miss, rate limits
// fail open.
func testCache() *cache.Store {
	store, _ := cache.New("", testLogger())
	return store
}

// hashAPIKey computes the SHA256 hex of a raw key (same as auth_service).
func hashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ---- tenants ----

type mockTenantRepository struct {
	mu      sync.RWMutex
	tenants map[string]*models.Tenant
}

func newMockTenantRepository() *mockTenantRepository {
	return &mockTenantRepository{tenants: make(map[string]*models.Tenant)}
}

func (m *mockTenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tenant
	m.tenants[tenant.ID] = &cp
	return nil
}

func (m *mockTenantRepository) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tenants[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *mockTenantRepository) GetByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tenants {
		if strings.EqualFold(t.Email, email) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockTenantRepository) Update(ctx context.Context, tenant *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tenant
	m.tenants[tenant.ID] = &cp
	return nil
}

func (m *mockTenantRepository) SetTier(ctx context.Context, tenantID string, tier models.Tier, monthlyCredits int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tenants[tenantID]; ok {
		t.Tier = tier
		t.MonthlyCredits = monthlyCredits
		t.UsedCredits = 0
		t.LastResetAt = at
	}
	return nil
}

func (m *mockTenantRepository) ResetPeriod(ctx context.Context, tenantID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tenants[tenantID]; ok {
		t.UsedCredits = 0
		t.LastResetAt = at
	}
	return nil
}

func (m *mockTenantRepository) ResetExpiredPeriods(ctx context.Context, before time.Time, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tenants {
		if t.LastResetAt.Before(before) {
			t.UsedCredits = 0
			t.LastResetAt = at
			n++
		}
	}
	return n, nil
}

func (m *mockTenantRepository) Deactivate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tenants[id]; ok {
		t.IsActive = false
	}
	return nil
}

// ---- users ----

type mockUserRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User
	links []*models.OAuthLink

	tenants *mockTenantRepository // CreateWithTenant writes through
}

func newMockUserRepository(tenants *mockTenantRepository) *mockUserRepository {
	return &mockUserRepository{
		users:   make(map[string]*models.User),
		tenants: tenants,
	}
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepository) GetByOAuth(ctx context.Context, provider, externalID string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.links {
		if l.Provider == provider && l.ExternalID == externalID {
			if u, ok := m.users[l.UserID]; ok {
				cp := *u
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (m *mockUserRepository) CreateWithTenant(ctx context.Context, tenant *models.Tenant, user *models.User, link *models.OAuthLink) error {
	if m.tenants != nil {
		if err := m.tenants.Create(ctx, tenant); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.users[user.ID] = &cp
	if link != nil {
		lcp := *link
		m.links = append(m.links, &lcp)
	}
	return nil
}

func (m *mockUserRepository) CreateOAuthLink(ctx context.Context, link *models.OAuthLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *link
	m.links = append(m.links, &cp)
	return nil
}

func (m *mockUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

// ---- api keys ----

type mockAPIKeyRepository struct {
	mu   sync.RWMutex
	keys map[string]*models.APIKey // keyed by hash
}

func newMockAPIKeyRepository() *mockAPIKeyRepository {
	return &mockAPIKeyRepository{keys: make(map[string]*models.APIKey)}
}

func (m *mockAPIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *key
	m.keys[key.KeyHash] = &cp
	return nil
}

func (m *mockAPIKeyRepository) GetByKeyHash(ctx context.Context, hash string) (*models.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if key, ok := m.keys[hash]; ok {
		cp := *key
		return &cp, nil
	}
	return nil, nil
}

func (m *mockAPIKeyRepository) GetByTenantID(ctx context.Context, tenantID string) ([]*models.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*models.APIKey
	for _, key := range m.keys {
		if key.TenantID == tenantID {
			cp := *key
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockAPIKeyRepository) UpdateLastUsed(ctx context.Context, id string, lastUsed time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range m.keys {
		if key.ID == id {
			key.LastUsedAt = &lastUsed
			return nil
		}
	}
	return nil
}

func (m *mockAPIKeyRepository) Revoke(ctx context.Context, id, tenantID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range m.keys {
		if key.ID == id && key.TenantID == tenantID && key.IsActive {
			now := time.Now()
			key.IsActive = false
			key.RevokedAt = &now
			return true, nil
		}
	}
	return false, nil
}

// ---- sessions ----

type mockSessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

func newMockSessionRepository() *mockSessionRepository {
	return &mockSessionRepository{sessions: make(map[string]*models.Session)}
}

func (m *mockSessionRepository) Create(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m *mockSessionRepository) GetByTokenHash(ctx context.Context, hash string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.TokenHash == hash {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockSessionRepository) GetByUserID(ctx context.Context, userID string) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*models.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			cp := *s
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockSessionRepository) ExtendExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.ExpiresAt = expiresAt
	}
	return nil
}

func (m *mockSessionRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *mockSessionRepository) DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && s.UserID == userID {
		delete(m.sessions, id)
		return true, nil
	}
	return false, nil
}

func (m *mockSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// ---- jobs ----

type mockJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{jobs: make(map[string]*models.Job)}
}

func (m *mockJobRepository) get(id string) *models.Job {
	return m.jobs[id]
}

func (m *mockJobRepository) Create(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *mockJobRepository) GetByIDAndTenant(ctx context.Context, id, tenantID string) (*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if j, ok := m.jobs[id]; ok && j.TenantID == tenantID {
		cp := *j
		return &cp, nil
	}
	return nil, nil
}

func (m *mockJobRepository) ListByTenant(ctx context.Context, tenantID string, params repository.ListJobsParams) ([]*models.Job, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*models.Job
	for _, j := range m.jobs {
		if j.TenantID == tenantID {
			cp := *j
			result = append(result, &cp)
		}
	}
	return result, len(result), nil
}

func (m *mockJobRepository) DeleteByIDAndTenant(ctx context.Context, id, tenantID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok && j.TenantID == tenantID {
		delete(m.jobs, id)
		return true, nil
	}
	return false, nil
}

func (m *mockJobRepository) MarkProcessing(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok && j.Status == models.JobStatusPending {
		j.Status = models.JobStatusProcessing
	}
	return nil
}

func (m *mockJobRepository) MarkCompleted(ctx context.Context, id, downloadURL, storageKey string, fileSize int64, pageCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok && j.Status == models.JobStatusProcessing {
		now := time.Now()
		j.Status = models.JobStatusCompleted
		j.DownloadURL = downloadURL
		j.StorageKey = storageKey
		j.FileSize = fileSize
		j.PageCount = pageCount
		j.CompletedAt = &now
	}
	return nil
}

func (m *mockJobRepository) MarkFailed(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok && (j.Status == models.JobStatusPending || j.Status == models.JobStatusProcessing) {
		now := time.Now()
		j.Status = models.JobStatusFailed
		j.Error = reason
		j.CompletedAt = &now
	}
	return nil
}

func (m *mockJobRepository) FindPending(ctx context.Context, limit int) ([]*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*models.Job
	for _, j := range m.jobs {
		if j.Status == models.JobStatusPending {
			cp := *j
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockJobRepository) CleanupExpired(ctx context.Context, before time.Time) ([]repository.ExpiredJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []repository.ExpiredJob
	for id, j := range m.jobs {
		if j.ExpiresAt.Before(before) {
			expired = append(expired, repository.ExpiredJob{ID: id, StorageKey: j.StorageKey})
			delete(m.jobs, id)
		}
	}
	return expired, nil
}

func (m *mockJobRepository) MarkStaleProcessingFailed(ctx context.Context, maxAge time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	var n int64
	for _, j := range m.jobs {
		if j.Status == models.JobStatusProcessing && j.CreatedAt.Before(cutoff) {
			j.Status = models.JobStatusFailed
			j.Error = "Job terminated: server restart or timeout"
			n++
		}
	}
	return n, nil
}

// ---- usage ----

type mockUsageRepository struct {
	mu     sync.RWMutex
	events []*models.UsageEvent

	tenants *mockTenantRepository // DebitCredits writes through
}

func newMockUsageRepository(tenants *mockTenantRepository) *mockUsageRepository {
	return &mockUsageRepository{tenants: tenants}
}

func (m *mockUsageRepository) DebitCredits(ctx context.Context, event *models.UsageEvent) error {
	m.mu.Lock()
	cp := *event
	m.events = append(m.events, &cp)
	m.mu.Unlock()

	if m.tenants != nil {
		m.tenants.mu.Lock()
		if t, ok := m.tenants.tenants[event.TenantID]; ok {
			t.UsedCredits += event.Credits
		}
		m.tenants.mu.Unlock()
	}
	return nil
}

func (m *mockUsageRepository) ListByTenant(ctx context.Context, tenantID string, since time.Time, limit int) ([]*models.UsageEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*models.UsageEvent
	for _, e := range m.events {
		if e.TenantID == tenantID && !e.CreatedAt.Before(since) {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockUsageRepository) SummarySince(ctx context.Context, tenantID string, since time.Time) (*repository.UsageSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summary := &repository.UsageSummary{}
	for _, e := range m.events {
		if e.TenantID == tenantID && !e.CreatedAt.Before(since) {
			summary.TotalEvents++
			summary.TotalCredits += e.Credits
		}
	}
	return summary, nil
}

// ---- webhook events ----

type mockWebhookEventRepository struct {
	mu     sync.RWMutex
	events map[string]*models.WebhookEvent // keyed by provider event id
}

func newMockWebhookEventRepository() *mockWebhookEventRepository {
	return &mockWebhookEventRepository{events: make(map[string]*models.WebhookEvent)}
}

func (m *mockWebhookEventRepository) Insert(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[event.ProviderEventID]; ok {
		return false, nil
	}
	cp := *event
	m.events[event.ProviderEventID] = &cp
	return true, nil
}

func (m *mockWebhookEventRepository) MarkProcessed(ctx context.Context, providerEventID string, processErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.events[providerEventID]; ok {
		now := time.Now()
		e.Processed = true
		e.ProcessedAt = &now
		e.Error = processErr
	}
	return nil
}

func (m *mockWebhookEventRepository) GetByProviderEventID(ctx context.Context, providerEventID string) (*models.WebhookEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.events[providerEventID]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

// ---- subscriptions ----

type mockSubscriptionRepository struct {
	mu   sync.RWMutex
	subs map[string]*models.Subscription // keyed by provider sub id
}

func newMockSubscriptionRepository() *mockSubscriptionRepository {
	return &mockSubscriptionRepository{subs: make(map[string]*models.Subscription)}
}

func (m *mockSubscriptionRepository) Upsert(ctx context.Context, sub *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.subs[sub.ProviderSubID]; ok {
		existing.TenantID = sub.TenantID
		existing.ProviderCustID = sub.ProviderCustID
		existing.Tier = sub.Tier
		existing.Status = sub.Status
		existing.UpdatedAt = sub.UpdatedAt
		return nil
	}
	cp := *sub
	m.subs[sub.ProviderSubID] = &cp
	return nil
}

func (m *mockSubscriptionRepository) GetByProviderSubID(ctx context.Context, providerSubID string) (*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.subs[providerSubID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (m *mockSubscriptionRepository) GetByTenantID(ctx context.Context, tenantID string) (*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subs {
		if s.TenantID == tenantID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockSubscriptionRepository) UpdateStatus(ctx context.Context, providerSubID string, status models.SubscriptionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subs[providerSubID]; ok {
		s.Status = status
		s.UpdatedAt = time.Now()
	}
	return nil
}
