package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/snapdock/snapdock-api/internal/cache"
	"github.com/snapdock/snapdock-api/internal/constants"
	"github.com/snapdock/snapdock-api/internal/models"
	"github.com/snapdock/snapdock-api/internal/repository"
)

// Credential validation failures. Handlers map these onto the error
// taxonomy (INVALID_API_KEY vs REVOKED_API_KEY).
var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrRevokedKey = errors.New("api key revoked")
)

var keyFormatRe = regexp.MustCompile(`^sk_(live|test)_[0-9a-f]{64}$`)

// AuthService resolves API credentials to tenant identities.
type AuthService struct {
	repos  *repository.Repositories
	cache  *cache.Store
	logger *slog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(repos *repository.Repositories, store *cache.Store, logger *slog.Logger) *AuthService {
	return &AuthService{
		repos:  repos,
		cache:  store,
		logger: logger,
	}
}

// ValidateAPIKey resolves a raw key to its identity. Well-formed keys
// are hashed and looked up in the cache first; on a miss the database
// is consulted and the resolution cached. Revoked keys and deactivated
// tenants fail closed regardless of cache state.
func (s *AuthService) ValidateAPIKey(ctx context.Context, rawKey string) (*models.KeyIdentity, error) {
	if !keyFormatRe.MatchString(rawKey) {
		return nil, ErrInvalidKey
	}

	hash := sha256.Sum256([]byte(rawKey))
	digest := hex.EncodeToString(hash[:])

	if identity, ok := s.cache.GetKeyIdentity(ctx, digest); ok {
		if !identity.IsActive {
			return nil, ErrRevokedKey
		}
		s.touchLastUsed(identity.KeyID)
		return identity, nil
	}

	key, err := s.repos.APIKey.GetByKeyHash(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to look up key: %w", err)
	}
	if key == nil {
		return nil, ErrInvalidKey
	}
	if !key.IsActive {
		return nil, ErrRevokedKey
	}

	tenant, err := s.repos.Tenant.GetByID(ctx, key.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	if tenant == nil || !tenant.IsActive {
		return nil, ErrRevokedKey
	}

	identity := &models.KeyIdentity{
		KeyID:          key.ID,
		TenantID:       tenant.ID,
		Tier:           tenant.Tier,
		MonthlyCredits: tenant.MonthlyCredits,
		UsedCredits:    tenant.UsedCredits,
		IsActive:       true,
	}
	s.cache.SetKeyIdentity(ctx, digest, identity)
	s.touchLastUsed(key.ID)

	return identity, nil
}

// TenantByID loads a tenant for the session and gateway auth paths.
func (s *AuthService) TenantByID(ctx context.Context, tenantID string) (*models.Tenant, error) {
	tenant, err := s.repos.Tenant.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	return tenant, nil
}

// ResolveGatewayTenant maps a trusted-gateway subscriber to a local
// tenant, creating one on first sight. The gateway is authoritative
// for the tier, so a changed subscription updates the tenant.
func (s *AuthService) ResolveGatewayTenant(ctx context.Context, gatewayUser string, tier models.Tier) (*models.Tenant, error) {
	email := gatewayUser + "@gateway.rapidapi.com"

	tenant, err := s.repos.Tenant.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up gateway tenant: %w", err)
	}
	if tenant != nil {
		if tenant.Tier != tier {
			limits := constants.LimitsForTier(string(tier))
			if err := s.repos.Tenant.SetTier(ctx, tenant.ID, tier, limits.MonthlyCredits, time.Now()); err != nil {
				return nil, fmt.Errorf("failed to update gateway tier: %w", err)
			}
			tenant.Tier = tier
			tenant.MonthlyCredits = limits.MonthlyCredits
			tenant.UsedCredits = 0
		}
		return tenant, nil
	}

	now := time.Now()
	limits := constants.LimitsForTier(string(tier))
	tenant = &models.Tenant{
		ID:             uuid.NewString(),
		Email:          email,
		Tier:           tier,
		MonthlyCredits: limits.MonthlyCredits,
		LastResetAt:    now,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repos.Tenant.Create(ctx, tenant); err != nil {
		return nil, fmt.Errorf("failed to create gateway tenant: %w", err)
	}

	s.logger.Info("provisioned gateway tenant", "tenant_id", tenant.ID, "tier", tier)
	return tenant, nil
}

// touchLastUsed records key usage without blocking the request path.
func (s *AuthService) touchLastUsed(keyID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repos.APIKey.UpdateLastUsed(ctx, keyID, time.Now()); err != nil {
			s.logger.Warn("failed to update key last_used_at", "key_id", keyID, "error", err)
		}
	}()
}
