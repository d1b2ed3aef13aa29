package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/snapdock/snapdock-api/internal/cache"
	"github.com/snapdock/snapdock-api/internal/models"
	"github.com/snapdock/snapdock-api/internal/repository"
)

// ErrKeyNotFound is returned when a key does not exist or belongs to
// another tenant.
var ErrKeyNotFound = errors.New("key not found")

// APIKeyService handles API key operations.
type APIKeyService struct {
	repos  *repository.Repositories
	cache  *cache.Store
	keyEnv string // "live" or "test"
	logger *slog.Logger
}

// NewAPIKeyService creates a new API key service.
func NewAPIKeyService(repos *repository.Repositories, store *cache.Store, keyEnv string, logger *slog.Logger) *APIKeyService {
	return &APIKeyService{
		repos:  repos,
		cache:  store,
		keyEnv: keyEnv,
		logger: logger,
	}
}

// CreateKeyInput represents input for creating an API key.
type CreateKeyInput struct {
	Name string `json:"name"`
}

// CreateKeyOutput represents output from creating an API key.
type CreateKeyOutput struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"` // Only returned on creation
	KeyPrefix string    `json:"key_prefix"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateKey creates a new API key. The raw secret is sk_{env}_{64hex}
// and is returned exactly once; only its SHA-256 digest is stored.
func (s *APIKeyService) CreateKey(ctx context.Context, tenantID string, input CreateKeyInput) (*CreateKeyOutput, error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	secret := hex.EncodeToString(keyBytes)
	key := fmt.Sprintf("sk_%s_%s", s.keyEnv, secret)
	keyPrefix := secret[:8]

	hash := sha256.Sum256([]byte(key))
	keyHash := hex.EncodeToString(hash[:])

	name := input.Name
	if name == "" {
		name = "default"
	}

	now := time.Now()
	apiKey := &models.APIKey{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      name,
		KeyHash:   keyHash,
		KeyPrefix: keyPrefix,
		IsActive:  true,
		CreatedAt: now,
	}

	if err := s.repos.APIKey.Create(ctx, apiKey); err != nil {
		return nil, fmt.Errorf("failed to create API key: %w", err)
	}

	return &CreateKeyOutput{
		ID:        apiKey.ID,
		Name:      apiKey.Name,
		Key:       key, // Only returned here
		KeyPrefix: keyPrefix,
		CreatedAt: now,
	}, nil
}

// ListKeys lists API keys for a tenant (without the actual secret).
func (s *APIKeyService) ListKeys(ctx context.Context, tenantID string) ([]*models.APIKey, error) {
	return s.repos.APIKey.GetByTenantID(ctx, tenantID)
}

// RevokeKey revokes an API key and evicts its cached resolution so the
// revocation takes effect immediately, not after the cache TTL.
func (s *APIKeyService) RevokeKey(ctx context.Context, tenantID, keyID string) error {
	keys, err := s.repos.APIKey.GetByTenantID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	var target *models.APIKey
	for _, key := range keys {
		if key.ID == keyID {
			target = key
			break
		}
	}
	if target == nil {
		return ErrKeyNotFound
	}

	revoked, err := s.repos.APIKey.Revoke(ctx, keyID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to revoke key: %w", err)
	}
	if !revoked {
		return ErrKeyNotFound
	}

	s.cache.InvalidateKey(ctx, target.KeyHash)
	s.logger.Info("api key revoked", "tenant_id", tenantID, "key_id", keyID)
	return nil
}
