// Package cache wraps the shared Redis store used for the validated-key
// cache and the sliding-window rate limiters. All operations degrade
// gracefully when Redis is unavailable: rate limits fail open, cache
// reads fall through to the database.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/snapdock/snapdock-api/internal/constants"
	"github.com/snapdock/snapdock-api/internal/models"
)

// Store is the shared key-value store client.
type Store struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New creates a cache store from a Redis URL. An empty URL returns a
// disabled store where every operation is a no-op.
func New(redisURL string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cache")

	if redisURL == "" {
		logger.Info("cache store disabled - no REDIS_URL configured")
		return &Store{logger: logger}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	return &Store{
		rdb:    redis.NewClient(opts),
		logger: logger,
	}, nil
}

// Enabled returns whether the store has a backing Redis connection.
func (s *Store) Enabled() bool {
	return s.rdb != nil
}

// Ping checks connectivity to the backing store.
func (s *Store) Ping(ctx context.Context) error {
	if s.rdb == nil {
		return fmt.Errorf("cache store is disabled")
	}
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Key-space helpers. Keys follow the fixed layout:
//
//	key:{digest}           validated key cache
//	rl:{tier}:{tenant_id}  tier rate limit counter
//	rl:ip:{addr}           unauthenticated IP limit counter
//	login:{ip}:{email}     login brute-force counter
func keyCacheKey(digest string) string   { return "key:" + digest }
func TierLimitKey(tier models.Tier, tenantID string) string {
	return fmt.Sprintf("rl:%s:%s", tier, tenantID)
}
func IPLimitKey(addr string) string { return "rl:ip:" + addr }
func LoginLimitKey(ip, email string) string {
	return fmt.Sprintf("login:%s:%s", ip, strings.ToLower(email))
}

// GetKeyIdentity returns a cached credential resolution by digest.
// A miss or any Redis error returns (nil, false) so the caller falls
// through to a direct lookup.
func (s *Store) GetKeyIdentity(ctx context.Context, digest string) (*models.KeyIdentity, bool) {
	if s.rdb == nil {
		return nil, false
	}

	data, err := s.rdb.Get(ctx, keyCacheKey(digest)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("key cache read failed", "error", err)
		}
		return nil, false
	}

	var identity models.KeyIdentity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, false
	}
	return &identity, true
}

// SetKeyIdentity caches a credential resolution with the standard TTL.
// Failures are logged and swallowed.
func (s *Store) SetKeyIdentity(ctx context.Context, digest string, identity *models.KeyIdentity) {
	if s.rdb == nil {
		return
	}

	data, err := json.Marshal(identity)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, keyCacheKey(digest), data, constants.KeyCacheTTL).Err(); err != nil {
		s.logger.Warn("key cache write failed", "error", err)
	}
}

// InvalidateKey removes a cached resolution, e.g. on revocation.
func (s *Store) InvalidateKey(ctx context.Context, digest string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, keyCacheKey(digest)).Err(); err != nil {
		s.logger.Warn("key cache invalidation failed", "error", err)
	}
}
