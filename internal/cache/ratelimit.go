package cache

import (
	"context"
	"time"
)

// LimitResult describes the outcome of a rate-limit consume.
type LimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter int // seconds; 0 when allowed
	ResetAt    time.Time
}

// Allow consumes one point against a windowed counter. When the
// post-increment count exceeds the cap, the key is blocked for the
// blockout duration and subsequent calls are denied until it expires.
// Any Redis failure fails open.
func (s *Store) Allow(ctx context.Context, key string, points int, window, blockout time.Duration) LimitResult {
	allowed := LimitResult{
		Allowed:   true,
		Limit:     points,
		Remaining: points,
		ResetAt:   time.Now().Add(window),
	}
	if s.rdb == nil {
		return allowed
	}

	blockKey := key + ":block"

	// An active blockout denies immediately.
	blockTTL, err := s.rdb.TTL(ctx, blockKey).Result()
	if err != nil {
		s.logger.Warn("rate limit check failed, failing open", "key", key, "error", err)
		return allowed
	}
	if blockTTL > 0 {
		return LimitResult{
			Allowed:    false,
			Limit:      points,
			Remaining:  0,
			RetryAfter: int(blockTTL.Seconds()) + 1,
			ResetAt:    time.Now().Add(blockTTL),
		}
	}

	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		s.logger.Warn("rate limit increment failed, failing open", "key", key, "error", err)
		return allowed
	}
	if count == 1 {
		s.rdb.Expire(ctx, key, window)
	}

	windowTTL, err := s.rdb.TTL(ctx, key).Result()
	if err != nil || windowTTL < 0 {
		windowTTL = window
	}
	resetAt := time.Now().Add(windowTTL)

	if int(count) > points {
		// Exceeded: block further consumes for the blockout duration.
		s.rdb.SetNX(ctx, blockKey, 1, blockout)
		retryAfter := int(blockout.Seconds())
		if windowTTL < blockout {
			retryAfter = int(windowTTL.Seconds()) + 1
		}
		return LimitResult{
			Allowed:    false,
			Limit:      points,
			Remaining:  0,
			RetryAfter: retryAfter,
			ResetAt:    resetAt,
		}
	}

	return LimitResult{
		Allowed:   true,
		Limit:     points,
		Remaining: points - int(count),
		ResetAt:   resetAt,
	}
}

// Reset clears a counter and its blockout, e.g. after a successful
// login resets the brute-force limiter.
func (s *Store) Reset(ctx context.Context, key string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, key, key+":block").Err(); err != nil {
		s.logger.Warn("rate limit reset failed", "key", key, "error", err)
	}
}
