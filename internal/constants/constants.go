// Package constants defines centralized configuration for tier limits,
// rate limits, and credit costs. Change values here to update limits
// across the entire application.
package constants

import "time"

// Tier names
const (
	TierFree       = "FREE"
	TierPro        = "PRO"
	TierBusiness   = "BUSINESS"
	TierEnterprise = "ENTERPRISE"
)

// TierLimits defines the numeric limits for a subscription tier.
type TierLimits struct {
	// MonthlyCredits is the credit budget per billing month.
	MonthlyCredits int
	// RateLimitPoints is the number of requests allowed per RateLimitWindow.
	RateLimitPoints int
	// RateLimitWindow is the sliding-window duration for the rate limit.
	RateLimitWindow time.Duration
}

// Tiers defines limits for each subscription tier.
// To change tier limits, modify this map.
var Tiers = map[string]TierLimits{
	TierFree: {
		MonthlyCredits:  250,
		RateLimitPoints: 100,
		RateLimitWindow: time.Hour,
	},
	TierPro: {
		MonthlyCredits:  5000,
		RateLimitPoints: 5000,
		RateLimitWindow: time.Hour,
	},
	TierBusiness: {
		MonthlyCredits:  25000,
		RateLimitPoints: 25000,
		RateLimitWindow: time.Hour,
	},
	TierEnterprise: {
		MonthlyCredits:  100000,
		RateLimitPoints: 100000,
		RateLimitWindow: time.Hour,
	},
}

// LimitsForTier returns the limits for a tier.
// Unknown tiers fall back to FREE semantics.
func LimitsForTier(tier string) TierLimits {
	if limits, ok := Tiers[tier]; ok {
		return limits
	}
	return Tiers[TierFree]
}

// Credit costs per event type.
const (
	CostScreenshot         = 1
	CostScreenshotFullPage = 2
	CostPDF                = 2
	CostPDFWithTemplate    = 3
)

// Unauthenticated IP rate limit.
const (
	IPRateLimitPoints   = 20
	IPRateLimitWindow   = 60 * time.Second
	IPRateLimitBlockout = 300 * time.Second
)

// Login brute-force limit, keyed by (ip, lowercased email).
const (
	LoginLimitPoints   = 5
	LoginLimitWindow   = 900 * time.Second
	LoginLimitBlockout = 1800 * time.Second
)

// TierRateLimitBlockout is how long a tenant stays blocked after
// exceeding its tier bucket.
const TierRateLimitBlockout = 60 * time.Second

// KeyCacheTTL is how long validated API key resolutions stay cached.
const KeyCacheTTL = time.Hour

// Request timeouts.
const (
	DefaultRequestTimeout = 30 * time.Second
	// CaptureRequestTimeout covers the synchronous render path, which
	// inherits the browser engine's 60s hard ceiling.
	CaptureRequestTimeout = 90 * time.Second
)

// StaleJobAge is how long a job may sit in PROCESSING before startup
// recovery marks it failed.
const StaleJobAge = time.Hour

// MaxErrorLength caps stored failure reasons. Raw stack traces are
// never persisted.
const MaxErrorLength = 500

// MaxListLimit caps page sizes on list endpoints.
const MaxListLimit = 100
