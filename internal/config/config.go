// Package config handles application configuration.
package config

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// KeyEnvironment selects the API key prefix: sk_live_ or sk_test_.
	KeyEnvironment string

	// Database
	DatabaseURL string

	// Cache / rate-limit store (Redis)
	RedisURL string

	// Application secret. The webhook signing key and CSRF cookie key are
	// derived from it with HKDF.
	AppSecret         string
	WebhookSigningKey []byte // 32-byte key for outgoing webhook signatures

	// Sessions
	SessionTTL      time.Duration // default 7 days
	SessionCookie   string        // cookie name
	CSRFCookie      string        // CSRF double-submit cookie name
	SecureCookies   bool          // Secure attribute on cookies
	SessionExtendIn time.Duration // extend when expiry is closer than this

	// OAuth providers
	OAuthGoogleClientID     string
	OAuthGoogleClientSecret string
	OAuthGitHubClientID     string
	OAuthGitHubClientSecret string
	OAuthRedirectBase       string

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string

	// Gateway mode (trusted reverse proxy supplies tenant identity)
	GatewayEnabled     bool
	GatewayProxySecret string

	// Browser engine (internal rendering service)
	BrowserServiceURL string
	BrowserSecret     string
	BrowserTimeout    time.Duration

	// CORS
	CORSOrigins []string

	// Object Storage (S3-compatible)
	StorageEnabled   bool
	StorageEndpoint  string // AWS_ENDPOINT_URL_S3 for Tigris/MinIO
	StorageAccessKey string // AWS_ACCESS_KEY_ID
	StorageSecretKey string // AWS_SECRET_ACCESS_KEY
	StorageBucket    string
	StorageRegion    string

	// Job retention / cleanup
	JobRetention    time.Duration // expires_at horizon for new jobs (default 24h)
	CleanupEnabled  bool
	CleanupInterval time.Duration

	// Worker
	WorkerConcurrency       int
	WorkerShutdownGrace     time.Duration
	QueueCompletedRetention time.Duration // how long finished queue entries stay inspectable
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:snapdock.db?_journal=WAL&_timeout=5000"),
		RedisURL:    getEnv("REDIS_URL", ""),
		AppSecret:   getEnv("APP_SECRET", ""),

		KeyEnvironment: getEnv("KEY_ENVIRONMENT", "live"),

		SessionTTL:      getEnvDuration("SESSION_TTL", 7*24*time.Hour),
		SessionCookie:   getEnv("SESSION_COOKIE", "snapdock_session"),
		CSRFCookie:      getEnv("CSRF_COOKIE", "snapdock_csrf"),
		SecureCookies:   getEnvBool("SECURE_COOKIES", true),
		SessionExtendIn: getEnvDuration("SESSION_EXTEND_WINDOW", 24*time.Hour),

		OAuthGoogleClientID:     getEnv("OAUTH_GOOGLE_CLIENT_ID", ""),
		OAuthGoogleClientSecret: getEnv("OAUTH_GOOGLE_CLIENT_SECRET", ""),
		OAuthGitHubClientID:     getEnv("OAUTH_GITHUB_CLIENT_ID", ""),
		OAuthGitHubClientSecret: getEnv("OAUTH_GITHUB_CLIENT_SECRET", ""),
		OAuthRedirectBase:       getEnv("OAUTH_REDIRECT_BASE", ""),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		GatewayProxySecret: getEnv("GATEWAY_PROXY_SECRET", ""),

		BrowserServiceURL: getEnv("BROWSER_SERVICE_URL", ""),
		BrowserSecret:     getEnv("BROWSER_SECRET", ""),
		BrowserTimeout:    getEnvDuration("BROWSER_TIMEOUT", 60*time.Second),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		// S3-compatible object storage - uses the standard AWS env vars
		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnvWithFallback("BUCKET_NAME", "STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),
	}

	cfg.StorageEnabled = cfg.StorageBucket != ""
	cfg.GatewayEnabled = cfg.GatewayProxySecret != ""

	cfg.JobRetention = getEnvDuration("JOB_RETENTION", 24*time.Hour)
	cfg.CleanupEnabled = getEnvBool("CLEANUP_ENABLED", true)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 1*time.Hour)

	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", 3)
	cfg.WorkerShutdownGrace = getEnvDuration("WORKER_SHUTDOWN_GRACE_PERIOD", 5*time.Minute)
	cfg.QueueCompletedRetention = getEnvDuration("QUEUE_COMPLETED_RETENTION", 1*time.Hour)

	if cfg.AppSecret == "" {
		return nil, fmt.Errorf("APP_SECRET is required")
	}
	if cfg.KeyEnvironment != "live" && cfg.KeyEnvironment != "test" {
		return nil, fmt.Errorf("KEY_ENVIRONMENT must be live or test")
	}
	if cfg.BrowserServiceURL == "" {
		return nil, fmt.Errorf("BROWSER_SERVICE_URL is required")
	}

	cfg.WebhookSigningKey = deriveKey(cfg.AppSecret, "webhook-signing")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}

// deriveKey creates a 32-byte key from the app secret using HKDF.
// HKDF is appropriate for deriving keys from high-entropy secrets.
func deriveKey(secret, purpose string) []byte {
	salt := []byte("snapdock-api-key-v1")
	hkdfReader := hkdf.New(sha256.New, []byte(secret), salt, []byte(purpose))

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		// This should never happen with valid inputs
		panic("hkdf: failed to derive key: " + err.Error())
	}

	return key
}
