package service

import (
	"log/slog"

	"github.com/snapdock/snapdock-api/internal/browser"
	"github.com/snapdock/snapdock-api/internal/cache"
	appconfig "github.com/snapdock/snapdock-api/internal/config"
	"github.com/snapdock/snapdock-api/internal/repository"
)

// Services holds all service instances.
type Services struct {
	Storage *StorageService
	Auth    *AuthService
	APIKey  *APIKeyService
	Session *SessionService
	Usage   *UsageService
	Webhook *WebhookService
	Capture *CaptureService
	Billing *BillingService
	Cleanup *CleanupService
	Queues  *Queues
	Engine  *browser.Client
}

// NewServices creates all service instances.
func NewServices(cfg *appconfig.Config, repos *repository.Repositories, store *cache.Store, logger *slog.Logger) (*Services, error) {
	storage, err := NewStorageService(cfg, logger)
	if err != nil {
		return nil, err
	}

	webhooks, err := NewWebhookService(cfg.WebhookSigningKey, logger)
	if err != nil {
		return nil, err
	}

	engine := browser.NewClient(browser.ClientConfig{
		BaseURL: cfg.BrowserServiceURL,
		Secret:  cfg.BrowserSecret,
		Timeout: cfg.BrowserTimeout,
		Logger:  logger,
	})

	queues := NewQueues()
	usage := NewUsageService(repos, logger)
	capture := NewCaptureService(repos, storage, usage, webhooks, engine, queues, cfg, logger)

	return &Services{
		Storage: storage,
		Auth:    NewAuthService(repos, store, logger),
		APIKey:  NewAPIKeyService(repos, store, cfg.KeyEnvironment, logger),
		Session: NewSessionService(repos, store, cfg, logger),
		Usage:   usage,
		Webhook: webhooks,
		Capture: capture,
		Billing: NewBillingService(repos, logger),
		Cleanup: NewCleanupService(repos, storage, usage, queues, cfg, logger),
		Queues:  queues,
		Engine:  engine,
	}, nil
}
