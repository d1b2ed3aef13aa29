// Package main is the entry point for the snapdock-api server: the
// control plane for screenshot and PDF rendering. Browser execution
// lives in a separate engine service; this process owns auth, quotas,
// job records, queues, and artifact storage.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/snapdock/snapdock-api/internal/cache"
	"github.com/snapdock/snapdock-api/internal/config"
	"github.com/snapdock/snapdock-api/internal/constants"
	"github.com/snapdock/snapdock-api/internal/database"
	"github.com/snapdock/snapdock-api/internal/http/handlers"
	"github.com/snapdock/snapdock-api/internal/http/mw"
	"github.com/snapdock/snapdock-api/internal/logging"
	"github.com/snapdock/snapdock-api/internal/repository"
	"github.com/snapdock/snapdock-api/internal/service"
	"github.com/snapdock/snapdock-api/internal/version"
	"github.com/snapdock/snapdock-api/internal/worker"
)

func main() {
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting snapdock-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	schemaVersion, err := database.GetLatestSchemaVersion(db)
	if err != nil {
		logger.Warn("failed to get schema version", "error", err)
	} else if schemaVersion != "" {
		migrationCount, _ := database.GetMigrationCount(db)
		logger.Info("database schema ready", "schema_version", schemaVersion, "migrations_applied", migrationCount)
	}

	// Redis is optional: without it, key-resolution caching and
	// distributed rate limits are skipped and requests pass through.
	store, err := cache.New(cfg.RedisURL, logger)
	if err != nil {
		logger.Warn("cache unavailable, continuing without it", "error", err)
		store, _ = cache.New("", logger)
	}
	defer func() { _ = store.Close() }()

	repos := repository.NewRepositories(db)

	// Jobs stuck in PROCESSING from a previous run will never finish;
	// fail them so clients stop polling.
	staleCount, err := repos.Job.MarkStaleProcessingFailed(context.Background(), constants.StaleJobAge)
	if err != nil {
		logger.Warn("failed to clean up stale jobs", "error", err)
	} else if staleCount > 0 {
		logger.Info("failed stale processing jobs", "count", staleCount)
	}

	services, err := service.NewServices(cfg, repos, store, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	renderWorker := worker.New(services.Capture, services.Queues, worker.Config{
		Concurrency:   cfg.WorkerConcurrency,
		ShutdownGrace: cfg.WorkerShutdownGrace,
	}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	renderWorker.Start(ctx)

	if cfg.CleanupEnabled {
		go services.Cleanup.Start(ctx)
		logger.Info("cleanup service started", "interval", cfg.CleanupInterval.String())
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(mw.APIVersion())
	// Sync captures wait on a real browser render; everything else gets
	// the default deadline.
	router.Use(mw.Timeout(mw.TimeoutConfig{
		Default:          constants.DefaultRequestTimeout,
		Extended:         constants.CaptureRequestTimeout,
		ExtendedPatterns: []string{"/v1/screenshots", "/v1/pdfs"},
	}))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit (1MB). PDF html payloads are validated to a
	// tighter budget in the request validator.
	router.Use(middleware.RequestSize(1 * 1024 * 1024))

	// Coarse per-IP fallback limit; authenticated traffic gets
	// tier-based limits later in the chain.
	router.Use(httprate.LimitByIP(100, time.Minute))
	router.Use(middleware.Throttle(100))

	// Hidden config for K8s probes.
	hiddenConfig := huma.DefaultConfig("Snapdock API", "1.0.0")
	hiddenConfig.DocsPath = ""
	hiddenConfig.OpenAPIPath = ""
	hiddenConfig.SchemasPath = ""
	hiddenAPI := humachi.New(router, hiddenConfig)

	// Dashboard huma routes. The capture surface is documented in the
	// published spec, so no docs endpoint is mounted here either.
	protectedConfig := huma.DefaultConfig("Snapdock API", "1.0.0")
	protectedConfig.Info.Description = "Screenshot and PDF rendering API."
	protectedConfig.Servers = []*huma.Server{
		{URL: cfg.BaseURL, Description: "API Server"},
	}
	protectedConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearerAuth": {
			Type:        "http",
			Scheme:      "bearer",
			Description: "API key authentication. Include your API key in the Authorization header as `Bearer sk_live_your_key`.",
		},
	}
	protectedConfig.DocsPath = ""
	protectedConfig.OpenAPIPath = ""
	protectedConfig.SchemasPath = ""

	huma.Get(hiddenAPI, "/healthz", handlers.Livez)
	readyzHandler := handlers.NewReadyzHandler(db)
	huma.Get(hiddenAPI, "/readyz", readyzHandler.Readyz)

	healthHandler := handlers.NewHealthHandler(db, store, services, logger)
	router.Get("/health", healthHandler.Health)

	authHandler := handlers.NewAuthHandler(services, cfg, logger)
	oauthHandler := handlers.NewOAuthHandler(services, cfg, authHandler, logger)

	// Login and OAuth are credential-free entry points; they carry the
	// IP limiter instead of the auth chain.
	router.Group(func(r chi.Router) {
		r.Use(mw.IPRateLimit(store))

		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/oauth/{provider}", oauthHandler.Start)
		r.Get("/auth/oauth/{provider}/callback", oauthHandler.Callback)
	})

	if cfg.StripeWebhookSecret != "" {
		stripeWebhook := handlers.NewStripeWebhookHandler(cfg, services.Billing, logger)
		router.Post("/webhooks/stripe", stripeWebhook.HandleWebhook)
		logger.Info("stripe webhook endpoint enabled")
	}

	// Capture surface: API keys, gateway headers, or session cookies.
	captureHandler := handlers.NewCaptureHandler(services, logger)
	router.Group(func(r chi.Router) {
		r.Use(mw.Auth(cfg, services))
		r.Use(mw.TierRateLimit(store))
		r.Use(mw.CSRF())

		r.Group(func(create chi.Router) {
			create.Use(mw.QuotaPrecheck(services.Usage))
			create.Post("/v1/screenshots", captureHandler.CreateScreenshot)
			create.Post("/v1/pdfs", captureHandler.CreatePDF)
		})

		r.Get("/v1/screenshots", captureHandler.ListScreenshots)
		r.Get("/v1/screenshots/{id}", captureHandler.GetScreenshot)
		r.Get("/v1/screenshots/{id}/download", captureHandler.DownloadScreenshot)
		r.Delete("/v1/screenshots/{id}", captureHandler.DeleteScreenshot)

		r.Get("/v1/pdfs", captureHandler.ListPDFs)
		r.Get("/v1/pdfs/{id}", captureHandler.GetPDF)
		r.Get("/v1/pdfs/{id}/download", captureHandler.DownloadPDF)
		r.Delete("/v1/pdfs/{id}", captureHandler.DeletePDF)

		r.Get("/auth/csrf-token", authHandler.CSRFToken)
		r.Get("/auth/sessions", authHandler.ListSessions)
		r.Delete("/auth/sessions/{id}", authHandler.RevokeSession)

		// Dashboard endpoints are huma operations on the same group.
		protectedAPI := humachi.New(r, protectedConfig)
		keysHandler := handlers.NewKeysHandler(services.APIKey)
		huma.Get(protectedAPI, "/v1/keys", keysHandler.ListKeys)
		huma.Post(protectedAPI, "/v1/keys", keysHandler.CreateKey)
		huma.Delete(protectedAPI, "/v1/keys/{id}", keysHandler.RevokeKey)
		huma.Get(protectedAPI, "/v1/usage", handlers.NewUsageHandler(services.Usage).GetUsage)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down server")

		cancel()
		renderWorker.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL, "gateway_enabled", cfg.GatewayEnabled)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
