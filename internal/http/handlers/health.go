package handlers

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/snapdock/snapdock-api/internal/cache"
	"github.com/snapdock/snapdock-api/internal/http/respond"
	"github.com/snapdock/snapdock-api/internal/service"
	"github.com/snapdock/snapdock-api/internal/version"
)

// LivezOutput represents the liveness probe response.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Livez answers the liveness probe. It has no dependencies: if the
// process can serve it, the process is alive.
func Livez(ctx context.Context, input *struct{}) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// DBPinger is the slice of *sql.DB the readiness probe needs.
type DBPinger interface {
	Ping() error
}

// ReadyzHandler answers the readiness probe.
type ReadyzHandler struct {
	db DBPinger
}

// NewReadyzHandler creates a new readiness handler.
func NewReadyzHandler(db DBPinger) *ReadyzHandler {
	return &ReadyzHandler{db: db}
}

// ReadyzOutput represents the readiness probe response.
type ReadyzOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Readyz reports ready only when the database answers a ping.
func (h *ReadyzHandler) Readyz(ctx context.Context, input *struct{}) (*ReadyzOutput, error) {
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			return nil, huma.Error503ServiceUnavailable("database unavailable")
		}
	}
	out := &ReadyzOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// HealthHandler serves the public /health endpoint with per-dependency
// status.
type HealthHandler struct {
	db     *sql.DB
	store  *cache.Store
	svcs   *service.Services
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db *sql.DB, store *cache.Store, svcs *service.Services, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, store: store, svcs: svcs, logger: logger}
}

// Health handles GET /health. Database failure makes the service
// unhealthy; a missing cache, storage, or render engine only degrades
// it, since sync captures and auth still work.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	dbOK := h.db != nil && h.db.PingContext(ctx) == nil
	cacheOK := h.store != nil && h.store.Enabled() && h.store.Ping(ctx) == nil
	storageOK := h.svcs.Storage.IsEnabled()

	_, browserErr := h.svcs.Engine.Health(ctx)
	browserOK := browserErr == nil

	status := "healthy"
	switch {
	case !dbOK:
		status = "unhealthy"
	case !cacheOK || !storageOK || !browserOK:
		status = "degraded"
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}

	respond.JSON(w, r, code, map[string]any{
		"status":  status,
		"version": version.Get().Short(),
		"services": map[string]bool{
			"database": dbOK,
			"cache":    cacheOK,
			"storage":  storageOK,
			"browser":  browserOK,
		},
	})
}
