package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/snapdock/snapdock-api/internal/models"
)

// SQLiteWebhookEventRepository implements WebhookEventRepository for
// SQLite. Dedup relies on the UNIQUE constraint on provider_event_id:
// insert first, treat the constraint violation as "already seen".
type SQLiteWebhookEventRepository struct {
	db *sql.DB
}

// NewSQLiteWebhookEventRepository creates a new SQLite webhook event repository.
func NewSQLiteWebhookEventRepository(db *sql.DB) *SQLiteWebhookEventRepository {
	return &SQLiteWebhookEventRepository{db: db}
}

func (r *SQLiteWebhookEventRepository) Insert(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	query := `
		INSERT INTO webhook_events (id, provider_event_id, event_type, payload, processed, processed_at, error, created_at)
		VALUES (?, ?, ?, ?, 0, NULL, NULL, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.ProviderEventID, event.EventType,
		nullString(event.Payload), event.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert webhook event: %w", err)
	}
	return true, nil
}

func (r *SQLiteWebhookEventRepository) MarkProcessed(ctx context.Context, providerEventID string, processErr string) error {
	query := `UPDATE webhook_events SET processed = 1, processed_at = ?, error = ? WHERE provider_event_id = ?`
	_, err := r.db.ExecContext(ctx, query,
		time.Now().Format(time.RFC3339), nullString(processErr), providerEventID)
	if err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	return nil
}

func (r *SQLiteWebhookEventRepository) GetByProviderEventID(ctx context.Context, providerEventID string) (*models.WebhookEvent, error) {
	query := `
		SELECT id, provider_event_id, event_type, payload, processed, processed_at, error, created_at
		FROM webhook_events WHERE provider_event_id = ?
	`
	var event models.WebhookEvent
	var payload, processedAt, eventError sql.NullString
	var processed int
	var createdAt string

	err := r.db.QueryRowContext(ctx, query, providerEventID).Scan(
		&event.ID, &event.ProviderEventID, &event.EventType, &payload,
		&processed, &processedAt, &eventError, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan webhook event: %w", err)
	}

	event.Payload = payload.String
	event.Processed = processed == 1
	event.Error = eventError.String
	event.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if processedAt.Valid {
		t, _ := time.Parse(time.RFC3339, processedAt.String)
		event.ProcessedAt = &t
	}
	return &event, nil
}

// isDuplicateKeyError checks if an error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
