package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/snapdock/snapdock-api/internal/models"
)

// SQLiteUsageRepository implements UsageRepository for SQLite.
type SQLiteUsageRepository struct {
	db *sql.DB
}

// NewSQLiteUsageRepository creates a new SQLite usage repository.
func NewSQLiteUsageRepository(db *sql.DB) *SQLiteUsageRepository {
	return &SQLiteUsageRepository{db: db}
}

// DebitCredits records the usage event and increments the tenant's
// used_credits in one transaction so the ledger and the counter can
// never disagree.
func (r *SQLiteUsageRepository) DebitCredits(ctx context.Context, event *models.UsageEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_events (id, tenant_id, event_type, credits, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.TenantID, event.EventType, event.Credits,
		nullString(event.MetadataJSON), event.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create usage event: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE tenants SET used_credits = used_credits + ?, updated_at = ? WHERE id = ?",
		event.Credits, time.Now().Format(time.RFC3339), event.TenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to debit tenant credits: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteUsageRepository) ListByTenant(ctx context.Context, tenantID string, since time.Time, limit int) ([]*models.UsageEvent, error) {
	query := `
		SELECT id, tenant_id, event_type, credits, metadata_json, created_at
		FROM usage_events WHERE tenant_id = ? AND created_at >= ?
		ORDER BY created_at DESC LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, since.Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage events: %w", err)
	}
	defer rows.Close()

	var events []*models.UsageEvent
	for rows.Next() {
		var event models.UsageEvent
		var metadataJSON sql.NullString
		var createdAt string
		if err := rows.Scan(&event.ID, &event.TenantID, &event.EventType, &event.Credits,
			&metadataJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage event: %w", err)
		}
		event.MetadataJSON = metadataJSON.String
		event.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		events = append(events, &event)
	}
	return events, rows.Err()
}

func (r *SQLiteUsageRepository) SummarySince(ctx context.Context, tenantID string, since time.Time) (*UsageSummary, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(credits), 0)
		FROM usage_events WHERE tenant_id = ? AND created_at >= ?
	`
	var summary UsageSummary
	err := r.db.QueryRowContext(ctx, query, tenantID, since.Format(time.RFC3339)).
		Scan(&summary.TotalEvents, &summary.TotalCredits)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}
	return &summary, nil
}
