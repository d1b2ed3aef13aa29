package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/snapdock/snapdock-api/internal/models"
)

const subscriptionColumns = `id, tenant_id, provider_sub_id, provider_cust_id, tier, status,
	created_at, updated_at`

// SQLiteSubscriptionRepository implements SubscriptionRepository for SQLite.
type SQLiteSubscriptionRepository struct {
	db *sql.DB
}

// NewSQLiteSubscriptionRepository creates a new SQLite subscription repository.
func NewSQLiteSubscriptionRepository(db *sql.DB) *SQLiteSubscriptionRepository {
	return &SQLiteSubscriptionRepository{db: db}
}

func (r *SQLiteSubscriptionRepository) Upsert(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider_sub_id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			provider_cust_id = excluded.provider_cust_id,
			tier = excluded.tier,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		sub.ID, sub.TenantID, sub.ProviderSubID, nullString(sub.ProviderCustID),
		sub.Tier, sub.Status,
		sub.CreatedAt.Format(time.RFC3339), sub.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

func (r *SQLiteSubscriptionRepository) GetByProviderSubID(ctx context.Context, providerSubID string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE provider_sub_id = ?`
	return r.scanSubscription(r.db.QueryRowContext(ctx, query, providerSubID))
}

func (r *SQLiteSubscriptionRepository) GetByTenantID(ctx context.Context, tenantID string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE tenant_id = ? ORDER BY created_at DESC LIMIT 1`
	return r.scanSubscription(r.db.QueryRowContext(ctx, query, tenantID))
}

func (r *SQLiteSubscriptionRepository) UpdateStatus(ctx context.Context, providerSubID string, status models.SubscriptionStatus) error {
	query := `UPDATE subscriptions SET status = ?, updated_at = ? WHERE provider_sub_id = ?`
	_, err := r.db.ExecContext(ctx, query, status, time.Now().Format(time.RFC3339), providerSubID)
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	return nil
}

func (r *SQLiteSubscriptionRepository) scanSubscription(row *sql.Row) (*models.Subscription, error) {
	var sub models.Subscription
	var providerCustID sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&sub.ID, &sub.TenantID, &sub.ProviderSubID, &providerCustID,
		&sub.Tier, &sub.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}

	sub.ProviderCustID = providerCustID.String
	sub.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sub.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &sub, nil
}
