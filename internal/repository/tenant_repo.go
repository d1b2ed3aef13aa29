package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/snapdock/snapdock-api/internal/models"
)

const tenantColumns = `id, email, tier, monthly_credits, used_credits, last_reset_at,
	is_active, webhook_url, created_at, updated_at`

// SQLiteTenantRepository implements TenantRepository for SQLite.
type SQLiteTenantRepository struct {
	db *sql.DB
}

// NewSQLiteTenantRepository creates a new SQLite tenant repository.
func NewSQLiteTenantRepository(db *sql.DB) *SQLiteTenantRepository {
	return &SQLiteTenantRepository{db: db}
}

func (r *SQLiteTenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	query := `
		INSERT INTO tenants (` + tenantColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	isActive := 0
	if tenant.IsActive {
		isActive = 1
	}
	_, err := r.db.ExecContext(ctx, query,
		tenant.ID,
		tenant.Email,
		tenant.Tier,
		tenant.MonthlyCredits,
		tenant.UsedCredits,
		tenant.LastResetAt.Format(time.RFC3339),
		isActive,
		nullString(tenant.WebhookURL),
		tenant.CreatedAt.Format(time.RFC3339),
		tenant.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

func (r *SQLiteTenantRepository) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = ?`
	return r.scanTenant(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteTenantRepository) GetByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE email = ?`
	return r.scanTenant(r.db.QueryRowContext(ctx, query, email))
}

func (r *SQLiteTenantRepository) Update(ctx context.Context, tenant *models.Tenant) error {
	query := `
		UPDATE tenants
		SET email = ?, tier = ?, monthly_credits = ?, used_credits = ?, last_reset_at = ?,
			is_active = ?, webhook_url = ?, updated_at = ?
		WHERE id = ?
	`
	isActive := 0
	if tenant.IsActive {
		isActive = 1
	}
	_, err := r.db.ExecContext(ctx, query,
		tenant.Email,
		tenant.Tier,
		tenant.MonthlyCredits,
		tenant.UsedCredits,
		tenant.LastResetAt.Format(time.RFC3339),
		isActive,
		nullString(tenant.WebhookURL),
		time.Now().Format(time.RFC3339),
		tenant.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	return nil
}

// SetTier moves a tenant onto a new tier with a fresh credit period.
func (r *SQLiteTenantRepository) SetTier(ctx context.Context, tenantID string, tier models.Tier, monthlyCredits int, at time.Time) error {
	query := `
		UPDATE tenants
		SET tier = ?, monthly_credits = ?, used_credits = 0, last_reset_at = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		tier,
		monthlyCredits,
		at.Format(time.RFC3339),
		time.Now().Format(time.RFC3339),
		tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to set tenant tier: %w", err)
	}
	return nil
}

func (r *SQLiteTenantRepository) ResetPeriod(ctx context.Context, tenantID string, at time.Time) error {
	query := `UPDATE tenants SET used_credits = 0, last_reset_at = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query,
		at.Format(time.RFC3339),
		time.Now().Format(time.RFC3339),
		tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to reset tenant period: %w", err)
	}
	return nil
}

func (r *SQLiteTenantRepository) ResetExpiredPeriods(ctx context.Context, before time.Time, at time.Time) (int64, error) {
	query := `UPDATE tenants SET used_credits = 0, last_reset_at = ?, updated_at = ? WHERE last_reset_at < ?`
	result, err := r.db.ExecContext(ctx, query,
		at.Format(time.RFC3339),
		time.Now().Format(time.RFC3339),
		before.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset expired periods: %w", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

func (r *SQLiteTenantRepository) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE tenants SET is_active = 0, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, time.Now().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate tenant: %w", err)
	}
	return nil
}

func (r *SQLiteTenantRepository) scanTenant(row *sql.Row) (*models.Tenant, error) {
	var tenant models.Tenant
	var lastResetAt, createdAt, updatedAt string
	var isActive int
	var webhookURL sql.NullString

	err := row.Scan(
		&tenant.ID, &tenant.Email, &tenant.Tier, &tenant.MonthlyCredits, &tenant.UsedCredits,
		&lastResetAt, &isActive, &webhookURL, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}

	tenant.IsActive = isActive == 1
	tenant.WebhookURL = webhookURL.String
	tenant.LastResetAt, _ = time.Parse(time.RFC3339, lastResetAt)
	tenant.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	tenant.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &tenant, nil
}
