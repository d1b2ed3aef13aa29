package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/snapdock/snapdock-api/internal/models"
)

const userColumns = `id, tenant_id, email, display_name, avatar_url, password_hash,
	last_login_at, created_at`

// SQLiteUserRepository implements UserRepository for SQLite. It also
// owns the oauth_links table since links never outlive their user.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewSQLiteUserRepository creates a new SQLite user repository.
func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *SQLiteUserRepository) GetByOAuth(ctx context.Context, provider, externalID string) (*models.User, error) {
	query := `
		SELECT u.id, u.tenant_id, u.email, u.display_name, u.avatar_url, u.password_hash,
			u.last_login_at, u.created_at
		FROM users u
		JOIN oauth_links l ON l.user_id = u.id
		WHERE l.provider = ? AND l.external_id = ?
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, provider, externalID))
}

// CreateWithTenant provisions a new account: tenant row, first user,
// and the oauth link when sign-up came through a provider. All three
// inserts share one transaction.
func (r *SQLiteUserRepository) CreateWithTenant(ctx context.Context, tenant *models.Tenant, user *models.User, link *models.OAuthLink) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	isActive := 0
	if tenant.IsActive {
		isActive = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.TenantID,
		user.Email,
		nullString(user.DisplayName),
		nullString(user.AvatarURL),
		nullString(user.PasswordHash),
		nullTime(user.LastLoginAt),
		user.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	if link != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO oauth_links (id, user_id, provider, external_id, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			link.ID, link.UserID, link.Provider, link.ExternalID,
			link.CreatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to create oauth link: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteUserRepository) CreateOAuthLink(ctx context.Context, link *models.OAuthLink) error {
	query := `INSERT INTO oauth_links (id, user_id, provider, external_id, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		link.ID, link.UserID, link.Provider, link.ExternalID,
		link.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create oauth link: %w", err)
	}
	return nil
}

func (r *SQLiteUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET last_login_at = ? WHERE id = ?", at.Format(time.RFC3339), id)
	return err
}

func (r *SQLiteUserRepository) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	var displayName, avatarURL, passwordHash, lastLoginAt sql.NullString
	var createdAt string

	err := row.Scan(
		&user.ID, &user.TenantID, &user.Email, &displayName, &avatarURL, &passwordHash,
		&lastLoginAt, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	user.DisplayName = displayName.String
	user.AvatarURL = avatarURL.String
	user.PasswordHash = passwordHash.String
	user.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if lastLoginAt.Valid {
		t, _ := time.Parse(time.RFC3339, lastLoginAt.String)
		user.LastLoginAt = &t
	}

	return &user, nil
}
