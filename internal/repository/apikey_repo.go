package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/snapdock/snapdock-api/internal/models"
)

const apiKeyColumns = `id, tenant_id, name, key_hash, key_prefix, is_active,
	last_used_at, created_at, revoked_at`

// SQLiteAPIKeyRepository implements APIKeyRepository for SQLite.
type SQLiteAPIKeyRepository struct {
	db *sql.DB
}

// NewSQLiteAPIKeyRepository creates a new SQLite API key repository.
func NewSQLiteAPIKeyRepository(db *sql.DB) *SQLiteAPIKeyRepository {
	return &SQLiteAPIKeyRepository{db: db}
}

func (r *SQLiteAPIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	query := `INSERT INTO api_keys (` + apiKeyColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	isActive := 0
	if key.IsActive {
		isActive = 1
	}
	_, err := r.db.ExecContext(ctx, query,
		key.ID, key.TenantID, key.Name, key.KeyHash, key.KeyPrefix, isActive,
		nullTime(key.LastUsedAt), key.CreatedAt.Format(time.RFC3339), nullTime(key.RevokedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

func (r *SQLiteAPIKeyRepository) GetByKeyHash(ctx context.Context, hash string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = ?`
	return r.scanAPIKey(r.db.QueryRowContext(ctx, query, hash))
}

func (r *SQLiteAPIKeyRepository) GetByTenantID(ctx context.Context, tenantID string) ([]*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE tenant_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		key, err := r.scanAPIKeyFromRows(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *SQLiteAPIKeyRepository) UpdateLastUsed(ctx context.Context, id string, lastUsed time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = ? WHERE id = ?", lastUsed.Format(time.RFC3339), id)
	return err
}

func (r *SQLiteAPIKeyRepository) Revoke(ctx context.Context, id, tenantID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE api_keys SET is_active = 0, revoked_at = ? WHERE id = ? AND tenant_id = ? AND is_active = 1",
		time.Now().Format(time.RFC3339), id, tenantID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to revoke api key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

func (r *SQLiteAPIKeyRepository) scanAPIKey(row *sql.Row) (*models.APIKey, error) {
	var key models.APIKey
	var isActive int
	var lastUsedAt, revokedAt sql.NullString
	var createdAt string

	err := row.Scan(&key.ID, &key.TenantID, &key.Name, &key.KeyHash, &key.KeyPrefix, &isActive,
		&lastUsedAt, &createdAt, &revokedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan api key: %w", err)
	}

	key.IsActive = isActive == 1
	key.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if lastUsedAt.Valid {
		t, _ := time.Parse(time.RFC3339, lastUsedAt.String)
		key.LastUsedAt = &t
	}
	if revokedAt.Valid {
		t, _ := time.Parse(time.RFC3339, revokedAt.String)
		key.RevokedAt = &t
	}
	return &key, nil
}

func (r *SQLiteAPIKeyRepository) scanAPIKeyFromRows(rows *sql.Rows) (*models.APIKey, error) {
	var key models.APIKey
	var isActive int
	var lastUsedAt, revokedAt sql.NullString
	var createdAt string

	if err := rows.Scan(&key.ID, &key.TenantID, &key.Name, &key.KeyHash, &key.KeyPrefix, &isActive,
		&lastUsedAt, &createdAt, &revokedAt); err != nil {
		return nil, fmt.Errorf("failed to scan api key: %w", err)
	}

	key.IsActive = isActive == 1
	key.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if lastUsedAt.Valid {
		t, _ := time.Parse(time.RFC3339, lastUsedAt.String)
		key.LastUsedAt = &t
	}
	if revokedAt.Valid {
		t, _ := time.Parse(time.RFC3339, revokedAt.String)
		key.RevokedAt = &t
	}
	return &key, nil
}
