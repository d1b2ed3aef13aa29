package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/snapdock/snapdock-api/internal/models"
)

const sessionColumns = `id, user_id, token_hash, csrf_token, user_agent, ip_address,
	expires_at, created_at`

// SQLiteSessionRepository implements SessionRepository for SQLite.
type SQLiteSessionRepository struct {
	db *sql.DB
}

// NewSQLiteSessionRepository creates a new SQLite session repository.
func NewSQLiteSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

func (r *SQLiteSessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `INSERT INTO sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.TokenHash, session.CSRFToken,
		nullString(session.UserAgent), nullString(session.IPAddress),
		session.ExpiresAt.Format(time.RFC3339), session.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SQLiteSessionRepository) GetByTokenHash(ctx context.Context, hash string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token_hash = ?`
	return r.scanSession(r.db.QueryRowContext(ctx, query, hash))
}

func (r *SQLiteSessionRepository) GetByUserID(ctx context.Context, userID string) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		var session models.Session
		var userAgent, ipAddress sql.NullString
		var expiresAt, createdAt string
		if err := rows.Scan(&session.ID, &session.UserID, &session.TokenHash, &session.CSRFToken,
			&userAgent, &ipAddress, &expiresAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		session.UserAgent = userAgent.String
		session.IPAddress = ipAddress.String
		session.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
		session.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}

func (r *SQLiteSessionRepository) ExtendExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE sessions SET expires_at = ? WHERE id = ?",
		expiresAt.Format(time.RFC3339), id)
	return err
}

func (r *SQLiteSessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	return err
}

func (r *SQLiteSessionRepository) DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

func (r *SQLiteSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < ?", now.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

func (r *SQLiteSessionRepository) scanSession(row *sql.Row) (*models.Session, error) {
	var session models.Session
	var userAgent, ipAddress sql.NullString
	var expiresAt, createdAt string

	err := row.Scan(&session.ID, &session.UserID, &session.TokenHash, &session.CSRFToken,
		&userAgent, &ipAddress, &expiresAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	session.UserAgent = userAgent.String
	session.IPAddress = ipAddress.String
	session.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	session.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return &session, nil
}
