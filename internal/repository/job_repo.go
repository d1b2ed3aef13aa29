package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/snapdock/snapdock-api/internal/constants"
	"github.com/snapdock/snapdock-api/internal/models"
	"github.com/snapdock/snapdock-api/internal/privacy"
)

const jobColumns = `id, tenant_id, kind, status, source_kind, source_url, format,
	options_json, storage_key, download_url, file_size, page_count, error,
	url_hash, url_domain, webhook_url, expires_at, created_at, completed_at`

// SQLiteJobRepository implements JobRepository for SQLite.
type SQLiteJobRepository struct {
	db *sql.DB
}

// NewSQLiteJobRepository creates a new SQLite job repository.
func NewSQLiteJobRepository(db *sql.DB) *SQLiteJobRepository {
	return &SQLiteJobRepository{db: db}
}

func (r *SQLiteJobRepository) Create(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.TenantID,
		job.Kind,
		job.Status,
		job.SourceKind,
		nullString(job.SourceURL),
		job.Format,
		nullString(privacy.StripOptions(job.OptionsJSON)),
		nullString(job.StorageKey),
		nullString(job.DownloadURL),
		job.FileSize,
		job.PageCount,
		nullString(job.Error),
		nullString(job.URLHash),
		nullString(job.URLDomain),
		nullString(job.WebhookURL),
		job.ExpiresAt.Format(time.RFC3339),
		job.CreatedAt.Format(time.RFC3339),
		nullTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *SQLiteJobRepository) GetByIDAndTenant(ctx context.Context, id, tenantID string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ? AND tenant_id = ?`
	return r.scanJob(r.db.QueryRowContext(ctx, query, id, tenantID))
}

func (r *SQLiteJobRepository) ListByTenant(ctx context.Context, tenantID string, params ListJobsParams) ([]*models.Job, int, error) {
	where := "tenant_id = ?"
	args := []interface{}{tenantID}
	if params.Status != "" {
		where += " AND status = ?"
		args = append(args, params.Status)
	}
	if params.Kind != "" {
		where += " AND kind = ?"
		args = append(args, params.Kind)
	}

	// sortBy/sortOrder are validated against fixed allow-lists before
	// they reach here; interpolation is safe.
	sortBy := params.SortBy
	if sortBy != "completed_at" {
		sortBy = "created_at"
	}
	sortOrder := "DESC"
	if params.SortOrder == "asc" {
		sortOrder = "ASC"
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	limit := params.Limit
	if limit <= 0 || limit > constants.MaxListLimit {
		limit = constants.MaxListLimit
	}
	page := params.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	query := fmt.Sprintf("SELECT %s FROM jobs WHERE %s ORDER BY %s %s LIMIT ? OFFSET ?",
		jobColumns, where, sortBy, sortOrder)
	rows, err := tx.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := r.scanJobFromRows(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating jobs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return jobs, total, nil
}

func (r *SQLiteJobRepository) DeleteByIDAndTenant(ctx context.Context, id, tenantID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ? AND tenant_id = ?", id, tenantID)
	if err != nil {
		return false, fmt.Errorf("failed to delete job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// MarkProcessing moves a job from PENDING to PROCESSING. A job already
// past PENDING is left untouched.
func (r *SQLiteJobRepository) MarkProcessing(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE jobs SET status = ? WHERE id = ? AND status = ?",
		models.JobStatusProcessing, id, models.JobStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	return nil
}

// MarkCompleted finalizes a PROCESSING job with its artifact metadata.
// Terminal states are never overwritten.
func (r *SQLiteJobRepository) MarkCompleted(ctx context.Context, id, downloadURL, storageKey string, fileSize int64, pageCount int) error {
	query := `
		UPDATE jobs
		SET status = ?, download_url = ?, storage_key = ?, file_size = ?, page_count = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		models.JobStatusCompleted,
		nullString(downloadURL),
		nullString(storageKey),
		fileSize,
		pageCount,
		time.Now().Format(time.RFC3339),
		id,
		models.JobStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	return nil
}

// MarkFailed fails a PENDING or PROCESSING job. The reason is truncated
// to the persisted error limit.
func (r *SQLiteJobRepository) MarkFailed(ctx context.Context, id, reason string) error {
	reason = truncateReason(reason, constants.MaxErrorLength)
	query := `
		UPDATE jobs
		SET status = ?, error = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		models.JobStatusFailed,
		nullString(reason),
		time.Now().Format(time.RFC3339),
		id,
		models.JobStatusPending,
		models.JobStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// truncateReason clips a failure reason to max bytes without splitting
// a UTF-8 sequence.
func truncateReason(reason string, max int) string {
	if len(reason) <= max {
		return reason
	}
	for max > 0 && !utf8.RuneStart(reason[max]) {
		max--
	}
	return reason[:max]
}

func (r *SQLiteJobRepository) FindPending(ctx context.Context, limit int) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = ? ORDER BY created_at ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, models.JobStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := r.scanJobFromRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CleanupExpired removes jobs whose expires_at has passed and returns
// their storage keys so the caller can prune the blobs.
func (r *SQLiteJobRepository) CleanupExpired(ctx context.Context, before time.Time) ([]ExpiredJob, error) {
	cutoff := before.Format(time.RFC3339)

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, storage_key FROM jobs WHERE expires_at < ?", cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired jobs: %w", err)
	}
	defer rows.Close()

	var expired []ExpiredJob
	for rows.Next() {
		var e ExpiredJob
		var storageKey sql.NullString
		if err := rows.Scan(&e.ID, &storageKey); err != nil {
			return nil, fmt.Errorf("failed to scan expired job: %w", err)
		}
		e.StorageKey = storageKey.String
		expired = append(expired, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired jobs: %w", err)
	}

	if len(expired) == 0 {
		return nil, nil
	}

	if _, err := r.db.ExecContext(ctx, "DELETE FROM jobs WHERE expires_at < ?", cutoff); err != nil {
		return nil, fmt.Errorf("failed to delete expired jobs: %w", err)
	}
	return expired, nil
}

// MarkStaleProcessingFailed fails jobs stuck in PROCESSING longer than
// maxAge. Used at startup to recover jobs orphaned by a restart.
func (r *SQLiteJobRepository) MarkStaleProcessingFailed(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Format(time.RFC3339)
	now := time.Now().Format(time.RFC3339)

	query := `
		UPDATE jobs
		SET status = ?, error = ?, completed_at = ?
		WHERE status = ? AND created_at < ?
	`
	result, err := r.db.ExecContext(ctx, query,
		models.JobStatusFailed,
		"Job terminated: server restart or timeout",
		now,
		models.JobStatusProcessing,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale jobs as failed: %w", err)
	}

	count, _ := result.RowsAffected()
	return count, nil
}

func (r *SQLiteJobRepository) scanJob(row *sql.Row) (*models.Job, error) {
	var job models.Job
	var expiresAt, createdAt string
	var sourceURL, optionsJSON, storageKey, downloadURL, jobError sql.NullString
	var urlHash, urlDomain, webhookURL, completedAt sql.NullString

	err := row.Scan(
		&job.ID, &job.TenantID, &job.Kind, &job.Status, &job.SourceKind, &sourceURL, &job.Format,
		&optionsJSON, &storageKey, &downloadURL, &job.FileSize, &job.PageCount, &jobError,
		&urlHash, &urlDomain, &webhookURL, &expiresAt, &createdAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.SourceURL = sourceURL.String
	job.OptionsJSON = optionsJSON.String
	job.StorageKey = storageKey.String
	job.DownloadURL = downloadURL.String
	job.Error = jobError.String
	job.URLHash = urlHash.String
	job.URLDomain = urlDomain.String
	job.WebhookURL = webhookURL.String
	job.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	job.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		job.CompletedAt = &t
	}

	return &job, nil
}

func (r *SQLiteJobRepository) scanJobFromRows(rows *sql.Rows) (*models.Job, error) {
	var job models.Job
	var expiresAt, createdAt string
	var sourceURL, optionsJSON, storageKey, downloadURL, jobError sql.NullString
	var urlHash, urlDomain, webhookURL, completedAt sql.NullString

	err := rows.Scan(
		&job.ID, &job.TenantID, &job.Kind, &job.Status, &job.SourceKind, &sourceURL, &job.Format,
		&optionsJSON, &storageKey, &downloadURL, &job.FileSize, &job.PageCount, &jobError,
		&urlHash, &urlDomain, &webhookURL, &expiresAt, &createdAt, &completedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.SourceURL = sourceURL.String
	job.OptionsJSON = optionsJSON.String
	job.StorageKey = storageKey.String
	job.DownloadURL = downloadURL.String
	job.Error = jobError.String
	job.URLHash = urlHash.String
	job.URLDomain = urlDomain.String
	job.WebhookURL = webhookURL.String
	job.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	job.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		job.CompletedAt = &t
	}

	return &job, nil
}

// Helper functions
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}
