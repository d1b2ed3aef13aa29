package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/snapdock/snapdock-api/internal/database/migrations"
	_ "github.com/tursodatabase/go-libsql"
)

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Create in-memory database
	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	// Run migrations
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	// Clean up when test completes
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db := setupTestDB(t)
	return NewRepositories(db)
}

// InsertTestTenant is a helper to insert a test tenant directly.
func InsertTestTenant(t *testing.T, db *sql.DB, id, email, tier string, monthlyCredits, usedCredits int) {
	t.Helper()
	query := `
		INSERT INTO tenants (id, email, tier, monthly_credits, used_credits, last_reset_at, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
	`
	now := time.Now().Format(time.RFC3339)
	if _, err := db.Exec(query, id, email, tier, monthlyCredits, usedCredits, now, now, now); err != nil {
		t.Fatalf("failed to insert test tenant: %v", err)
	}
}

// InsertTestUser is a helper to insert a test user directly.
func InsertTestUser(t *testing.T, db *sql.DB, id, tenantID, email string) {
	t.Helper()
	query := `
		INSERT INTO users (id, tenant_id, email, created_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := db.Exec(query, id, tenantID, email, time.Now().Format(time.RFC3339)); err != nil {
		t.Fatalf("failed to insert test user: %v", err)
	}
}

// InsertTestJob is a helper to insert a test job directly.
func InsertTestJob(t *testing.T, db *sql.DB, id, tenantID, kind, status string) {
	t.Helper()
	query := `
		INSERT INTO jobs (id, tenant_id, kind, status, source_kind, source_url, format, file_size, page_count, expires_at, created_at)
		VALUES (?, ?, ?, ?, 'URL', 'https://example.com', 'png', 0, 0, ?, ?)
	`
	now := time.Now()
	if _, err := db.Exec(query, id, tenantID, kind, status,
		now.Add(24*time.Hour).Format(time.RFC3339), now.Format(time.RFC3339)); err != nil {
		t.Fatalf("failed to insert test job: %v", err)
	}
}

// InsertTestAPIKey is a helper to insert a test API key directly.
func InsertTestAPIKey(t *testing.T, db *sql.DB, id, tenantID, keyHash, keyPrefix string) {
	t.Helper()
	query := `
		INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, is_active, created_at)
		VALUES (?, ?, 'Test Key', ?, ?, 1, ?)
	`
	if _, err := db.Exec(query, id, tenantID, keyHash, keyPrefix, time.Now().Format(time.RFC3339)); err != nil {
		t.Fatalf("failed to insert test API key: %v", err)
	}
}
