package repository

import (
	"context"
	"testing"
	"time"

	"github.com/snapdock/snapdock-api/internal/models"
)

func testSession(id, userID, tokenHash string, expiresAt time.Time) *models.Session {
	return &models.Session{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		CSRFToken: "csrf-" + id,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
}

func TestSessionCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteSessionRepository(db)
	ctx := context.Background()

	InsertTestTenant(t, db, "tenant-1", "a@example.com", "FREE", 250, 0)
	InsertTestUser(t, db, "user-1", "tenant-1", "a@example.com")

	session := testSession("sess-1", "user-1", "tok-hash-1", time.Now().Add(7*24*time.Hour))
	if err := repo.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByTokenHash(ctx, "tok-hash-1")
	if err != nil {
		t.Fatalf("GetByTokenHash: %v", err)
	}
	if got == nil || got.UserID != "user-1" || got.CSRFToken != "csrf-sess-1" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestSessionDeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteSessionRepository(db)
	ctx := context.Background()

	InsertTestTenant(t, db, "tenant-1", "a@example.com", "FREE", 250, 0)
	InsertTestUser(t, db, "user-1", "tenant-1", "a@example.com")

	if err := repo.Create(ctx, testSession("sess-old", "user-1", "tok-old", time.Now().Add(-time.Hour))); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, testSession("sess-live", "user-1", "tok-live", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Create: %v", err)
	}

	count, err := repo.DeleteExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 session removed, got %d", count)
	}
	if got, _ := repo.GetByTokenHash(ctx, "tok-old"); got != nil {
		t.Error("expired session still present")
	}
	if got, _ := repo.GetByTokenHash(ctx, "tok-live"); got == nil {
		t.Error("live session was removed")
	}
}

func TestSessionDeleteByIDAndUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteSessionRepository(db)
	ctx := context.Background()

	InsertTestTenant(t, db, "tenant-1", "a@example.com", "FREE", 250, 0)
	InsertTestUser(t, db, "user-1", "tenant-1", "a@example.com")
	InsertTestUser(t, db, "user-2", "tenant-1", "b@example.com")

	if err := repo.Create(ctx, testSession("sess-1", "user-1", "tok-1", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Another user cannot revoke the session.
	if deleted, err := repo.DeleteByIDAndUser(ctx, "sess-1", "user-2"); err != nil || deleted {
		t.Errorf("cross-user delete should be a no-op, got deleted=%v err=%v", deleted, err)
	}
	if deleted, err := repo.DeleteByIDAndUser(ctx, "sess-1", "user-1"); err != nil || !deleted {
		t.Errorf("owner delete failed: deleted=%v err=%v", deleted, err)
	}
}

func TestSessionExtendExpiry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteSessionRepository(db)
	ctx := context.Background()

	InsertTestTenant(t, db, "tenant-1", "a@example.com", "FREE", 250, 0)
	InsertTestUser(t, db, "user-1", "tenant-1", "a@example.com")

	if err := repo.Create(ctx, testSession("sess-1", "user-1", "tok-1", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Create: %v", err)
	}

	extended := time.Now().UTC().Add(7 * 24 * time.Hour).Truncate(time.Second)
	if err := repo.ExtendExpiry(ctx, "sess-1", extended); err != nil {
		t.Fatalf("ExtendExpiry: %v", err)
	}

	got, _ := repo.GetByTokenHash(ctx, "tok-1")
	if !got.ExpiresAt.Equal(extended) {
		t.Errorf("expiry not extended: got %v want %v", got.ExpiresAt, extended)
	}
}
