package repository

import (
	"context"
	"testing"
	"time"

	"github.com/snapdock/snapdock-api/internal/models"
)

func TestAPIKeyCreateAndGetByHash(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteAPIKeyRepository(db)
	ctx := context.Background()

	InsertTestTenant(t, db, "tenant-1", "a@example.com", "FREE", 250, 0)

	key := &models.APIKey{
		ID:        "key-1",
		TenantID:  "tenant-1",
		Name:      "production",
		KeyHash:   "abc123",
		KeyPrefix: "sk_live_",
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(ctx, key); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByKeyHash(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetByKeyHash: %v", err)
	}
	if got == nil || got.ID != "key-1" || !got.IsActive {
		t.Fatalf("unexpected key: %+v", got)
	}

	if got, _ := repo.GetByKeyHash(ctx, "missing"); got != nil {
		t.Error("expected miss for unknown hash")
	}
}

func TestAPIKeyRevokeScoped(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteAPIKeyRepository(db)
	ctx := context.Background()

	InsertTestTenant(t, db, "tenant-1", "a@example.com", "FREE", 250, 0)
	InsertTestTenant(t, db, "tenant-2", "b@example.com", "FREE", 250, 0)
	InsertTestAPIKey(t, db, "key-1", "tenant-1", "hash-1", "sk_live_")

	// Another tenant cannot revoke the key.
	if revoked, err := repo.Revoke(ctx, "key-1", "tenant-2"); err != nil || revoked {
		t.Errorf("cross-tenant revoke should be a no-op, got revoked=%v err=%v", revoked, err)
	}

	revoked, err := repo.Revoke(ctx, "key-1", "tenant-1")
	if err != nil || !revoked {
		t.Fatalf("owner revoke failed: revoked=%v err=%v", revoked, err)
	}

	key, _ := repo.GetByKeyHash(ctx, "hash-1")
	if key.IsActive || key.RevokedAt == nil {
		t.Errorf("key not revoked: %+v", key)
	}

	// Revoking twice reports no active key.
	if revoked, _ := repo.Revoke(ctx, "key-1", "tenant-1"); revoked {
		t.Error("second revoke should report no active key")
	}
}

func TestAPIKeyListByTenant(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteAPIKeyRepository(db)
	ctx := context.Background()

	InsertTestTenant(t, db, "tenant-1", "a@example.com", "FREE", 250, 0)
	InsertTestAPIKey(t, db, "key-1", "tenant-1", "hash-1", "sk_live_")
	InsertTestAPIKey(t, db, "key-2", "tenant-1", "hash-2", "sk_live_")

	keys, err := repo.GetByTenantID(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("GetByTenantID: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 keys, got %d", len(keys))
	}
}

func TestAPIKeyUpdateLastUsed(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteAPIKeyRepository(db)
	ctx := context.Background()

	InsertTestTenant(t, db, "tenant-1", "a@example.com", "FREE", 250, 0)
	InsertTestAPIKey(t, db, "key-1", "tenant-1", "hash-1", "sk_live_")

	used := time.Now().UTC().Truncate(time.Second)
	if err := repo.UpdateLastUsed(ctx, "key-1", used); err != nil {
		t.Fatalf("UpdateLastUsed: %v", err)
	}

	key, _ := repo.GetByKeyHash(ctx, "hash-1")
	if key.LastUsedAt == nil || !key.LastUsedAt.Equal(used) {
		t.Errorf("last_used_at not recorded: %+v", key.LastUsedAt)
	}
}
