package repository

import (
	"context"
	"testing"
	"time"

	"github.com/snapdock/snapdock-api/internal/models"
)

func TestCreateWithTenantAndOAuthLookup(t *testing.T) {
	db := setupTestDB(t)
	repos := NewRepositories(db)
	ctx := context.Background()

	now := time.Now().UTC()
	tenant := &models.Tenant{
		ID: "tenant-1", Email: "a@example.com", Tier: models.TierFree,
		MonthlyCredits: 250, LastResetAt: now, IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}
	user := &models.User{
		ID: "user-1", TenantID: "tenant-1", Email: "a@example.com",
		DisplayName: "Alice", CreatedAt: now,
	}
	link := &models.OAuthLink{
		ID: "link-1", UserID: "user-1", Provider: "github",
		ExternalID: "gh-42", CreatedAt: now,
	}

	if err := repos.User.CreateWithTenant(ctx, tenant, user, link); err != nil {
		t.Fatalf("CreateWithTenant: %v", err)
	}

	got, err := repos.User.GetByOAuth(ctx, "github", "gh-42")
	if err != nil {
		t.Fatalf("GetByOAuth: %v", err)
	}
	if got == nil || got.ID != "user-1" || got.TenantID != "tenant-1" {
		t.Fatalf("unexpected user: %+v", got)
	}

	// Same external id under a different provider is a different identity.
	if got, _ := repos.User.GetByOAuth(ctx, "google", "gh-42"); got != nil {
		t.Error("provider must be part of the oauth identity")
	}

	if tenant, _ := repos.Tenant.GetByID(ctx, "tenant-1"); tenant == nil || !tenant.IsActive {
		t.Error("tenant not provisioned alongside user")
	}
}

func TestCreateWithTenantRollsBackOnDuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	repos := NewRepositories(db)
	ctx := context.Background()

	InsertTestTenant(t, db, "tenant-0", "taken@example.com", "FREE", 250, 0)
	InsertTestUser(t, db, "user-0", "tenant-0", "taken@example.com")

	now := time.Now().UTC()
	tenant := &models.Tenant{
		ID: "tenant-1", Email: "taken@example.com", Tier: models.TierFree,
		MonthlyCredits: 250, LastResetAt: now, IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}
	user := &models.User{ID: "user-1", TenantID: "tenant-1", Email: "taken@example.com", CreatedAt: now}

	if err := repos.User.CreateWithTenant(ctx, tenant, user, nil); err == nil {
		t.Fatal("expected duplicate email to fail")
	}

	// The tenant insert must have rolled back with the user insert.
	if tenant, _ := repos.Tenant.GetByID(ctx, "tenant-1"); tenant != nil {
		t.Error("tenant row leaked from aborted transaction")
	}
}

func TestUpdateLastLogin(t *testing.T) {
	db := setupTestDB(t)
	repos := NewRepositories(db)
	ctx := context.Background()

	InsertTestTenant(t, db, "tenant-1", "a@example.com", "FREE", 250, 0)
	InsertTestUser(t, db, "user-1", "tenant-1", "a@example.com")

	at := time.Now().UTC().Truncate(time.Second)
	if err := repos.User.UpdateLastLogin(ctx, "user-1", at); err != nil {
		t.Fatalf("UpdateLastLogin: %v", err)
	}

	user, _ := repos.User.GetByID(ctx, "user-1")
	if user.LastLoginAt == nil || !user.LastLoginAt.Equal(at) {
		t.Errorf("last_login_at not recorded: %+v", user.LastLoginAt)
	}
}
