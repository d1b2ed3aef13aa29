package cache

import (
	"context"
	"testing"
	"time"

	"github.com/snapdock/snapdock-api/internal/models"
)

func TestDisabledStoreFailsOpen(t *testing.T) {
	store, err := New("", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.Enabled() {
		t.Fatal("expected store to be disabled")
	}

	ctx := context.Background()

	// Rate limits fail open.
	result := store.Allow(ctx, "rl:FREE:tenant-1", 100, time.Hour, time.Minute)
	if !result.Allowed {
		t.Error("disabled store must allow requests")
	}
	if result.Limit != 100 || result.Remaining != 100 {
		t.Errorf("unexpected limit result: %+v", result)
	}

	// Cache reads fall through.
	if _, ok := store.GetKeyIdentity(ctx, "digest"); ok {
		t.Error("disabled store must miss on cache reads")
	}

	// Writes are no-ops, not panics.
	store.SetKeyIdentity(ctx, "digest", &models.KeyIdentity{TenantID: "t"})
	store.InvalidateKey(ctx, "digest")
	store.Reset(ctx, "login:1.2.3.4:user@example.com")
}

func TestLimitKeyLayout(t *testing.T) {
	if got := TierLimitKey(models.TierFree, "tenant-1"); got != "rl:FREE:tenant-1" {
		t.Errorf("TierLimitKey = %q", got)
	}
	if got := IPLimitKey("203.0.113.9"); got != "rl:ip:203.0.113.9" {
		t.Errorf("IPLimitKey = %q", got)
	}
	if got := LoginLimitKey("203.0.113.9", "User@Example.COM"); got != "login:203.0.113.9:user@example.com" {
		t.Errorf("LoginLimitKey = %q", got)
	}
}
