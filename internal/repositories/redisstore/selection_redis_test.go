package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
)

func newSelection(now time.Time, ttl time.Duration) *models.PendingSelection {
	return &models.PendingSelection{
		TenantID:       "acme",
		VendorID:       "vendor-1",
		TemplateFamily: "vendor-security-baseline",
		SelectedBy:     "user-1",
		SelectedAt:     now,
		ExpiresAt:      now.Add(ttl),
	}
}

func TestSelectionRedis_SaveGetDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewSelectionRedis(client)
	ctx := context.Background()
	now := time.Now()

	if err := store.Save(ctx, newSelection(now, 30*time.Minute)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL("selection:acme:vendor-1"); ttl <= 29*time.Minute || ttl > 30*time.Minute {
		t.Errorf("unexpected TTL %v", ttl)
	}

	got, err := store.Get(ctx, "acme", "vendor-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TemplateFamily != "vendor-security-baseline" || got.SelectedBy != "user-1" {
		t.Errorf("unexpected selection %+v", got)
	}

	if _, err := store.Get(ctx, "globex", "vendor-1"); !repositories.IsNotFoundError(err) {
		t.Errorf("other tenant must not see the selection, got %v", err)
	}

	if err := store.Delete(ctx, "acme", "vendor-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "acme", "vendor-1"); !repositories.IsNotFoundError(err) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestSelectionRedis_Expiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewSelectionRedis(client)
	ctx := context.Background()

	if err := store.Save(ctx, newSelection(time.Now(), time.Minute)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, "acme", "vendor-1"); !repositories.IsNotFoundError(err) {
		t.Errorf("expected expired selection to be gone, got %v", err)
	}

	if err := store.Save(ctx, newSelection(time.Now().Add(-time.Hour), time.Minute)); err == nil {
		t.Error("expected error when saving an already expired selection")
	}
}

func TestSelectionMemory_Expiry(t *testing.T) {
	store := NewSelectionMemory().(*SelectionMemory)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_ = store.Save(ctx, newSelection(now, 30*time.Minute))
	if _, err := store.Get(ctx, "acme", "vendor-1"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	now = now.Add(30 * time.Minute)
	if _, err := store.Get(ctx, "acme", "vendor-1"); !repositories.IsNotFoundError(err) {
		t.Errorf("selection must expire exactly at ExpiresAt, got %v", err)
	}
}
