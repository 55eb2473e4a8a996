package memory

import (
	"context"
	"testing"
	"time"
)

func TestIdempotencyStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	store := NewIdempotencyStore()
	store.now = func() time.Time { return now }

	exists, _, err := store.CheckAndSet(ctx, "k1", nil, time.Minute)
	if err != nil || exists {
		t.Fatalf("first claim: exists=%v err=%v", exists, err)
	}

	exists, value, _ := store.CheckAndSet(ctx, "k1", nil, time.Minute)
	if !exists || string(value) != processingMarker {
		t.Fatalf("second claim: exists=%v value=%s", exists, value)
	}

	_ = store.Update(ctx, "k1", []byte(`{"ok":true}`), time.Minute)
	_, value, _ = store.CheckAndSet(ctx, "k1", nil, time.Minute)
	if string(value) != `{"ok":true}` {
		t.Fatalf("stored value = %s", value)
	}

	_ = store.Release(ctx, "k1")
	if exists, _, _ := store.CheckAndSet(ctx, "k1", nil, time.Minute); exists {
		t.Fatal("released key should be claimable")
	}
}

func TestIdempotencyStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	store := NewIdempotencyStore()
	store.now = func() time.Time { return now }

	_, _, _ = store.CheckAndSet(ctx, "old", nil, time.Minute)
	_, _, _ = store.CheckAndSet(ctx, "fresh", nil, time.Hour)

	now = now.Add(2 * time.Minute)
	if exists, _, _ := store.CheckAndSet(ctx, "old", nil, time.Minute); exists {
		t.Fatal("expired key should be claimable")
	}

	now = now.Add(2 * time.Minute)
	if n := store.Purge(); n != 1 {
		t.Fatalf("Purge() = %d, want 1", n)
	}
}
