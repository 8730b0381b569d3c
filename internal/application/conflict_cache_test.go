package application

import (
	"testing"
	"time"

	"github.com/Mostafa-DE/gatherly-sub002/internal/participation"
)

func TestConflictCache(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, time.March, 4, 18, 0, 0, 0, time.UTC)
	cache := NewConflictCache(4, time.Minute)

	if _, ok := cache.Get("s-1", at); ok {
		t.Fatalf("expected empty cache miss")
	}

	stored := []participation.UserConflict{{UserID: "u-1", ConflictingSessionID: "s-2", ConflictingSessionTitle: "Pickup game"}}
	cache.Store(cache.Generation(), "s-1", at, stored)
	stored[0].UserID = "mutated"

	got, ok := cache.Get("s-1", at.In(time.FixedZone("UTC+2", 2*60*60)))
	if !ok {
		t.Fatalf("expected hit for the same instant in another zone")
	}
	if len(got) != 1 || got[0].UserID != "u-1" {
		t.Fatalf("expected cached copy to be isolated from caller, got %+v", got)
	}

	if _, ok := cache.Get("s-1", at.Add(time.Minute)); ok {
		t.Fatalf("expected miss for a different instant")
	}

	cache.Store(cache.Generation(), "s-1", at.Add(time.Hour), nil)
	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}

	cache.Invalidate()
	if cache.Len() != 0 {
		t.Fatalf("expected invalidate to purge entries, got %d", cache.Len())
	}
}

func TestConflictCache_DropsPreviewComputedBeforeInvalidate(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, time.March, 4, 18, 0, 0, 0, time.UTC)
	cache := NewConflictCache(4, time.Minute)

	before := cache.Generation()
	cache.Invalidate()
	if cache.Store(before, "s-1", at, nil) {
		t.Fatalf("expected store with an outdated generation to be refused")
	}
	if _, ok := cache.Get("s-1", at); ok {
		t.Fatalf("expected outdated preview not to be cached")
	}

	if !cache.Store(cache.Generation(), "s-1", at, nil) {
		t.Fatalf("expected store with the current generation to be kept")
	}
	if cache.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", cache.Len())
	}
}

func TestConflictCache_NilSafe(t *testing.T) {
	t.Parallel()

	var cache *ConflictCache
	if cache.Store(cache.Generation(), "s-1", time.Now(), nil) {
		t.Fatalf("expected nil cache to refuse stores")
	}
	cache.Invalidate()
	if _, ok := cache.Get("s-1", time.Now()); ok {
		t.Fatalf("expected nil cache to miss")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected nil cache to be empty")
	}
}
