package cache

import (
	"context"
	"testing"
)

func TestMemoryStorePutMatchAndDelete(t *testing.T) {
	store, err := NewMemoryStore(1 << 20)
	if err != nil {
		t.Fatalf("memory store error: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	stale := openBucket(t, store, "estimapres-v5")
	current := openBucket(t, store, "estimapres-v6")
	if err := stale.Put(ctx, testEntry("https://estimapres.app/index.html", "old")); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := current.Put(ctx, testEntry("https://estimapres.app/index.html", "new")); err != nil {
		t.Fatalf("put error: %v", err)
	}

	got, err := current.Match(ctx, mustURL(t, "https://estimapres.app/index.html?x=1"), nil, LenientMatch)
	if err != nil {
		t.Fatalf("match error: %v", err)
	}
	if string(got.Body) != "new" {
		t.Fatalf("generations must be isolated, got %s", string(got.Body))
	}

	if deleted, err := store.Delete(ctx, "estimapres-v5"); err != nil || !deleted {
		t.Fatalf("delete failed: deleted=%v err=%v", deleted, err)
	}
	if _, err := stale.Match(ctx, mustURL(t, "https://estimapres.app/index.html"), nil, LenientMatch); err != ErrNotFound {
		t.Fatalf("deleted generation should miss, got %v", err)
	}
	names, _ := store.Generations(ctx)
	if len(names) != 1 || names[0] != "estimapres-v6" {
		t.Fatalf("unexpected generations: %v", names)
	}
}

func TestMemoryStorePutAfterDeleteDoesNotRecreateGeneration(t *testing.T) {
	store, err := NewMemoryStore(1 << 20)
	if err != nil {
		t.Fatalf("memory store error: %v", err)
	}
	defer store.Close()
	checkPutAfterDelete(t, store)
}

func TestMemoryStoreRejectsNonPositiveCost(t *testing.T) {
	if _, err := NewMemoryStore(0); err == nil {
		t.Fatalf("expected error for zero cost")
	}
}
