package dataprovider

import (
	"context"
	"testing"
	"time"
)

func TestResponseCacheExpiresEntries(t *testing.T) {
	cache, err := NewResponseCache(time.Minute)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	if _, err := cache.Put(cache.Generation(), "children", "/children", []byte(`[]`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok := cache.Get("/children"); !ok {
		t.Fatal("expected fresh entry")
	}

	now = now.Add(time.Minute)
	if _, ok := cache.Get("/children"); ok {
		t.Fatal("expected entry to expire after ttl")
	}
}

func TestResponseCacheInvalidateIsPerResource(t *testing.T) {
	cache, err := NewResponseCache(time.Minute)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	for _, entry := range []struct{ resource, key string }{
		{"children", "/children?page=1&take=10"},
		{"children", "/children/c-1"},
		{"users", "/users"},
	} {
		if _, err := cache.Put(cache.Generation(), entry.resource, entry.key, []byte(`{}`)); err != nil {
			t.Fatalf("put %s: %v", entry.key, err)
		}
	}

	if err := cache.Invalidate("children"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected only users to remain, got %d entries", cache.Len())
	}
	if _, ok := cache.Get("/users"); !ok {
		t.Fatal("users entry should survive")
	}

	if err := cache.Purge(context.Background()); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", cache.Len())
	}
}

func TestNilResponseCacheIsDisabled(t *testing.T) {
	var cache *ResponseCache

	if stored, err := cache.Put(cache.Generation(), "children", "/children", []byte(`[]`)); err != nil || stored {
		t.Fatalf("put on nil cache: stored=%v err=%v", stored, err)
	}
	if _, ok := cache.Get("/children"); ok {
		t.Fatal("nil cache must always miss")
	}
	if err := cache.Purge(context.Background()); err != nil {
		t.Fatalf("purge on nil cache: %v", err)
	}
}

func TestResponseCacheSkipsResponsesThatRacedAPurge(t *testing.T) {
	cache, err := NewResponseCache(time.Minute)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	gen := cache.Generation()
	if err := cache.Purge(context.Background()); err != nil {
		t.Fatalf("purge: %v", err)
	}

	stored, err := cache.Put(gen, "children", "/children", []byte(`[]`))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if stored || cache.Len() != 0 {
		t.Fatalf("response fetched before the purge must not be cached, stored=%v len=%d", stored, cache.Len())
	}

	if stored, err := cache.Put(cache.Generation(), "children", "/children", []byte(`[]`)); err != nil || !stored {
		t.Fatalf("put with current generation: stored=%v err=%v", stored, err)
	}
}
