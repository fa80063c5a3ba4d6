package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestKVRepoNamespacesKeys(t *testing.T) {
	repo, mini := newKVRepoForTest(t, "daycare-admin:")
	ctx := context.Background()

	if err := repo.Set(ctx, "refine-auth", "token-1"); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, err := mini.Get("daycare-admin:refine-auth")
	if err != nil {
		t.Fatalf("read raw key: %v", err)
	}
	if raw != "token-1" {
		t.Fatalf("unexpected raw value: %q", raw)
	}

	value, ok, err := repo.Get(ctx, "refine-auth")
	if err != nil || !ok || value != "token-1" {
		t.Fatalf("unexpected get result: value=%q ok=%v err=%v", value, ok, err)
	}
}

func TestKVRepoGetMissingKey(t *testing.T) {
	repo, _ := newKVRepoForTest(t, "daycare-admin:")

	_, ok, err := repo.Get(context.Background(), "user")
	if err != nil {
		t.Fatalf("missing key must not be an error: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}
}

func TestKVRepoDelete(t *testing.T) {
	repo, mini := newKVRepoForTest(t, "daycare-admin:")
	ctx := context.Background()

	_ = repo.Set(ctx, "refine-auth", "token")
	_ = repo.Set(ctx, "user", "{}")

	if err := repo.Delete(ctx, "refine-auth", "user"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mini.Exists("daycare-admin:refine-auth") || mini.Exists("daycare-admin:user") {
		t.Fatal("expected keys to be deleted")
	}
}

func TestKVRepoPurgeKeepsForeignKeys(t *testing.T) {
	repo, mini := newKVRepoForTest(t, "daycare-admin:")
	ctx := context.Background()

	_ = repo.Set(ctx, "refine-auth", "token")
	_ = repo.Set(ctx, "user", "{}")
	if err := mini.Set("other-app:key", "keep"); err != nil {
		t.Fatalf("seed foreign key: %v", err)
	}

	if err := repo.Purge(ctx); err != nil {
		t.Fatalf("purge: %v", err)
	}

	if mini.Exists("daycare-admin:refine-auth") || mini.Exists("daycare-admin:user") {
		t.Fatal("expected namespaced keys to be purged")
	}
	if !mini.Exists("other-app:key") {
		t.Fatal("purge must not touch keys outside the namespace")
	}
}

func TestKVRepoPurgeRequiresNamespace(t *testing.T) {
	repo, _ := newKVRepoForTest(t, "")

	if err := repo.Purge(context.Background()); err == nil {
		t.Fatal("expected error when purging without namespace")
	}
}

func newKVRepoForTest(t *testing.T, namespace string) (*KVRepo, *miniredis.Miniredis) {
	t.Helper()

	mini := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return NewKVRepo(client, namespace), mini
}
