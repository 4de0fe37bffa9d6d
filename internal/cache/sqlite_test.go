package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestSqlite(t *testing.T) *SqliteCache {
	t.Helper()
	c, err := NewSqliteCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewSqliteCache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSqliteCacheRoundtrip(t *testing.T) {
	c := newTestSqlite(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("Get = (%q, %v, %v), want (v, true, nil)", got, ok, err)
	}

	// Upsert replaces.
	if err := c.Set(ctx, "k", []byte("v2"), time.Minute); err != nil {
		t.Fatalf("Set again: %v", err)
	}
	got, _, _ = c.Get(ctx, "k")
	if string(got) != "v2" {
		t.Errorf("got %q after upsert, want v2", got)
	}
}

func TestSqliteCacheExpiry(t *testing.T) {
	c := newTestSqlite(t)
	ctx := context.Background()

	// Expiry is stored at second granularity; write an already-expired
	// entry to exercise the lazy deletion path.
	c.Set(ctx, "k", []byte("v"), -time.Second)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("expired entry still readable")
	}

	got, err := c.GetMultiple(ctx, []string{"k"})
	if err != nil {
		t.Fatalf("GetMultiple: %v", err)
	}
	if _, ok := got["k"]; ok {
		t.Error("expired entry returned from GetMultiple")
	}
}

func TestSqliteCacheMultiple(t *testing.T) {
	c := newTestSqlite(t)
	ctx := context.Background()

	items := map[string][]byte{"a": []byte("1"), "b": []byte("2")}
	if err := c.SetMultiple(ctx, items, time.Minute); err != nil {
		t.Fatalf("SetMultiple: %v", err)
	}
	got, err := c.GetMultiple(ctx, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("GetMultiple: %v", err)
	}
	if len(got) != 2 || string(got["a"]) != "1" {
		t.Errorf("got %v", got)
	}

	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "a"); ok {
		t.Error("deleted entry still readable")
	}
}
