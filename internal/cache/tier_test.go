package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/juju/clock/testclock"

	"hot-rank/internal/core"
)

func newMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr
}

func TestRedisTierRoundTrip(t *testing.T) {
	mr := newMiniredis(t)
	tier, err := NewRedisTier("redis://"+mr.Addr(), "hot-rank")
	if err != nil {
		t.Fatalf("NewRedisTier: %v", err)
	}
	defer tier.Close()

	ctx := context.Background()
	if err := tier.Set(ctx, "weibo:json:", []byte(`{"value":"x"}`), 90*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if !mr.Exists("hot-rank:weibo:json:") {
		t.Fatalf("expected key to be stored under the prefix, keys: %v", mr.Keys())
	}
	if ttl := mr.TTL("hot-rank:weibo:json:"); ttl != 90*time.Second {
		t.Errorf("expected ttl 90s, got %v", ttl)
	}

	payload, found, err := tier.Get(ctx, "weibo:json:")
	if err != nil || !found || string(payload) != `{"value":"x"}` {
		t.Fatalf("Get returned payload=%q found=%v err=%v", payload, found, err)
	}

	if err := tier.Delete(ctx, "weibo:json:"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, _ := tier.Get(ctx, "weibo:json:"); found {
		t.Errorf("expected key to be gone after delete")
	}

	if !tier.Ready(ctx) {
		t.Errorf("expected tier to be ready")
	}
}

func TestSWRWarmsMemoryFromRedis(t *testing.T) {
	mr := newMiniredis(t)
	ctx := context.Background()
	clk := testclock.NewClock(epoch)
	opts := Options{TTL: time.Minute, StaleWindow: time.Minute, Clock: clk}

	writerTier, _ := NewRedisTier("redis://"+mr.Addr(), "p")
	writer := New[string](opts, writerTier, core.NewDiscardLogger())
	writer.Set(ctx, "k", "shared")

	readerTier, _ := NewRedisTier("redis://"+mr.Addr(), "p")
	reader := New[string](opts, readerTier, core.NewDiscardLogger())

	got := reader.Get(ctx, "k")
	if got.State != StateFresh || got.Entry.Value != "shared" {
		t.Fatalf("expected fresh value from the secondary tier, got %s", got.State)
	}
	if reader.Len() != 1 {
		t.Errorf("expected tier hit to populate memory")
	}

	health := reader.Health(ctx)
	if !health.SecondaryEnabled || !health.SecondaryReady || health.SecondaryKind != "redis" {
		t.Errorf("unexpected health: %+v", health)
	}
}

func TestSWRSurvivesRedisOutage(t *testing.T) {
	mr := newMiniredis(t)
	tier, _ := NewRedisTier("redis://"+mr.Addr(), "p")
	c := New[string](Options{TTL: time.Minute, StaleWindow: time.Minute, TierTimeout: 200 * time.Millisecond},
		tier, core.NewDiscardLogger())

	mr.Close()

	ctx := context.Background()
	c.Set(ctx, "k", "v")
	if got := c.Get(ctx, "k"); got.State != StateFresh {
		t.Fatalf("expected memory tier to serve while redis is down, got %s", got.State)
	}
	if health := c.Health(ctx); health.SecondaryReady {
		t.Errorf("expected secondary tier to report not ready")
	}
}

func newMemoryDB(t *testing.T) *core.Database {
	t.Helper()

	db, err := core.OpenDatabase(":memory:", core.NewDiscardLogger())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteTierMigratesAndExpires(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB(t)
	clk := testclock.NewClock(epoch)

	tier, err := NewSQLiteTier(ctx, db, core.NewDiscardLogger(), clk)
	if err != nil {
		t.Fatalf("NewSQLiteTier: %v", err)
	}

	var tableCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='cache_entries'").Scan(&tableCount); err != nil {
		t.Fatalf("Failed to check table: %v", err)
	}
	if tableCount != 1 {
		t.Fatalf("cache_entries table was not created")
	}

	// migrations are idempotent
	if _, err := NewSQLiteTier(ctx, db, core.NewDiscardLogger(), clk); err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}

	if err := tier.Set(ctx, "k", []byte("one"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := tier.Set(ctx, "k", []byte("two"), time.Minute); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	payload, found, err := tier.Get(ctx, "k")
	if err != nil || !found || string(payload) != "two" {
		t.Fatalf("Get returned payload=%q found=%v err=%v", payload, found, err)
	}

	clk.Advance(time.Minute)
	if _, found, _ := tier.Get(ctx, "k"); found {
		t.Errorf("expected expired row to be hidden")
	}

	removed, err := tier.Prune(ctx)
	if err != nil || removed != 1 {
		t.Errorf("expected prune to remove 1 row, removed %d err=%v", removed, err)
	}

	if !tier.Ready(ctx) {
		t.Errorf("expected sqlite tier to be ready")
	}
	if err := tier.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if tier.Ready(ctx) {
		t.Errorf("closed sqlite tier reported ready")
	}
}

func TestSWROverSQLiteTier(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB(t)
	clk := testclock.NewClock(epoch)
	tier, err := NewSQLiteTier(ctx, db, core.NewDiscardLogger(), clk)
	if err != nil {
		t.Fatalf("NewSQLiteTier: %v", err)
	}

	opts := Options{TTL: time.Minute, StaleWindow: time.Minute, Clock: clk}
	New[[]int](opts, tier, core.NewDiscardLogger()).Set(ctx, "nums", []int{1, 2, 3})

	// a fresh process sharing the file starts warm
	restarted := New[[]int](opts, tier, core.NewDiscardLogger())
	got := restarted.Get(ctx, "nums")
	if got.State != StateFresh || len(got.Entry.Value) != 3 {
		t.Fatalf("expected warm start from sqlite, got %s", got.State)
	}
}
