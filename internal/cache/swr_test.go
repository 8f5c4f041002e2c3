package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"hot-rank/internal/core"
)

var epoch = time.Date(2026, 2, 26, 0, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, tier Tier) (*SWR[string], *testclock.Clock) {
	t.Helper()
	clk := testclock.NewClock(epoch)
	c := New[string](Options{
		TTL:         60 * time.Second,
		StaleWindow: 120 * time.Second,
		Clock:       clk,
	}, tier, core.NewDiscardLogger())
	return c, clk
}

func TestGetStateTransitions(t *testing.T) {
	ctx := context.Background()
	c, clk := newTestCache(t, nil)

	if got := c.Get(ctx, "k"); got.State != StateMiss || got.Entry != nil {
		t.Fatalf("expected miss for unknown key, got %v", got.State)
	}

	entry := c.Set(ctx, "k", "v1")
	if !entry.ExpiresAt.Equal(epoch.Add(60*time.Second)) || !entry.StaleUntil.Equal(epoch.Add(180*time.Second)) {
		t.Fatalf("unexpected windows: expires=%v staleUntil=%v", entry.ExpiresAt, entry.StaleUntil)
	}

	tests := []struct {
		name    string
		advance time.Duration
		want    State
	}{
		{"just written", 0, StateFresh},
		{"one second before expiry", 59 * time.Second, StateFresh},
		{"exactly at expiry", 1 * time.Second, StateStale},
		{"inside stale window", 119 * time.Second, StateStale},
		{"exactly at staleUntil", 1 * time.Second, StateMiss},
	}

	for _, tt := range tests {
		clk.Advance(tt.advance)
		got := c.Get(ctx, "k")
		if got.State != tt.want {
			t.Fatalf("%s: expected %s, got %s", tt.name, tt.want, got.State)
		}
		if tt.want != StateMiss && got.Entry.Value != "v1" {
			t.Errorf("%s: expected cached value v1, got %q", tt.name, got.Entry.Value)
		}
	}

	if c.Len() != 0 {
		t.Errorf("expected expired entry to be purged, memory holds %d keys", c.Len())
	}
}

func TestSetWithTTLClampsNegativeWindows(t *testing.T) {
	c, _ := newTestCache(t, nil)
	entry := c.SetWithTTL(context.Background(), "k", "v", -time.Second, -time.Second)
	if entry.ExpiresAt.After(entry.StaleUntil) {
		t.Fatalf("expiresAt must not be after staleUntil")
	}
	if got := c.Get(context.Background(), "k"); got.State != StateMiss {
		t.Errorf("expected zero-window entry to be a miss, got %s", got.State)
	}
}

func TestScheduleRefreshSingleFlight(t *testing.T) {
	c, _ := newTestCache(t, nil)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	refresh := func(ctx context.Context) error {
		calls.Add(1)
		<-release
		c.Set(ctx, "k", "refreshed")
		return nil
	}

	first := c.ScheduleRefresh(ctx, "k", refresh)

	var wg sync.WaitGroup
	joined := make([]<-chan struct{}, 10)
	for i := range joined {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			joined[i] = c.ScheduleRefresh(ctx, "k", refresh)
		}(i)
	}
	wg.Wait()

	close(release)
	<-first
	for _, done := range joined {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("joined refresh never completed")
		}
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected refresh to run exactly once, ran %d times", got)
	}
	if got := c.Get(ctx, "k"); got.Entry == nil || got.Entry.Value != "refreshed" {
		t.Errorf("expected refreshed value to be cached")
	}
}

func TestScheduleRefreshReleasesLockOnFailure(t *testing.T) {
	c, _ := newTestCache(t, nil)
	ctx := context.Background()

	var calls atomic.Int32
	failing := func(context.Context) error {
		calls.Add(1)
		return errors.New("upstream down")
	}
	panicking := func(context.Context) error {
		calls.Add(1)
		panic("boom")
	}

	<-c.ScheduleRefresh(ctx, "k", failing)
	<-c.ScheduleRefresh(ctx, "k", panicking)
	<-c.ScheduleRefresh(ctx, "k", failing)

	if got := calls.Load(); got != 3 {
		t.Fatalf("expected each sequential refresh to run, got %d runs", got)
	}
}

func TestScheduleRefreshIgnoresCallerCancellation(t *testing.T) {
	c, _ := newTestCache(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawErr error
	<-c.ScheduleRefresh(ctx, "k", func(ctx context.Context) error {
		sawErr = ctx.Err()
		return nil
	})

	if sawErr != nil {
		t.Fatalf("refresh context should not inherit caller cancellation, got %v", sawErr)
	}
}

type failingTier struct {
	NoopTier
	sets atomic.Int32
}

func (f *failingTier) Enabled() bool { return true }
func (f *failingTier) Kind() string  { return "failing" }

func (f *failingTier) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("get failed")
}

func (f *failingTier) Set(context.Context, string, []byte, time.Duration) error {
	f.sets.Add(1)
	return errors.New("set failed")
}

func (f *failingTier) Delete(context.Context, string) error { return errors.New("delete failed") }

func TestSecondaryFailuresAreSwallowed(t *testing.T) {
	tier := &failingTier{}
	c, _ := newTestCache(t, tier)
	ctx := context.Background()

	if got := c.Get(ctx, "missing"); got.State != StateMiss {
		t.Fatalf("expected miss when the tier errors, got %s", got.State)
	}

	c.Set(ctx, "k", "v")
	if tier.sets.Load() != 1 {
		t.Fatalf("expected set to be mirrored to the tier")
	}
	if got := c.Get(ctx, "k"); got.State != StateFresh {
		t.Fatalf("memory write must survive tier failure, got %s", got.State)
	}

	c.Delete(ctx, "k")
	if c.Len() != 0 {
		t.Errorf("expected delete to clear memory despite tier failure")
	}

	health := c.Health(ctx)
	if !health.SecondaryEnabled || health.SecondaryReady {
		t.Errorf("unexpected health: %+v", health)
	}
}

func TestHealthMemoryOnly(t *testing.T) {
	c, _ := newTestCache(t, nil)
	c.Set(context.Background(), "a", "1")
	c.Set(context.Background(), "b", "2")

	health := c.Health(context.Background())
	if health.MemoryKeys != 2 || health.SecondaryEnabled || health.SecondaryReady {
		t.Errorf("unexpected health: %+v", health)
	}
}

type recordingTier struct {
	NoopTier
	deletes atomic.Int32
}

func (r *recordingTier) Enabled() bool { return true }
func (r *recordingTier) Kind() string  { return "recording" }

func (r *recordingTier) Delete(context.Context, string) error {
	r.deletes.Add(1)
	return nil
}

func TestExpiredPurgeKeepsNewerEntry(t *testing.T) {
	tier := &recordingTier{}
	c, clk := newTestCache(t, tier)
	ctx := context.Background()

	expired := c.Set(ctx, "k", "old")
	clk.Advance(181 * time.Second)

	// a refresh lands between the read and the purge
	newer := c.Set(ctx, "k", "new")
	if got := c.purgeExpired(ctx, "k", expired); got != newer {
		t.Fatalf("expected the newer entry back, got %+v", got)
	}
	if tier.deletes.Load() != 0 {
		t.Errorf("tier delete issued for a replaced entry")
	}
	if got := c.Get(ctx, "k"); got.State != StateFresh || got.Entry.Value != "new" {
		t.Errorf("newer entry lost: %s %+v", got.State, got.Entry)
	}

	clk.Advance(181 * time.Second)
	if got := c.Get(ctx, "k"); got.State != StateMiss {
		t.Fatalf("expected miss, got %s", got.State)
	}
	if c.Len() != 0 || tier.deletes.Load() != 1 {
		t.Errorf("expired entry not purged: len=%d deletes=%d", c.Len(), tier.deletes.Load())
	}
}
