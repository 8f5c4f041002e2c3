package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
)

var epoch = time.Date(2026, 2, 26, 8, 0, 0, 0, time.UTC)

const waitTimeout = 5 * time.Second

func testConfig() Config {
	return Config{
		RefreshInterval:        60 * time.Second,
		JitterMax:              10 * time.Second,
		RetryInterval:          5 * time.Second,
		MaxConsecutiveFailures: 3,
		StartupJitterMax:       2 * time.Second,
		RunTimeout:             time.Second,
	}
}

func half() float64 { return 0.5 }

func waitForState(t *testing.T, s *Scheduler, id string, cond func(SourceRefreshState) bool) SourceRefreshState {
	t.Helper()

	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if st, ok := s.State(id); ok && cond(st) {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	st, _ := s.State(id)
	t.Fatalf("condition not reached for %s, last state: %+v", id, st)
	return st
}

func TestSuccessfulRunReschedulesWithJitter(t *testing.T) {
	clk := testclock.NewClock(epoch)
	var runs atomic.Int32
	s := New("test", testConfig(), []Task{{
		ID:  "weibo",
		Run: func(context.Context) error { runs.Add(1); return nil },
	}}, WithClock(clk), WithRand(half))

	s.Start(context.Background())
	defer s.Stop()

	st, _ := s.State("weibo")
	if st.NextRunAt == nil || !st.NextRunAt.Equal(epoch.Add(time.Second)) {
		t.Fatalf("expected initial run staged after startup jitter, got %v", st.NextRunAt)
	}

	if err := clk.WaitAdvance(time.Second, waitTimeout, 1); err != nil {
		t.Fatal(err)
	}
	st = waitForState(t, s, "weibo", func(st SourceRefreshState) bool { return st.TotalRefreshes == 1 })

	if st.State != PhaseScheduled || st.LastSuccessAt == nil || st.LastError != "" {
		t.Errorf("unexpected state after success: %+v", st)
	}
	want := epoch.Add(time.Second + 60*time.Second + 5*time.Second)
	if st.NextRunAt == nil || !st.NextRunAt.Equal(want) {
		t.Errorf("expected next run at %v, got %v", want, st.NextRunAt)
	}
	if len(st.History) != 1 || st.History[0].Mode != ModeInitial || st.History[0].Status != "ok" {
		t.Errorf("unexpected history: %+v", st.History)
	}

	if err := clk.WaitAdvance(65*time.Second, waitTimeout, 1); err != nil {
		t.Fatal(err)
	}
	st = waitForState(t, s, "weibo", func(st SourceRefreshState) bool { return st.TotalRefreshes == 2 })
	if st.History[1].Mode != ModeScheduled {
		t.Errorf("expected second run in scheduled mode, got %s", st.History[1].Mode)
	}
	if runs.Load() != 2 {
		t.Errorf("expected 2 runs, got %d", runs.Load())
	}
}

func TestRetryThenGiveUpThenRecover(t *testing.T) {
	clk := testclock.NewClock(epoch)
	var healthy atomic.Bool
	s := New("test", testConfig(), []Task{{
		ID: "zhihu",
		Run: func(context.Context) error {
			if healthy.Load() {
				return nil
			}
			return errors.New("upstream 500")
		},
	}}, WithClock(clk), WithRand(half))

	s.Start(context.Background())
	defer s.Stop()

	cycleStart := epoch.Add(time.Second)
	if err := clk.WaitAdvance(time.Second, waitTimeout, 1); err != nil {
		t.Fatal(err)
	}
	st := waitForState(t, s, "zhihu", func(st SourceRefreshState) bool { return st.TotalFailures == 1 })
	if st.State != PhaseRetrying || st.RetriesInCurrentCycle != 1 || st.ConsecutiveFailures != 1 {
		t.Fatalf("unexpected state after first failure: %+v", st)
	}
	if !st.NextRunAt.Equal(cycleStart.Add(5 * time.Second)) {
		t.Errorf("expected flat retry interval, next run %v", st.NextRunAt)
	}
	if st.LastError != "upstream 500" || st.LastFailureAt == nil {
		t.Errorf("expected failure details to be recorded: %+v", st)
	}

	if err := clk.WaitAdvance(5*time.Second, waitTimeout, 1); err != nil {
		t.Fatal(err)
	}
	st = waitForState(t, s, "zhihu", func(st SourceRefreshState) bool { return st.TotalFailures == 2 })
	if st.RetriesInCurrentCycle != 2 || !st.CycleStart.Equal(cycleStart) {
		t.Fatalf("retry must stay in the same cycle: %+v", st)
	}

	if err := clk.WaitAdvance(5*time.Second, waitTimeout, 1); err != nil {
		t.Fatal(err)
	}
	st = waitForState(t, s, "zhihu", func(st SourceRefreshState) bool { return st.TotalFailures == 3 })

	if !st.GaveUpInCurrentCycle || st.State != PhaseGaveUp || st.RetriesInCurrentCycle != 0 {
		t.Fatalf("expected give-up after 3 failures: %+v", st)
	}
	if st.NextRunAt.Before(cycleStart.Add(60 * time.Second)) {
		t.Errorf("next run %v lands before the end of the cycle", st.NextRunAt)
	}
	// 60s cycle - 10s elapsed + 5s jitter, measured from the third failure
	if want := epoch.Add(11*time.Second + 55*time.Second); !st.NextRunAt.Equal(want) {
		t.Errorf("expected next run at %v, got %v", want, st.NextRunAt)
	}

	modes := []Mode{st.History[0].Mode, st.History[1].Mode, st.History[2].Mode}
	if modes[0] != ModeInitial || modes[1] != ModeRetry || modes[2] != ModeRetry {
		t.Errorf("unexpected history modes: %v", modes)
	}

	healthy.Store(true)
	if err := clk.WaitAdvance(55*time.Second, waitTimeout, 1); err != nil {
		t.Fatal(err)
	}
	st = waitForState(t, s, "zhihu", func(st SourceRefreshState) bool { return st.TotalRefreshes == 1 })
	if st.GaveUpInCurrentCycle || st.ConsecutiveFailures != 0 || st.LastError != "" {
		t.Errorf("success must clear the give-up flag: %+v", st)
	}
	if len(st.History) != 3 || st.History[2].Mode != ModeScheduled {
		t.Errorf("expected history bounded to 3 with the scheduled run last: %+v", st.History)
	}
}

func TestNewCycleRetriesAfterGiveUp(t *testing.T) {
	clk := testclock.NewClock(epoch)
	s := New("test", testConfig(), []Task{{
		ID:  "douyin",
		Run: func(context.Context) error { return errors.New("upstream 503") },
	}}, WithClock(clk), WithRand(half))

	s.Start(context.Background())
	defer s.Stop()

	for i, step := range []time.Duration{time.Second, 5 * time.Second, 5 * time.Second} {
		if err := clk.WaitAdvance(step, waitTimeout, 1); err != nil {
			t.Fatal(err)
		}
		want := i + 1
		waitForState(t, s, "douyin", func(st SourceRefreshState) bool { return st.TotalFailures == want })
	}
	st, _ := s.State("douyin")
	if st.State != PhaseGaveUp {
		t.Fatalf("expected give-up after 3 failures: %+v", st)
	}

	// the next cycle's first failure is retried, not given up on
	if err := clk.WaitAdvance(55*time.Second, waitTimeout, 1); err != nil {
		t.Fatal(err)
	}
	st = waitForState(t, s, "douyin", func(st SourceRefreshState) bool { return st.TotalFailures == 4 })
	if st.State != PhaseRetrying || st.RetriesInCurrentCycle != 1 || st.ConsecutiveFailures != 4 {
		t.Fatalf("unexpected state after a failure in a new cycle: %+v", st)
	}
	if want := epoch.Add(66*time.Second + 5*time.Second); !st.NextRunAt.Equal(want) {
		t.Errorf("expected retry at %v, got %v", want, st.NextRunAt)
	}
}

func TestPanickingTaskCountsAsFailure(t *testing.T) {
	clk := testclock.NewClock(epoch)
	s := New("test", testConfig(), []Task{{
		ID:  "douyin",
		Run: func(context.Context) error { panic("adapter bug") },
	}}, WithClock(clk), WithRand(half))

	s.Start(context.Background())
	defer s.Stop()

	if err := clk.WaitAdvance(time.Second, waitTimeout, 1); err != nil {
		t.Fatal(err)
	}
	st := waitForState(t, s, "douyin", func(st SourceRefreshState) bool { return st.TotalFailures == 1 })
	if st.State != PhaseRetrying || st.NextRunAt == nil {
		t.Errorf("expected panic to be treated as a failure: %+v", st)
	}
}

func TestRunHonoursTimeout(t *testing.T) {
	clk := testclock.NewClock(epoch)
	cfg := testConfig()
	cfg.RunTimeout = 20 * time.Millisecond
	s := New("test", cfg, []Task{{
		ID: "baidu",
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}}, WithClock(clk), WithRand(half))

	s.Start(context.Background())
	defer s.Stop()

	if err := clk.WaitAdvance(time.Second, waitTimeout, 1); err != nil {
		t.Fatal(err)
	}
	st := waitForState(t, s, "baidu", func(st SourceRefreshState) bool { return st.TotalFailures == 1 })
	if st.LastError != context.DeadlineExceeded.Error() {
		t.Errorf("expected deadline error, got %q", st.LastError)
	}
}

func TestStopIsIdempotentAndCancelsTimers(t *testing.T) {
	clk := testclock.NewClock(epoch)
	var runs atomic.Int32
	s := New("test", testConfig(), []Task{
		{ID: "a", Run: func(context.Context) error { runs.Add(1); return nil }},
		{ID: "b", Run: func(context.Context) error { runs.Add(1); return nil }},
	}, WithClock(clk), WithRand(half))

	s.Start(context.Background())
	s.Stop()
	s.Stop()

	for _, st := range s.Snapshot() {
		if st.State != PhaseStopped || st.NextRunAt != nil {
			t.Errorf("expected %s to be stopped with no pending run: %+v", st.ID, st)
		}
	}

	clk.Advance(time.Hour)
	time.Sleep(50 * time.Millisecond)
	if runs.Load() != 0 {
		t.Errorf("expected no runs after stop, got %d", runs.Load())
	}

	// a stopped scheduler cannot be restarted
	s.Start(context.Background())
	if st, _ := s.State("a"); st.State != PhaseStopped {
		t.Errorf("expected restart to be ignored, got %s", st.State)
	}
}

func TestStopDuringRunDoesNotReschedule(t *testing.T) {
	clk := testclock.NewClock(epoch)
	release := make(chan struct{})
	s := New("test", testConfig(), []Task{{
		ID: "v2ex",
		Run: func(context.Context) error {
			<-release
			return nil
		},
	}}, WithClock(clk), WithRand(half))

	s.Start(context.Background())
	if err := clk.WaitAdvance(time.Second, waitTimeout, 1); err != nil {
		t.Fatal(err)
	}
	waitForState(t, s, "v2ex", func(st SourceRefreshState) bool { return st.State == PhaseRunning })

	s.Stop()
	close(release)

	st := waitForState(t, s, "v2ex", func(st SourceRefreshState) bool { return st.TotalRefreshes == 1 })
	if st.State != PhaseStopped || st.NextRunAt != nil {
		t.Errorf("expected in-flight run to be recorded without rescheduling: %+v", st)
	}
}

func TestTaskIntervalOverride(t *testing.T) {
	clk := testclock.NewClock(epoch)
	cfg := testConfig()
	cfg.StartupJitterMax = 0
	s := New("monitors", cfg, []Task{{
		ID:       "ai",
		Interval: 15 * time.Minute,
		Run:      func(context.Context) error { return nil },
	}}, WithClock(clk), WithRand(func() float64 { return 0 }))

	s.Start(context.Background())
	defer s.Stop()

	if err := clk.WaitAdvance(0, waitTimeout, 1); err != nil {
		t.Fatal(err)
	}
	st := waitForState(t, s, "ai", func(st SourceRefreshState) bool { return st.TotalRefreshes == 1 })
	if want := epoch.Add(15 * time.Minute); !st.NextRunAt.Equal(want) {
		t.Errorf("expected task interval to override the default, next run %v", st.NextRunAt)
	}
}

func TestSnapshotSkipsInvalidAndDuplicateTasks(t *testing.T) {
	noop := func(context.Context) error { return nil }
	s := New("test", testConfig(), []Task{
		{ID: "zhihu", Run: noop},
		{ID: "baidu", Run: noop},
		{ID: "zhihu", Run: noop},
		{ID: "", Run: noop},
		{ID: "nil-run"},
	})

	snap := s.Snapshot()
	if len(snap) != 2 || snap[0].ID != "baidu" || snap[1].ID != "zhihu" {
		t.Fatalf("expected sorted baidu, zhihu; got %+v", snap)
	}
	if snap[0].History == nil {
		t.Errorf("expected empty, non-nil history in snapshots")
	}

	snap[0].History = append(snap[0].History, RunRecord{Status: "ok"})
	if again, _ := s.State("baidu"); len(again.History) != 0 {
		t.Errorf("snapshot must not alias internal state")
	}
}
