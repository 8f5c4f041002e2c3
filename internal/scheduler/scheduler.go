// Package scheduler runs independent, jittered refresh loops keyed by task
// id. A task that keeps failing gives up until its next full cycle.
package scheduler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/juju/clock"

	"hot-rank/internal/core"
	"hot-rank/internal/metrics"
)

// Task is one unit the scheduler keeps refreshing
type Task struct {
	ID string
	// Interval overrides Config.RefreshInterval when non-zero
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Config holds the timing policy shared by every task
type Config struct {
	RefreshInterval        time.Duration
	JitterMax              time.Duration
	RetryInterval          time.Duration
	MaxConsecutiveFailures int
	StartupJitterMax       time.Duration
	RunTimeout             time.Duration
}

// Option customizes a Scheduler
type Option func(*Scheduler)

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithRand replaces the jitter source. f must return values in [0, 1).
func WithRand(f func() float64) Option {
	return func(s *Scheduler) { s.rand = f }
}

// WithLogger sets the logger
func WithLogger(l *core.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

type taskEntry struct {
	task     Task
	state    SourceRefreshState
	timer    clock.Timer
	nextMode Mode
}

// Scheduler owns one pending timer per task
type Scheduler struct {
	name   string
	config Config
	clock  clock.Clock
	rand   func() float64
	logger *core.Logger

	mu      sync.Mutex
	entries map[string]*taskEntry
	ctx     context.Context
	started bool
	stopped bool
}

// New creates a scheduler for tasks. Tasks with an empty or repeated id are
// ignored.
func New(name string, config Config, tasks []Task, opts ...Option) *Scheduler {
	s := &Scheduler{
		name:    name,
		config:  config,
		clock:   clock.WallClock,
		rand:    rand.Float64,
		logger:  core.NewDiscardLogger(),
		entries: make(map[string]*taskEntry, len(tasks)),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.config.MaxConsecutiveFailures < 1 {
		s.config.MaxConsecutiveFailures = 1
	}

	for _, task := range tasks {
		if task.ID == "" || task.Run == nil {
			s.logger.Warn("Skipping invalid scheduler task", "scheduler", name, "task", task.ID)
			continue
		}
		if _, dup := s.entries[task.ID]; dup {
			s.logger.Warn("Skipping duplicate scheduler task", "scheduler", name, "task", task.ID)
			continue
		}
		s.entries[task.ID] = &taskEntry{
			task:  task,
			state: SourceRefreshState{ID: task.ID, State: PhaseScheduled},
		}
	}

	return s
}

// Start stages the initial run of every task after an independent random
// delay. Calling it again, or after Stop, does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return
	}
	s.started = true
	s.ctx = ctx

	s.logger.Info("Starting scheduler", "scheduler", s.name, "tasks", len(s.entries))
	for _, e := range s.entries {
		s.scheduleLocked(e, s.jitter(s.config.StartupJitterMax), ModeInitial)
	}
}

// Stop cancels every pending timer. A run already in flight completes and is
// recorded but not rescheduled. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true

	for _, e := range s.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.state.NextRunAt = nil
		if e.state.State != PhaseRunning {
			e.state.State = PhaseStopped
		}
	}
	s.logger.Info("Scheduler stopped", "scheduler", s.name)
}

// Snapshot returns a copy of every task state, sorted by id
func (s *Scheduler) Snapshot() []SourceRefreshState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SourceRefreshState, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.state.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// State returns a copy of one task's state
func (s *Scheduler) State(id string) (SourceRefreshState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return SourceRefreshState{}, false
	}
	return e.state.clone(), true
}

// scheduleLocked is the only place timers are created. It always cancels
// the previous timer first so each task has at most one pending.
func (s *Scheduler) scheduleLocked(e *taskEntry, delay time.Duration, mode Mode) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if s.stopped {
		return
	}
	if delay < 0 {
		delay = 0
	}

	next := s.clock.Now().Add(delay)
	e.state.NextRunAt = &next
	e.nextMode = mode

	id := e.task.ID
	e.timer = s.clock.AfterFunc(delay, func() { s.run(id) })
}

func (s *Scheduler) run(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || s.stopped {
		s.mu.Unlock()
		return
	}
	e.timer = nil
	e.state.NextRunAt = nil
	e.state.State = PhaseRunning
	mode := e.nextMode
	startedAt := s.clock.Now()
	if mode != ModeRetry {
		e.state.CycleStart = startedAt
	}
	parent := s.ctx
	s.mu.Unlock()

	err := s.invoke(parent, e.task)

	finishedAt := s.clock.Now()
	duration := finishedAt.Sub(startedAt)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := RunRecord{At: finishedAt, Mode: mode, DurationMs: duration.Milliseconds()}
	if err == nil {
		s.succeededLocked(e, rec, finishedAt)
	} else {
		s.failedLocked(e, rec, finishedAt, err)
	}
	if s.stopped {
		e.state.State = PhaseStopped
		e.state.NextRunAt = nil
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordSchedulerRun(s.name+":"+id, status, duration.Seconds())
}

// invoke runs the task under the run timeout and turns panics into errors
func (s *Scheduler) invoke(parent context.Context, task Task) (err error) {
	ctx := parent
	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.config.RunTimeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return task.Run(ctx)
}

func (s *Scheduler) succeededLocked(e *taskEntry, rec RunRecord, now time.Time) {
	rec.Status = "ok"
	e.state.record(rec)
	e.state.ConsecutiveFailures = 0
	e.state.RetriesInCurrentCycle = 0
	e.state.GaveUpInCurrentCycle = false
	e.state.LastSuccessAt = &now
	e.state.LastError = ""
	e.state.TotalRefreshes++
	e.state.State = PhaseScheduled

	s.scheduleLocked(e, s.interval(e.task)+s.jitter(s.config.JitterMax), ModeScheduled)

	s.logger.Debug("scheduler_run_ok", "scheduler", s.name, "task", e.task.ID,
		"mode", rec.Mode, "duration_ms", rec.DurationMs)
}

func (s *Scheduler) failedLocked(e *taskEntry, rec RunRecord, now time.Time, err error) {
	rec.Status = "error"
	rec.Error = err.Error()
	e.state.record(rec)
	e.state.ConsecutiveFailures++
	e.state.TotalFailures++
	e.state.LastFailureAt = &now
	e.state.LastError = err.Error()

	// the threshold counts failures in this cycle, so a new cycle retries again
	if e.state.RetriesInCurrentCycle+1 >= s.config.MaxConsecutiveFailures {
		e.state.GaveUpInCurrentCycle = true
		e.state.RetriesInCurrentCycle = 0
		e.state.State = PhaseGaveUp

		remaining := s.interval(e.task) - now.Sub(e.state.CycleStart)
		if remaining < 0 {
			remaining = 0
		}
		s.scheduleLocked(e, remaining+s.jitter(s.config.JitterMax), ModeScheduled)

		s.logger.Warn("scheduler_gave_up", "scheduler", s.name, "task", e.task.ID,
			"consecutive_failures", e.state.ConsecutiveFailures, "error", err)
		return
	}

	e.state.RetriesInCurrentCycle++
	e.state.State = PhaseRetrying
	s.scheduleLocked(e, s.config.RetryInterval, ModeRetry)

	s.logger.Warn("scheduler_run_failed", "scheduler", s.name, "task", e.task.ID,
		"mode", rec.Mode, "consecutive_failures", e.state.ConsecutiveFailures, "error", err)
}

func (s *Scheduler) interval(t Task) time.Duration {
	if t.Interval > 0 {
		return t.Interval
	}
	return s.config.RefreshInterval
}

func (s *Scheduler) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(s.rand() * float64(max))
}
