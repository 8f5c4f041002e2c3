package scheduler

import "time"

// Phase is where a task sits in its refresh state machine
type Phase string

const (
	PhaseScheduled Phase = "scheduled"
	PhaseRunning   Phase = "running"
	PhaseRetrying  Phase = "retrying"
	PhaseGaveUp    Phase = "gave_up"
	PhaseStopped   Phase = "stopped"
)

// Mode says why a run happened
type Mode string

const (
	ModeInitial   Mode = "initial"
	ModeScheduled Mode = "scheduled"
	ModeRetry     Mode = "retry"
)

const historySize = 3

// RunRecord is one entry of a task's run history
type RunRecord struct {
	At         time.Time `json:"at"`
	Status     string    `json:"status"`
	Mode       Mode      `json:"mode"`
	DurationMs int64     `json:"durationMs"`
	Error      string    `json:"error,omitempty"`
}

// SourceRefreshState is the bookkeeping of one task. Only the task's own
// run path mutates it; Snapshot hands out copies.
type SourceRefreshState struct {
	ID                    string      `json:"id"`
	State                 Phase       `json:"state"`
	NextRunAt             *time.Time  `json:"nextRunAt,omitempty"`
	LastSuccessAt         *time.Time  `json:"lastSuccessAt,omitempty"`
	LastFailureAt         *time.Time  `json:"lastFailureAt,omitempty"`
	LastError             string      `json:"lastError,omitempty"`
	ConsecutiveFailures   int         `json:"consecutiveFailures"`
	RetriesInCurrentCycle int         `json:"retriesInCurrentCycle"`
	TotalRefreshes        int         `json:"totalRefreshes"`
	TotalFailures         int         `json:"totalFailures"`
	GaveUpInCurrentCycle  bool        `json:"gaveUpInCurrentCycle"`
	CycleStart            time.Time   `json:"cycleStart"`
	History               []RunRecord `json:"history"`
}

func (s *SourceRefreshState) record(r RunRecord) {
	s.History = append(s.History, r)
	if len(s.History) > historySize {
		s.History = s.History[len(s.History)-historySize:]
	}
}

func (s SourceRefreshState) clone() SourceRefreshState {
	out := s
	out.NextRunAt = copyTime(s.NextRunAt)
	out.LastSuccessAt = copyTime(s.LastSuccessAt)
	out.LastFailureAt = copyTime(s.LastFailureAt)
	out.History = append([]RunRecord(nil), s.History...)
	if out.History == nil {
		out.History = []RunRecord{}
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
