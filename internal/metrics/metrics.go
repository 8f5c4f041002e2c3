// Package metrics provides Prometheus metrics for hot-rank.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hotrank"

var (
	// CacheLookups counts SWR lookups by resulting state.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total number of cache lookups by state (fresh, stale, miss)",
		},
		[]string{"state"},
	)

	// CacheRefreshes counts background revalidations.
	CacheRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refresh_total",
			Help:      "Total number of background cache refreshes",
		},
		[]string{"status"},
	)

	// SecondaryErrors counts swallowed secondary tier failures.
	SecondaryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "secondary_errors_total",
			Help:      "Total number of secondary cache tier errors",
		},
		[]string{"op"},
	)

	// SchedulerRuns counts scheduler task runs.
	SchedulerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_runs_total",
			Help:      "Total number of scheduled task runs",
		},
		[]string{"task", "status"},
	)

	// SchedulerRunDuration measures scheduler task run duration.
	SchedulerRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_run_duration_seconds",
			Help:      "Duration of scheduled task runs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	// SourceFetches counts adapter fetches.
	SourceFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetch_total",
			Help:      "Total number of source adapter fetches",
		},
		[]string{"source", "status"},
	)

	// MonitorRuns counts monitor run cycles.
	MonitorRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_runs_total",
			Help:      "Total number of monitor run cycles",
		},
		[]string{"monitor", "status"},
	)

	// MonitorTopics tracks how many topics a monitor currently stores.
	MonitorTopics = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_topics",
			Help:      "Number of stored topics per monitor",
		},
		[]string{"monitor"},
	)
)

// RecordSchedulerRun records one scheduler run.
func RecordSchedulerRun(task, status string, seconds float64) {
	SchedulerRuns.WithLabelValues(task, status).Inc()
	SchedulerRunDuration.WithLabelValues(task).Observe(seconds)
}

// RecordSourceFetch records one adapter fetch.
func RecordSourceFetch(source string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	SourceFetches.WithLabelValues(source, status).Inc()
}
