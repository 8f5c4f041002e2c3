package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"hot-rank/internal/core"
	hotmodels "hot-rank/internal/features/hot/models"
	hotservices "hot-rank/internal/features/hot/services"
	"hot-rank/internal/features/hot/sources"
	"hot-rank/internal/features/monitor/models"
	"hot-rank/internal/metrics"
)

// feedLimit caps the items read from each source per run
const feedLimit = 50

// Run reasons
const (
	ReasonStartup  = "startup"
	ReasonSchedule = "schedule"
	ReasonManual   = "manual"
)

// FeedReader is the part of the feed service a monitor reads from
type FeedReader interface {
	GetStandardFeed(ctx context.Context, source string, opts hotmodels.StandardOptions) (*hotmodels.HotFeed, error)
}

// MonitorService runs monitors against the feed service and ranks the
// topics they accumulate
type MonitorService struct {
	feeds    FeedReader
	monitors []*Monitor
	byID     map[string]*Monitor
	store    *StateStore
	clock    clock.Clock
	logger   *core.Logger

	mu      sync.Mutex
	running map[string]bool
}

// NewMonitorService creates a monitor service over loaded definitions
func NewMonitorService(feeds FeedReader, monitors []*Monitor, store *StateStore, clk clock.Clock, logger *core.Logger) *MonitorService {
	if clk == nil {
		clk = clock.WallClock
	}
	byID := make(map[string]*Monitor, len(monitors))
	for _, m := range monitors {
		byID[m.ID] = m
	}
	return &MonitorService{
		feeds:    feeds,
		monitors: monitors,
		byID:     byID,
		store:    store,
		clock:    clk,
		logger:   logger,
		running:  make(map[string]bool),
	}
}

// ListMonitors returns every configured monitor in config order
func (s *MonitorService) ListMonitors() []models.MonitorSummary {
	out := make([]models.MonitorSummary, len(s.monitors))
	for i, m := range s.monitors {
		out[i] = m.Summary()
	}
	return out
}

// Monitors returns the loaded monitors
func (s *MonitorService) Monitors() []*Monitor {
	return s.monitors
}

func (s *MonitorService) lookup(id string) (*Monitor, error) {
	m, ok := s.byID[id]
	if !ok {
		return nil, core.NewNotFoundError(fmt.Sprintf("Monitor %q not found", id), nil)
	}
	return m, nil
}

// RunMonitor runs one cycle of a monitor. It does nothing when the monitor
// is disabled or a cycle for it is already in flight, and reports whether
// a cycle ran.
func (s *MonitorService) RunMonitor(ctx context.Context, id, reason string) (bool, error) {
	m, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	if !m.Enabled {
		return false, nil
	}

	s.mu.Lock()
	if s.running[id] {
		s.mu.Unlock()
		return false, nil
	}
	s.running[id] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
	}()

	logger := s.logger.WithContext(ctx)
	start := s.clock.Now()
	topics, err := s.runOnce(ctx, m)
	if err != nil {
		metrics.MonitorRuns.WithLabelValues(id, "error").Inc()
		logger.Warn("monitor_run_failed", "monitor", id, "reason", reason, "error", err)
		return true, err
	}

	metrics.MonitorRuns.WithLabelValues(id, "ok").Inc()
	metrics.MonitorTopics.WithLabelValues(id).Set(float64(s.store.Count(id)))
	logger.Info("monitor_run_ok",
		"monitor", id,
		"reason", reason,
		"matched", topics,
		"duration", s.clock.Now().Sub(start),
	)
	return true, nil
}

type matchedTopic struct {
	key     string
	item    hotmodels.HotItem
	sources []string
	reasons []string
}

func (s *MonitorService) runOnce(ctx context.Context, m *Monitor) (int, error) {
	feeds := make([]*hotmodels.HotFeed, len(m.Sources))
	errs := make([]error, len(m.Sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, source := range m.Sources {
		g.Go(func() error {
			feeds[i], errs[i] = s.feeds.GetStandardFeed(gctx, source, hotmodels.StandardOptions{Limit: feedLimit})
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for i, err := range errs {
		if err != nil {
			failed = append(failed, m.Sources[i])
		}
	}
	if len(failed) == len(m.Sources) {
		return 0, core.NewUpstreamError(fmt.Errorf("all sources failed for monitor %s: %w", m.ID, errors.Join(errs...)))
	}
	if len(failed) > 0 {
		s.logger.WithContext(ctx).Warn("monitor_source_fetch_partial_failure",
			"monitor", m.ID,
			"failedSources", failed,
			"error", errors.Join(errs...),
		)
	}

	matched := make(map[string]*matchedTopic)
	var order []string
	for i, feed := range feeds {
		if feed == nil {
			continue
		}
		source := m.Sources[i]
		for _, item := range feed.Items {
			ok, reasons := m.Match(item.Title, item.Desc)
			if !ok {
				continue
			}

			key := hotservices.DedupKey(item)
			topic, exists := matched[key]
			if !exists {
				matched[key] = &matchedTopic{
					key:     key,
					item:    item,
					sources: []string{source},
					reasons: union(nil, reasons),
				}
				order = append(order, key)
				continue
			}
			topic.sources = union(topic.sources, []string{source})
			topic.reasons = union(topic.reasons, reasons)
			if topic.item.URL == "" {
				topic.item.URL = item.URL
			}
			if topic.item.MobileURL == "" {
				topic.item.MobileURL = item.MobileURL
			}
			if topic.item.Desc == "" {
				topic.item.Desc = item.Desc
			}
		}
	}

	now := s.clock.Now().UTC()
	cutoff := now.Add(-m.Scoring.Window())
	for _, key := range order {
		topic := matched[key]
		prev, exists := s.store.Get(m.ID, key)

		occurrences := append(prev.Occurrences, now.UnixMilli())
		sort.Slice(occurrences, func(i, j int) bool { return occurrences[i] < occurrences[j] })

		record := models.TopicStateRecord{
			MonitorID:   m.ID,
			Key:         key,
			Title:       topic.item.Title,
			URL:         topic.item.URL,
			MobileURL:   topic.item.MobileURL,
			Desc:        topic.item.Desc,
			Sources:     union(prev.Sources, topic.sources),
			FirstSeenAt: now,
			LastSeenAt:  now,
			SeenCount:   prev.SeenCount + 1,
			Occurrences: pruneOccurrences(occurrences, cutoff),
			MatchReason: union(prev.MatchReason, topic.reasons),
		}
		if exists && !prev.FirstSeenAt.IsZero() {
			record.FirstSeenAt = prev.FirstSeenAt
		}
		s.store.Put(record)
	}

	if err := s.store.Save(now); err != nil {
		return 0, core.NewInternalError("Failed to save monitor state", err)
	}
	return len(order), nil
}

// union appends the values of add missing from base, keeping first-seen order
func union(base, add []string) []string {
	out := append([]string{}, base...)
	for _, v := range add {
		found := false
		for _, existing := range out {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			out = append(out, v)
		}
	}
	return out
}

// ListTopics ranks a monitor's stored topics, optionally running the
// monitor first. A failed refresh is returned to the caller.
func (s *MonitorService) ListTopics(ctx context.Context, id string, opts models.ListOptions) (*models.TopicsResponse, error) {
	m, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	if opts.Refresh {
		if _, err := s.RunMonitor(ctx, id, ReasonManual); err != nil {
			return nil, err
		}
	}

	minCount := opts.MinCount
	if minCount <= 0 {
		minCount = m.Scoring.PersistenceThreshold
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = models.DefaultTopicsLimit
	}

	now := s.clock.Now().UTC()
	records := s.store.List(id, now.Add(-m.Scoring.Window()))
	return &models.TopicsResponse{
		MonitorID:   id,
		GeneratedAt: sources.FormatISO(now),
		Items:       rankTopics(records, m.Scoring, now, max(1, minCount), max(1, limit), hotmodels.IsSupportedSource),
	}, nil
}

// BuildRSS renders a monitor's ranked topics as RSS 2.0. requestURL is the
// absolute URL of the feed. Limit defaults to the monitor's RSS topN.
func (s *MonitorService) BuildRSS(ctx context.Context, id, requestURL string, opts models.ListOptions) (string, error) {
	m, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	if !m.Outputs.RSS.Enabled {
		return "", core.NewNotFoundError(fmt.Sprintf("RSS output is disabled for monitor %q", id), nil)
	}
	if opts.Limit <= 0 {
		opts.Limit = m.Outputs.RSS.TopN
	}

	topics, err := s.ListTopics(ctx, id, opts)
	if err != nil {
		return "", err
	}
	return renderRSS(m.MonitorDefinition, topics.Items, requestURL, s.clock.Now())
}

// Running reports whether a monitor has a cycle in flight
func (s *MonitorService) Running(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[id]
}
