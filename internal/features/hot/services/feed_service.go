package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"hot-rank/internal/cache"
	"hot-rank/internal/core"
	"hot-rank/internal/features/hot/models"
	"hot-rank/internal/features/hot/sources"
	"hot-rank/internal/metrics"
)

// FeedService serves normalized feeds out of the SWR cache, fetching from
// the source adapters on a miss
type FeedService struct {
	cache        *cache.SWR[models.SourcePayload]
	adapters     map[string]sources.Adapter
	order        []string
	fetchTimeout time.Duration
	clock        clock.Clock
	logger       *core.Logger
}

// NewFeedService creates a feed service. Only catalogue sources with an
// adapter are served, in catalogue order.
func NewFeedService(swr *cache.SWR[models.SourcePayload], adapters map[string]sources.Adapter, fetchTimeout time.Duration, clk clock.Clock, logger *core.Logger) *FeedService {
	if clk == nil {
		clk = clock.WallClock
	}

	var order []string
	for _, id := range models.SourceIDs() {
		if _, ok := adapters[id]; ok {
			order = append(order, id)
		}
	}

	return &FeedService{
		cache:        swr,
		adapters:     adapters,
		order:        order,
		fetchTimeout: fetchTimeout,
		clock:        clk,
		logger:       logger,
	}
}

// ListSources returns the catalogue entries this service can serve
func (s *FeedService) ListSources() []models.SourceDefinition {
	defs := make([]models.SourceDefinition, 0, len(s.order))
	for _, def := range models.Sources() {
		if s.Supports(def.ID) {
			defs = append(defs, def)
		}
	}
	return defs
}

// SourceIDs returns the served source ids in catalogue order
func (s *FeedService) SourceIDs() []string {
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

// Supports reports whether source has an adapter
func (s *FeedService) Supports(source string) bool {
	_, ok := s.adapters[source]
	return ok
}

func cacheKey(source string) string {
	return source + ":json:"
}

// GetStandardFeed returns the feed of one source. A fresh cache entry is
// served as is; a stale one is served while a single background refresh
// repairs it; a miss or NoCache fetches synchronously.
func (s *FeedService) GetStandardFeed(ctx context.Context, source string, opts models.StandardOptions) (*models.HotFeed, error) {
	if !s.Supports(source) {
		return nil, core.NewNotFoundError(fmt.Sprintf("Source %q not found", source), nil)
	}
	key := cacheKey(source)

	// a caller who stops waiting does not cancel the fetch; fetchTimeout bounds it
	loadCtx := context.WithoutCancel(ctx)

	var feed *models.HotFeed
	if opts.NoCache {
		entry, err := s.load(loadCtx, source)
		if err != nil {
			return nil, err
		}
		feed = Normalize(source, entry.Value, false, sources.FormatISO(entry.UpdatedAt))
	} else {
		result := s.cache.Get(ctx, key)
		switch result.State {
		case cache.StateFresh:
			feed = Normalize(source, result.Entry.Value, true, sources.FormatISO(result.Entry.UpdatedAt))
		case cache.StateStale:
			s.cache.ScheduleRefresh(ctx, key, func(ctx context.Context) error {
				return s.RefreshSource(ctx, source)
			})
			feed = Normalize(source, result.Entry.Value, true, sources.FormatISO(result.Entry.UpdatedAt))
		default:
			entry, err := s.load(loadCtx, source)
			if err != nil {
				return nil, err
			}
			feed = Normalize(source, entry.Value, false, sources.FormatISO(entry.UpdatedAt))
		}
	}

	if opts.Limit > 0 && len(feed.Items) > opts.Limit {
		feed.Items = feed.Items[:opts.Limit]
		feed.Total = len(feed.Items)
	}
	return feed, nil
}

// RefreshSource fetches source and writes the payload through the cache.
// It is the run function of the warming scheduler and of stale refreshes.
func (s *FeedService) RefreshSource(ctx context.Context, source string) error {
	if !s.Supports(source) {
		return core.NewNotFoundError(fmt.Sprintf("Source %q not found", source), nil)
	}
	_, err := s.load(ctx, source)
	return err
}

func (s *FeedService) load(ctx context.Context, source string) (*cache.Entry[models.SourcePayload], error) {
	payload, err := s.fetch(ctx, source)
	if err != nil {
		return nil, core.NewUpstreamError(err)
	}
	return s.cache.Set(ctx, cacheKey(source), *payload), nil
}

func (s *FeedService) fetch(ctx context.Context, source string) (*models.SourcePayload, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	payload, err := s.adapters[source].Fetch(fetchCtx)
	if err == nil && (payload == nil || len(payload.Data) == 0) {
		err = fmt.Errorf("fetch %s: %w", source, sources.ErrNoItems)
	}
	metrics.RecordSourceFetch(source, err)
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", context.DeadlineExceeded, s.fetchTimeout, err)
		}
		return nil, err
	}
	return payload, nil
}

// GetAggregateFeed merges the feeds of several sources. Failed sources are
// reported, not raised. Duplicates keep the first item in candidate order
// and the result is sorted newest first with undated items last.
func (s *FeedService) GetAggregateFeed(ctx context.Context, opts models.AggregateOptions) (*models.AggregateHotData, error) {
	candidates := s.candidates(opts.Sources)
	if len(candidates) == 0 {
		return nil, core.NewValidationError("No valid sources provided", nil)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = models.DefaultAggregateLimit
	}

	feeds := make([]*models.HotFeed, len(candidates))
	errs := make([]error, len(candidates))

	var g errgroup.Group
	for i, source := range candidates {
		g.Go(func() error {
			feeds[i], errs[i] = s.GetStandardFeed(ctx, source, models.StandardOptions{})
			return nil
		})
	}
	_ = g.Wait()

	failed := []string{}
	var merged []models.HotItem
	for i, source := range candidates {
		if errs[i] != nil {
			failed = append(failed, source)
			s.logger.WithContext(ctx).Warn("aggregate_source_failed", "source", source, "error", errs[i])
			continue
		}
		merged = append(merged, feeds[i].Items...)
	}

	items := SortByTimestamp(Dedup(merged))
	if len(items) > limit {
		items = items[:limit]
	}

	return &models.AggregateHotData{
		Sources:       candidates,
		Total:         len(items),
		UpdateTime:    sources.FormatISO(s.clock.Now()),
		FailedSources: failed,
		Items:         items,
	}, nil
}

// candidates keeps the supported requested sources, or every source when
// none were requested
func (s *FeedService) candidates(requested []string) []string {
	if len(requested) == 0 {
		return s.SourceIDs()
	}

	seen := make(map[string]bool)
	var out []string
	for _, source := range requested {
		source = strings.TrimSpace(source)
		if source == "" || seen[source] || !s.Supports(source) {
			continue
		}
		seen[source] = true
		out = append(out, source)
	}
	return out
}

// Dedup keeps the first item per DedupKey
func Dedup(items []models.HotItem) []models.HotItem {
	seen := make(map[string]bool, len(items))
	out := make([]models.HotItem, 0, len(items))
	for _, item := range items {
		key := DedupKey(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

// SortByTimestamp orders items newest first. Undated items sort as the
// epoch, so they come last; ties keep their order.
func SortByTimestamp(items []models.HotItem) []models.HotItem {
	millis := func(item models.HotItem) int64 {
		t, ok := sources.ParseISO(item.Timestamp)
		if !ok {
			return 0
		}
		return t.UnixMilli()
	}
	sort.SliceStable(items, func(i, j int) bool {
		return millis(items[i]) > millis(items[j])
	})
	return items
}

// Health reports the cache tiers
func (s *FeedService) Health(ctx context.Context) cache.Health {
	return s.cache.Health(ctx)
}
