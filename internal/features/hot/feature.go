package hot

import (
	"context"
	"fmt"

	"github.com/juju/clock"

	"hot-rank/internal/cache"
	"hot-rank/internal/core"
	"hot-rank/internal/features/hot/handlers"
	"hot-rank/internal/features/hot/models"
	"hot-rank/internal/features/hot/services"
	"hot-rank/internal/features/hot/sources"
	"hot-rank/internal/scheduler"
)

// Feature represents the hot list feature: source adapters, the SWR cache,
// the warming scheduler and the feed endpoints
type Feature struct {
	*core.BaseFeature
	config        *Config
	cache         *cache.SWR[models.SourcePayload]
	feedService   *services.FeedService
	scheduler     *scheduler.Scheduler
	apiHandler    *handlers.APIHandler
	compatHandler *handlers.CompatHandler
}

// NewFeature creates the hot feature with the real source adapters
func NewFeature(ctx context.Context, logger *core.Logger, config *Config) (*Feature, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	adapters := sources.NewAdapters(sources.NewClient(config.RequestTimeout), sources.Options{
		ZhihuCookie:       config.ZhihuCookie,
		BilibiliMirrorURL: config.BilibiliMirrorURL,
	})
	return NewFeatureWithAdapters(ctx, logger, config, adapters, clock.WallClock)
}

// NewFeatureWithAdapters creates the hot feature around the given adapters
func NewFeatureWithAdapters(ctx context.Context, logger *core.Logger, config *Config, adapters map[string]sources.Adapter, clk clock.Clock) (*Feature, error) {
	base := core.NewBaseFeature("hot", "Trending lists with stale-while-revalidate caching", true, logger)
	featureLogger := base.Logger()

	tier, err := newTier(ctx, config, featureLogger, clk)
	if err != nil {
		return nil, err
	}

	swr := cache.New[models.SourcePayload](cache.Options{
		TTL:         config.CacheTTL,
		StaleWindow: config.CacheStale,
		Clock:       clk,
	}, tier, featureLogger)

	feedService := services.NewFeedService(swr, adapters, config.FetchTimeout, clk, featureLogger)

	var tasks []scheduler.Task
	for _, id := range feedService.SourceIDs() {
		tasks = append(tasks, scheduler.Task{
			ID: id,
			Run: func(ctx context.Context) error {
				return feedService.RefreshSource(ctx, id)
			},
		})
	}
	sched := scheduler.New("sources", config.Scheduler, tasks,
		scheduler.WithClock(clk),
		scheduler.WithLogger(featureLogger),
	)

	return &Feature{
		BaseFeature:   base,
		config:        config,
		cache:         swr,
		feedService:   feedService,
		scheduler:     sched,
		apiHandler:    handlers.NewAPIHandler(featureLogger, feedService),
		compatHandler: handlers.NewCompatHandler(featureLogger, feedService),
	}, nil
}

func newTier(ctx context.Context, config *Config, logger *core.Logger, clk clock.Clock) (cache.Tier, error) {
	switch config.Secondary {
	case core.SecondaryRedis:
		tier, err := cache.NewRedisTier(config.RedisURL, config.RedisPrefix)
		if err != nil {
			return nil, core.NewConfigurationError("invalid redis cache tier", err)
		}
		return tier, nil
	case core.SecondarySQLite:
		db, err := core.OpenDatabase(config.DBPath, logger)
		if err != nil {
			return nil, core.NewDatabaseError("failed to open cache database", err)
		}
		tier, err := cache.NewSQLiteTier(ctx, db, logger, clk)
		if err != nil {
			db.Close()
			return nil, core.NewDatabaseError("failed to prepare cache database", err)
		}
		return tier, nil
	default:
		return cache.NoopTier{}, nil
	}
}

// FeedService exposes the feed service to features built on top of it
func (f *Feature) FeedService() *services.FeedService {
	return f.feedService
}

// Init starts the warming scheduler
func (f *Feature) Init(ctx context.Context) error {
	if err := f.BaseFeature.Init(ctx); err != nil {
		return err
	}

	if f.config.SchedulerEnabled {
		f.scheduler.Start(ctx)
	}
	f.Logger().Info("Hot feature initialized",
		"sources", len(f.feedService.SourceIDs()),
		"secondary", f.cache.Health(ctx).SecondaryKind,
		"scheduler", f.config.SchedulerEnabled,
	)
	return nil
}

// Routes returns the HTTP routes for the hot feature
func (f *Feature) Routes() []core.Route {
	return []core.Route{
		{Method: "GET", Path: "/api/v1/sources", Handler: f.apiHandler.ListSources},
		{Method: "GET", Path: "/api/v1/hot/aggregate", Handler: f.apiHandler.GetAggregate, Limiter: "aggregate"},
		{Method: "GET", Path: "/api/v1/hot/{source}", Handler: f.apiHandler.GetFeed},

		// compat routes
		{Method: "GET", Path: "/all", Handler: f.compatHandler.ListRoutes},
		{Method: "GET", Path: "/{source}", Handler: f.compatHandler.GetSource},
	}
}

// Health reports the cache tiers and every source's refresh state
func (f *Feature) Health(ctx context.Context) (any, bool) {
	states := f.scheduler.Snapshot()
	degraded := false
	for _, state := range states {
		if state.GaveUpInCurrentCycle {
			degraded = true
		}
	}

	return map[string]any{
		"cache": f.cache.Health(ctx),
		"scheduler": map[string]any{
			"enabled": f.config.SchedulerEnabled,
			"sources": states,
		},
	}, degraded
}

// Shutdown stops the scheduler and releases the cache tier
func (f *Feature) Shutdown(ctx context.Context) error {
	f.scheduler.Stop()
	if err := f.cache.Close(); err != nil {
		return fmt.Errorf("close cache tier: %w", err)
	}
	return f.BaseFeature.Shutdown(ctx)
}
