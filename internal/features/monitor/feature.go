package monitor

import (
	"context"
	"sync/atomic"

	"github.com/juju/clock"

	"hot-rank/internal/core"
	hotmodels "hot-rank/internal/features/hot/models"
	"hot-rank/internal/features/monitor/handlers"
	"hot-rank/internal/features/monitor/services"
	"hot-rank/internal/scheduler"
)

// Feature represents the topic monitor feature
type Feature struct {
	*core.BaseFeature
	config     *Config
	service    *services.MonitorService
	scheduler  *scheduler.Scheduler
	apiHandler *handlers.APIHandler
}

// NewFeature loads the monitor definitions and state and creates the feature
func NewFeature(ctx context.Context, logger *core.Logger, config *Config, feeds services.FeedReader) (*Feature, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	monitors, err := services.LoadDefinitions(config.ConfigPath, hotmodels.IsSupportedSource)
	if err != nil {
		return nil, core.NewConfigurationError("invalid monitor config", err)
	}
	return NewFeatureWithMonitors(ctx, logger, config, feeds, monitors, clock.WallClock)
}

// NewFeatureWithMonitors creates the feature around already loaded monitors
func NewFeatureWithMonitors(ctx context.Context, logger *core.Logger, config *Config, feeds services.FeedReader, monitors []*services.Monitor, clk clock.Clock) (*Feature, error) {
	base := core.NewBaseFeature("monitor", "Persistent topic monitors with ranking and RSS", true, logger)
	featureLogger := base.Logger()

	store := services.NewStateStore(config.StatePath, featureLogger)
	if err := store.Load(ctx); err != nil {
		return nil, core.NewInternalError("failed to load monitor state", err)
	}

	service := services.NewMonitorService(feeds, monitors, store, clk, featureLogger)

	var tasks []scheduler.Task
	for _, m := range monitors {
		if !m.Enabled {
			continue
		}
		id := m.ID
		var started atomic.Bool
		tasks = append(tasks, scheduler.Task{
			ID:       id,
			Interval: m.Schedule(),
			Run: func(ctx context.Context) error {
				reason := services.ReasonSchedule
				if !started.Swap(true) {
					reason = services.ReasonStartup
				}
				_, err := service.RunMonitor(ctx, id, reason)
				return err
			},
		})
	}
	sched := scheduler.New("monitors", config.Scheduler, tasks,
		scheduler.WithClock(clk),
		scheduler.WithLogger(featureLogger),
	)

	return &Feature{
		BaseFeature: base,
		config:      config,
		service:     service,
		scheduler:   sched,
		apiHandler:  handlers.NewAPIHandler(featureLogger, service),
	}, nil
}

// Service exposes the monitor service
func (f *Feature) Service() *services.MonitorService {
	return f.service
}

// Init starts the monitor scheduler
func (f *Feature) Init(ctx context.Context) error {
	if err := f.BaseFeature.Init(ctx); err != nil {
		return err
	}

	if f.config.SchedulerEnabled {
		f.scheduler.Start(ctx)
	}
	f.Logger().Info("Monitor feature initialized",
		"monitors", len(f.service.Monitors()),
		"state", f.config.StatePath,
		"scheduler", f.config.SchedulerEnabled,
	)
	return nil
}

// Routes returns the HTTP routes for the monitor feature
func (f *Feature) Routes() []core.Route {
	return []core.Route{
		{Method: "GET", Path: "/api/v1/monitors", Handler: f.apiHandler.ListMonitors},
		{Method: "GET", Path: "/api/v1/monitors/{id}/topics", Handler: f.apiHandler.GetTopics},
		{Method: "GET", Path: "/api/v1/monitors/{id}/rss", Handler: f.apiHandler.GetRSS},
	}
}

// Health reports every monitor task's schedule state. Monitor failures do
// not degrade the service.
func (f *Feature) Health(ctx context.Context) (any, bool) {
	return map[string]any{
		"monitors": map[string]any{
			"enabled": f.config.SchedulerEnabled,
			"tasks":   f.scheduler.Snapshot(),
		},
	}, false
}

// Shutdown stops the monitor scheduler
func (f *Feature) Shutdown(ctx context.Context) error {
	f.scheduler.Stop()
	return f.BaseFeature.Shutdown(ctx)
}
