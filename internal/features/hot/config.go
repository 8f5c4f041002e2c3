package hot

import (
	"fmt"
	"time"

	"hot-rank/internal/core"
	"hot-rank/internal/scheduler"
)

// Config represents hot feature configuration
type Config struct {
	FetchTimeout   time.Duration
	RequestTimeout time.Duration

	CacheTTL    time.Duration
	CacheStale  time.Duration
	Secondary   string
	RedisURL    string
	RedisPrefix string
	DBPath      string

	ZhihuCookie       string
	BilibiliMirrorURL string

	SchedulerEnabled bool
	Scheduler        scheduler.Config
}

// NewConfig creates hot config from core config
func NewConfig(coreConfig *core.Config) *Config {
	seconds := func(n int) time.Duration { return time.Duration(n) * time.Second }
	fetchTimeout := coreConfig.FetchTimeout()

	return &Config{
		FetchTimeout:      fetchTimeout,
		RequestTimeout:    coreConfig.RequestTimeout(),
		CacheTTL:          seconds(coreConfig.Cache.TTLSeconds),
		CacheStale:        seconds(coreConfig.Cache.StaleSeconds),
		Secondary:         coreConfig.Cache.Secondary,
		RedisURL:          coreConfig.Cache.RedisURL,
		RedisPrefix:       coreConfig.Cache.RedisPrefix,
		DBPath:            coreConfig.Cache.DBPath,
		ZhihuCookie:       coreConfig.Upstream.ZhihuCookie,
		BilibiliMirrorURL: coreConfig.Upstream.BilibiliMirrorAPIURL,
		SchedulerEnabled:  coreConfig.Scheduler.Enabled,
		Scheduler: scheduler.Config{
			RefreshInterval:        seconds(coreConfig.Scheduler.RefreshIntervalSeconds),
			JitterMax:              seconds(coreConfig.Scheduler.JitterSeconds),
			RetryInterval:          seconds(coreConfig.Scheduler.RetryIntervalSeconds),
			MaxConsecutiveFailures: coreConfig.Scheduler.MaxConsecutiveFailures,
			StartupJitterMax:       seconds(coreConfig.Scheduler.StartupJitterSeconds),
			// the fetch budget plus room for the cache write
			RunTimeout: fetchTimeout + 2*time.Second,
		},
	}
}

// Validate validates the hot configuration
func (c *Config) Validate() error {
	if c.FetchTimeout <= 0 || c.RequestTimeout <= 0 {
		return fmt.Errorf("fetch and request timeouts must be positive")
	}

	if c.CacheTTL <= 0 || c.CacheStale < 0 {
		return fmt.Errorf("cache ttl must be positive and the stale window not negative")
	}

	switch c.Secondary {
	case "", core.SecondaryNone, core.SecondaryRedis, core.SecondarySQLite:
	default:
		return fmt.Errorf("unknown cache secondary tier: %q", c.Secondary)
	}

	if c.SchedulerEnabled && (c.Scheduler.RefreshInterval <= 0 || c.Scheduler.RetryInterval <= 0) {
		return fmt.Errorf("scheduler intervals must be positive")
	}

	return nil
}
