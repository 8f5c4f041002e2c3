package monitor

import (
	"fmt"
	"time"

	"hot-rank/internal/core"
	"hot-rank/internal/scheduler"
)

// Config represents monitor feature configuration
type Config struct {
	ConfigPath string
	StatePath  string

	SchedulerEnabled bool
	// Scheduler carries the retry and give-up policy; each monitor's
	// interval comes from its definition
	Scheduler scheduler.Config
}

// NewConfig creates monitor config from core config
func NewConfig(coreConfig *core.Config) *Config {
	seconds := func(n int) time.Duration { return time.Duration(n) * time.Second }

	return &Config{
		ConfigPath:       coreConfig.Monitor.ConfigPath,
		StatePath:        coreConfig.Monitor.StatePath,
		SchedulerEnabled: coreConfig.Monitor.Enabled,
		Scheduler: scheduler.Config{
			RefreshInterval:        seconds(coreConfig.Scheduler.RefreshIntervalSeconds),
			JitterMax:              seconds(coreConfig.Scheduler.JitterSeconds),
			RetryInterval:          seconds(coreConfig.Scheduler.RetryIntervalSeconds),
			MaxConsecutiveFailures: coreConfig.Scheduler.MaxConsecutiveFailures,
			StartupJitterMax:       seconds(coreConfig.Monitor.StartupJitterSeconds),
			// every source may miss the cache and fetch synchronously
			RunTimeout: coreConfig.FetchTimeout() + 10*time.Second,
		},
	}
}

// Validate validates the monitor configuration
func (c *Config) Validate() error {
	if c.ConfigPath == "" {
		return fmt.Errorf("monitor config path is required")
	}

	if c.SchedulerEnabled && c.Scheduler.RetryInterval <= 0 {
		return fmt.Errorf("monitor retry interval must be positive")
	}

	return nil
}
