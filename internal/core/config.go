package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the main configuration for the hot-rank service
type Config struct {
	Server    ServerConfig    `json:"server"`
	Log       LogConfig       `json:"log"`
	Upstream  UpstreamConfig  `json:"upstream"`
	Cache     CacheConfig     `json:"cache"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Monitor   MonitorConfig   `json:"monitor"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port           int    `json:"port"`
	Host           string `json:"host"`
	CORSOrigin     string `json:"cors_origin"`
	MetricsEnabled bool   `json:"metrics_enabled"`
}

// LogConfig controls the slog handler
type LogConfig struct {
	Level string `json:"level"`
}

// UpstreamConfig contains the timeouts and optional inputs used by source adapters
type UpstreamConfig struct {
	RequestTimeoutMs     int    `json:"request_timeout_ms"`
	FetchTimeoutMs       int    `json:"fetch_timeout_ms"`
	ZhihuCookie          string `json:"-"`
	BilibiliMirrorAPIURL string `json:"bilibili_mirror_api_url"`
}

// Secondary cache tier kinds
const (
	SecondaryNone   = "none"
	SecondaryRedis  = "redis"
	SecondarySQLite = "sqlite"
)

// CacheConfig contains SWR cache configuration
type CacheConfig struct {
	TTLSeconds   int    `json:"ttl_seconds"`
	StaleSeconds int    `json:"stale_seconds"`
	Secondary    string `json:"secondary"`
	RedisURL     string `json:"-"`
	RedisPrefix  string `json:"redis_prefix"`
	DBPath       string `json:"db_path"`
}

// SchedulerConfig contains background refresh configuration
type SchedulerConfig struct {
	Enabled                bool `json:"enabled"`
	RefreshIntervalSeconds int  `json:"refresh_interval_seconds"`
	JitterSeconds          int  `json:"jitter_seconds"`
	RetryIntervalSeconds   int  `json:"retry_interval_seconds"`
	MaxConsecutiveFailures int  `json:"max_consecutive_failures"`
	StartupJitterSeconds   int  `json:"startup_jitter_seconds"`
}

// MonitorConfig contains topic monitor configuration
type MonitorConfig struct {
	Enabled              bool   `json:"enabled"`
	ConfigPath           string `json:"config_path"`
	StatePath            string `json:"state_path"`
	StartupJitterSeconds int    `json:"startup_jitter_seconds"`
}

// RateLimitConfig contains per-client request budgets
type RateLimitConfig struct {
	WindowMs     int `json:"window_ms"`
	Max          int `json:"max"`
	AggregateMax int `json:"aggregate_max"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	secondary := SecondaryNone
	if getEnvAsBool("USE_REDIS", false) {
		secondary = SecondaryRedis
	}

	config := &Config{
		Server: ServerConfig{
			Port:           getEnvAsInt("PORT", 6688),
			Host:           getEnvOrDefault("HOST", "0.0.0.0"),
			CORSOrigin:     getEnvOrDefault("CORS_ORIGIN", "*"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
		Log: LogConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
		},
		Upstream: UpstreamConfig{
			RequestTimeoutMs:     getEnvAsInt("REQUEST_TIMEOUT_MS", 6000),
			FetchTimeoutMs:       getEnvAsInt("SOURCE_FETCH_TIMEOUT_MS", 8000),
			ZhihuCookie:          getEnvOrDefault("ZHIHU_COOKIE", ""),
			BilibiliMirrorAPIURL: getEnvOrDefault("BILIBILI_MIRROR_API_URL", ""),
		},
		Cache: CacheConfig{
			TTLSeconds:   getEnvAsInt("CACHE_TTL_SECONDS", 300),
			StaleSeconds: getEnvAsInt("CACHE_STALE_SECONDS", 1800),
			Secondary:    strings.ToLower(getEnvOrDefault("CACHE_SECONDARY", secondary)),
			RedisURL:     getEnvOrDefault("REDIS_URL", ""),
			RedisPrefix:  getEnvOrDefault("REDIS_PREFIX", "hot-rank"),
			DBPath:       getEnvOrDefault("CACHE_DB_PATH", "./data/cache.db"),
		},
		Scheduler: SchedulerConfig{
			Enabled:                getEnvAsBool("SCHEDULER_ENABLED", true),
			RefreshIntervalSeconds: getEnvAsInt("SCHEDULER_REFRESH_INTERVAL_SECONDS", 240),
			JitterSeconds:          getEnvAsInt("SCHEDULER_JITTER_SECONDS", 30),
			RetryIntervalSeconds:   getEnvAsInt("SCHEDULER_RETRY_INTERVAL_SECONDS", 60),
			MaxConsecutiveFailures: getEnvAsInt("SCHEDULER_MAX_CONSECUTIVE_FAILURES", 3),
			StartupJitterSeconds:   getEnvAsInt("SCHEDULER_STARTUP_JITTER_SECONDS", 15),
		},
		Monitor: MonitorConfig{
			Enabled:              getEnvAsBool("MONITOR_ENABLED", true),
			ConfigPath:           getEnvOrDefault("MONITOR_CONFIG_PATH", "./config/monitors.json"),
			StatePath:            getEnvOrDefault("MONITOR_STATE_PATH", "./data/monitor-state.json"),
			StartupJitterSeconds: getEnvAsInt("MONITOR_STARTUP_JITTER_SECONDS", 30),
		},
		RateLimit: RateLimitConfig{
			WindowMs:     getEnvAsInt("RATE_LIMIT_WINDOW_MS", 60000),
			Max:          getEnvAsInt("RATE_LIMIT_MAX", 120),
			AggregateMax: getEnvAsInt("AGGREGATE_RATE_LIMIT_MAX", 30),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Upstream.RequestTimeoutMs < 500 {
		return fmt.Errorf("request timeout must be at least 500ms, got %d", c.Upstream.RequestTimeoutMs)
	}

	if c.Upstream.FetchTimeoutMs < c.Upstream.RequestTimeoutMs {
		return fmt.Errorf("source fetch timeout (%dms) must not be shorter than request timeout (%dms)",
			c.Upstream.FetchTimeoutMs, c.Upstream.RequestTimeoutMs)
	}

	if c.Cache.TTLSeconds < 1 || c.Cache.StaleSeconds < 1 {
		return fmt.Errorf("cache ttl and stale windows must be at least 1 second")
	}

	switch c.Cache.Secondary {
	case SecondaryNone:
	case SecondaryRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when the redis cache tier is enabled")
		}
	case SecondarySQLite:
		if c.Cache.DBPath == "" {
			return fmt.Errorf("CACHE_DB_PATH is required when the sqlite cache tier is enabled")
		}
	default:
		return fmt.Errorf("unknown cache secondary tier: %q", c.Cache.Secondary)
	}

	if c.Scheduler.RefreshIntervalSeconds < 1 || c.Scheduler.RetryIntervalSeconds < 1 {
		return fmt.Errorf("scheduler intervals must be at least 1 second")
	}

	if c.Scheduler.JitterSeconds < 0 || c.Scheduler.StartupJitterSeconds < 0 || c.Monitor.StartupJitterSeconds < 0 {
		return fmt.Errorf("jitter values must not be negative")
	}

	if c.Scheduler.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("scheduler max consecutive failures must be at least 1")
	}

	if c.Monitor.Enabled && (c.Monitor.ConfigPath == "" || c.Monitor.StatePath == "") {
		return fmt.Errorf("monitor config and state paths are required when monitors are enabled")
	}

	if c.RateLimit.WindowMs < 1000 || c.RateLimit.Max < 1 || c.RateLimit.AggregateMax < 1 {
		return fmt.Errorf("invalid rate limit settings")
	}

	return nil
}

// FetchTimeout is the total budget of one source adapter fetch
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Upstream.FetchTimeoutMs) * time.Millisecond
}

// RequestTimeout is the budget of a single upstream HTTP request
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Upstream.RequestTimeoutMs) * time.Millisecond
}

// IsFeatureEnabled checks if a feature is enabled
func (c *Config) IsFeatureEnabled(featureName string) bool {
	switch strings.ToLower(featureName) {
	case "hot":
		return true
	case "monitor":
		return c.Monitor.Enabled
	default:
		return false
	}
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultValue
}
