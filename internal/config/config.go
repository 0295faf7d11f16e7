// Package config defines the process configuration and how it is loaded.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: json or text.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DBDriver is sqlite or postgres.
	DBDriver string `koanf:"db_driver"`

	// DBDSN is passed to the driver unchanged.
	DBDSN string `koanf:"db_dsn"`

	// SettingsFile, when set, serves scoring settings from a watched YAML file
	// instead of the settings table.
	SettingsFile string `koanf:"settings_file"`

	// SettingsCacheTTLSeconds bounds how long a cached setting is trusted.
	SettingsCacheTTLSeconds int `koanf:"settings_cache_ttl_seconds"`

	// RedisAddr enables the shared settings cache when non-empty.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// WorkerCount sets the number of recompute workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the recompute queue.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize caps the number of pending recompute keys remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxRoundWindow caps how many rounds one recompute pass touches.
	MaxRoundWindow int `koanf:"max_round_window"`

	// SeedDemo fills an empty store with a simulated competition at startup.
	SeedDemo bool `koanf:"seed_demo"`

	// Competition, when set, is attached to every metric as the competition label.
	Competition string `koanf:"competition"`

	// MetricsNamespace and MetricsSubsystem prefix every metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`

	// MetricsBuckets overrides the latency histogram buckets, in milliseconds.
	MetricsBuckets []float64 `koanf:"metrics_buckets"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "json",
		Addr:                    ":9080",
		DBDriver:                "sqlite",
		DBDSN:                   "file:rampart.db?_pragma=busy_timeout(5000)",
		SettingsCacheTTLSeconds: 30,
		WorkerCount:             runtime.NumCPU(),
		QueueSize:               1024,
		DedupeSize:              50_000,
		MaxRoundWindow:          1000,
		MetricsNamespace:        "rampart",
		MetricsSubsystem:        "scoring",
	}
}

// SettingsCacheTTL returns the cache TTL as a duration.
func (c *Config) SettingsCacheTTL() time.Duration {
	return time.Duration(c.SettingsCacheTTLSeconds) * time.Second
}

// Validate reports the first field that cannot be used.
func (c *Config) Validate(_ context.Context) error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBDSN == "":
		return fmt.Errorf("%w: db_dsn must not be empty", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive, got %d", ErrInvalidConfig, c.DedupeSize)
	case c.MaxRoundWindow <= 0:
		return fmt.Errorf("%w: max_round_window must be positive, got %d", ErrInvalidConfig, c.MaxRoundWindow)
	case c.SettingsCacheTTLSeconds < 0:
		return fmt.Errorf("%w: settings_cache_ttl_seconds must not be negative", ErrInvalidConfig)
	}
	for i := 1; i < len(c.MetricsBuckets); i++ {
		if c.MetricsBuckets[i] <= c.MetricsBuckets[i-1] {
			return fmt.Errorf("%w: metrics_buckets must be strictly increasing", ErrInvalidConfig)
		}
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
