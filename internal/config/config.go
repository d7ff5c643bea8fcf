// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Watch     WatchConfig     `mapstructure:"watch"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Rod       RodConfig       `mapstructure:"rod"`
	Lean      LeanConfig      `mapstructure:"lean"`
	Stealth   StealthConfig   `mapstructure:"stealth"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	History   HistoryConfig   `mapstructure:"history"`
	Events    EventsConfig    `mapstructure:"events"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// WatchConfig governs the polling loop.
type WatchConfig struct {
	// RefreshIntervalSeconds is the pause between passes; the per-fetch
	// timeout is derived from it with a 15 second floor.
	RefreshIntervalSeconds int           `mapstructure:"refresh_interval_seconds"`
	Workdir                string        `mapstructure:"workdir"`
	Targets                []WatchTarget `mapstructure:"targets"`
}

// WatchTarget is one polled page.
type WatchTarget struct {
	URL      string `mapstructure:"url"`
	Nickname string `mapstructure:"nickname"`
	Backend  string `mapstructure:"backend"`
}

// HTTPConfig tunes the plain HTTP backend.
type HTTPConfig struct {
	UserAgent string `mapstructure:"user_agent"`
	Referer   string `mapstructure:"referer"`
}

// HeadlessConfig configures the chromedp backend.
type HeadlessConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MaxParallel int  `mapstructure:"max_parallel"`
}

// RodConfig configures the rod backend.
type RodConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LeanConfig points at the external fetch service.
type LeanConfig struct {
	Addr string `mapstructure:"addr"`
}

// StealthConfig controls chromedriver automation-marker patching.
type StealthConfig struct {
	PatchDriver bool     `mapstructure:"patch_driver"`
	DriverPaths []string `mapstructure:"driver_paths"`
}

// ArtifactsConfig sets the optional GCS mirror for saved pages.
type ArtifactsConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// HistoryConfig controls access to the relational database.
type HistoryConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// EventsConfig holds metadata for publish-subscribe notifications.
type EventsConfig struct {
	PubSub PubSubConfig `mapstructure:"pubsub"`
}

// PubSubConfig names the Google Cloud Pub/Sub destination.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// RefreshInterval returns the watch cadence as a duration.
func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.Watch.RefreshIntervalSeconds) * time.Second
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FETCHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("watch.refresh_interval_seconds", 30)
	v.SetDefault("watch.workdir", "/tmp/fetchd")
	v.SetDefault("http.user_agent",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4427.0 Safari/537.36")
	v.SetDefault("http.referer", "https://google.com")
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("rod.enabled", false)
	v.SetDefault("lean.addr", "127.0.0.1:3080")
	v.SetDefault("stealth.patch_driver", false)
	v.SetDefault("artifacts.prefix", "pages")
	v.SetDefault("history.table", "fetches")
	v.SetDefault("history.max_conns", 4)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Watch.RefreshIntervalSeconds <= 0 {
		return fmt.Errorf("watch.refresh_interval_seconds must be > 0")
	}
	if c.Watch.Workdir == "" {
		return fmt.Errorf("watch.workdir is required")
	}
	if c.Lean.Addr == "" {
		return fmt.Errorf("lean.addr is required")
	}
	if c.Headless.MaxParallel < 0 {
		return fmt.Errorf("headless.max_parallel must be >= 0")
	}
	seen := make(map[string]struct{}, len(c.Watch.Targets))
	for i, target := range c.Watch.Targets {
		if target.URL == "" {
			return fmt.Errorf("watch.targets[%d].url is required", i)
		}
		if target.Nickname == "" {
			return fmt.Errorf("watch.targets[%d].nickname is required", i)
		}
		if target.Backend == "" {
			return fmt.Errorf("watch.targets[%d].backend is required", i)
		}
		if _, dup := seen[target.Nickname]; dup {
			return fmt.Errorf("duplicate watch nickname %q", target.Nickname)
		}
		seen[target.Nickname] = struct{}{}
	}
	return nil
}
