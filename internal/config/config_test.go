package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
logging:
  development: false
  level: debug
watch:
  refresh_interval_seconds: 60
  workdir: /var/lib/fetchd
  targets:
    - url: https://shop.example/rtx3080
      nickname: rtx3080
      backend: http
    - url: https://shop.example/ps5
      nickname: ps5
      backend: chromedp
http:
  user_agent: custom-agent
  referer: https://example.com
headless:
  enabled: true
  max_parallel: 2
rod:
  enabled: true
lean:
  addr: 10.0.0.5:3080
stealth:
  patch_driver: true
  driver_paths: ["/opt/chromedriver"]
artifacts:
  gcs_bucket: fetchd-pages
  prefix: snapshots
history:
  dsn: postgres://fetchd@localhost/fetchd
  table: fetch_log
events:
  pubsub:
    project_id: my-project
    topic_name: fetch-events
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Logging.Development {
		t.Error("logging.development should be false")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
	if got := cfg.RefreshInterval(); got != time.Minute {
		t.Errorf("RefreshInterval() = %v, want 1m", got)
	}
	if len(cfg.Watch.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(cfg.Watch.Targets))
	}
	if cfg.Watch.Targets[1].Backend != "chromedp" {
		t.Errorf("targets[1].backend = %q, want chromedp", cfg.Watch.Targets[1].Backend)
	}
	if cfg.HTTP.UserAgent != "custom-agent" {
		t.Errorf("http.user_agent = %q", cfg.HTTP.UserAgent)
	}
	if !cfg.Headless.Enabled || cfg.Headless.MaxParallel != 2 {
		t.Errorf("headless config = %+v", cfg.Headless)
	}
	if !cfg.Rod.Enabled {
		t.Error("rod.enabled should be true")
	}
	if cfg.Lean.Addr != "10.0.0.5:3080" {
		t.Errorf("lean.addr = %q", cfg.Lean.Addr)
	}
	if !cfg.Stealth.PatchDriver || len(cfg.Stealth.DriverPaths) != 1 {
		t.Errorf("stealth config = %+v", cfg.Stealth)
	}
	if cfg.Artifacts.GCSBucket != "fetchd-pages" {
		t.Errorf("artifacts.gcs_bucket = %q", cfg.Artifacts.GCSBucket)
	}
	if cfg.History.Table != "fetch_log" {
		t.Errorf("history.table = %q", cfg.History.Table)
	}
	if cfg.Events.PubSub.TopicName != "fetch-events" {
		t.Errorf("events.pubsub.topic_name = %q", cfg.Events.PubSub.TopicName)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Watch.RefreshIntervalSeconds != 30 {
		t.Errorf("refresh_interval_seconds = %d, want 30", cfg.Watch.RefreshIntervalSeconds)
	}
	if cfg.Lean.Addr != "127.0.0.1:3080" {
		t.Errorf("lean.addr = %q", cfg.Lean.Addr)
	}
	if cfg.HTTP.Referer != "https://google.com" {
		t.Errorf("http.referer = %q", cfg.HTTP.Referer)
	}
	if cfg.Headless.Enabled {
		t.Error("headless should default off")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Server: ServerConfig{Port: 8080},
			Watch: WatchConfig{
				RefreshIntervalSeconds: 30,
				Workdir:                "/tmp/fetchd",
			},
			Lean: LeanConfig{Addr: "127.0.0.1:3080"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"zero interval", func(c *Config) { c.Watch.RefreshIntervalSeconds = 0 }},
		{"empty workdir", func(c *Config) { c.Watch.Workdir = "" }},
		{"empty lean addr", func(c *Config) { c.Lean.Addr = "" }},
		{"negative max parallel", func(c *Config) { c.Headless.MaxParallel = -1 }},
		{"target missing url", func(c *Config) {
			c.Watch.Targets = []WatchTarget{{Nickname: "a", Backend: "http"}}
		}},
		{"target missing backend", func(c *Config) {
			c.Watch.Targets = []WatchTarget{{URL: "https://x", Nickname: "a"}}
		}},
		{"duplicate nicknames", func(c *Config) {
			c.Watch.Targets = []WatchTarget{
				{URL: "https://x", Nickname: "a", Backend: "http"},
				{URL: "https://y", Nickname: "a", Backend: "http"},
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
