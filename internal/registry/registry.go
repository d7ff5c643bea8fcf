// Package registry assembles the fetch backends from configuration and
// hands them out by name. Construction is eager: a backend that cannot
// start aborts the whole process rather than failing later mid-fetch.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/pagewatch/fetchd/internal/artifact"
	"github.com/pagewatch/fetchd/internal/fetch"
	collyfetcher "github.com/pagewatch/fetchd/internal/fetcher/colly"
	"github.com/pagewatch/fetchd/internal/fetcher/headless"
	"github.com/pagewatch/fetchd/internal/fetcher/lean"
	rodfetcher "github.com/pagewatch/fetchd/internal/fetcher/rod"
	"github.com/pagewatch/fetchd/internal/stealth"
)

// minTimeout is the floor applied to the refresh interval when deriving
// the per-fetch timeout. Pages that render slower than this are not worth
// polling faster than it.
const minTimeout = 15 * time.Second

// Config selects and tunes the backends.
type Config struct {
	// RefreshInterval is the poll cadence; the per-fetch timeout is
	// derived from it, never below minTimeout.
	RefreshInterval time.Duration
	// Workdir is created if absent and holds browser profiles, patched
	// drivers and page artifacts.
	Workdir   string
	UserAgent string
	Referer   string

	// LeanAddr is the endpoint of the external fetch service.
	LeanAddr string

	// HeadlessEnabled turns the chromedp backend on. When off the name
	// stays registered but resolves to an unavailable stub.
	HeadlessEnabled     bool
	HeadlessMaxParallel int

	// RodEnabled turns the rod backend on, same stub rule as above.
	RodEnabled bool

	// StealthPatchDriver rewrites chromedriver automation markers into
	// Workdir at startup.
	StealthPatchDriver bool
	StealthDriverPaths []string

	Artifacts *artifact.Store
	Logger    *zap.Logger
}

// Registry owns the constructed backends.
type Registry struct {
	backends map[string]fetch.Backend
	timeout  time.Duration
	logger   *zap.Logger
}

// EffectiveTimeout derives the shared per-fetch timeout from the refresh
// interval, flooring it at minTimeout.
func EffectiveTimeout(refreshInterval time.Duration) time.Duration {
	if refreshInterval < minTimeout {
		return minTimeout
	}
	return refreshInterval
}

// New builds every backend. Any construction failure is returned and the
// caller is expected to abort startup.
func New(cfg Config) (*Registry, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workdir == "" {
		return nil, fmt.Errorf("workdir is required")
	}
	if err := os.MkdirAll(cfg.Workdir, 0o750); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}

	timeout := EffectiveTimeout(cfg.RefreshInterval)

	if cfg.StealthPatchDriver {
		patched, err := stealth.PatchChromedriver(cfg.StealthDriverPaths, cfg.Workdir, logger)
		if err != nil {
			return nil, fmt.Errorf("patch chromedriver: %w", err)
		}
		logger.Info("patched chromedriver", zap.String("path", patched))
	}

	backends := make(map[string]fetch.Backend)

	backends[collyfetcher.Name] = collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.UserAgent,
		Referer:   cfg.Referer,
		Timeout:   timeout,
		Logger:    logger,
	})

	leanClient, err := lean.New(lean.Config{
		Addr:    cfg.LeanAddr,
		Timeout: timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build lean backend: %w", err)
	}
	backends[lean.Name] = leanClient

	if cfg.HeadlessEnabled {
		chrome, err := headless.New(headless.Config{
			UserAgent:   cfg.UserAgent,
			Timeout:     timeout,
			MaxParallel: cfg.HeadlessMaxParallel,
			UserDataDir: filepath.Join(cfg.Workdir, "chromedp-profile"),
			Artifacts:   cfg.Artifacts,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build chromedp backend: %w", err)
		}
		backends[headless.Name] = chrome
	} else {
		backends[headless.Name] = headless.NewNoop(headless.Name)
	}

	if cfg.RodEnabled {
		rodf, err := rodfetcher.New(rodfetcher.Config{
			UserAgent:   cfg.UserAgent,
			Timeout:     timeout,
			UserDataDir: filepath.Join(cfg.Workdir, "rod-profile"),
			Artifacts:   cfg.Artifacts,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build rod backend: %w", err)
		}
		backends[rodfetcher.Name] = rodf
	} else {
		backends[rodfetcher.Name] = headless.NewNoop(rodfetcher.Name)
	}

	logger.Info("backends ready",
		zap.Strings("names", names(backends)),
		zap.Duration("timeout", timeout),
	)

	return &Registry{backends: backends, timeout: timeout, logger: logger}, nil
}

// Get returns the backend registered under name.
func (r *Registry) Get(name string) (fetch.Backend, error) {
	backend, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (have %v)", name, names(r.backends))
	}
	return backend, nil
}

// Names lists the registered backend names, sorted.
func (r *Registry) Names() []string {
	return names(r.backends)
}

// Timeout is the per-fetch timeout all backends were built with.
func (r *Registry) Timeout() time.Duration {
	return r.timeout
}

// Close shuts down backends that hold long-lived resources.
func (r *Registry) Close() {
	for name, backend := range r.backends {
		closer, ok := backend.(interface{ Close() error })
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			r.logger.Warn("backend close failed", zap.String("backend", name), zap.Error(err))
		}
	}
}

func names(backends map[string]fetch.Backend) []string {
	out := make([]string, 0, len(backends))
	for name := range backends {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
