// Package server provides the core application wiring and lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pagewatch/fetchd/internal/api"
	"github.com/pagewatch/fetchd/internal/artifact"
	"github.com/pagewatch/fetchd/internal/config"
	"github.com/pagewatch/fetchd/internal/events"
	"github.com/pagewatch/fetchd/internal/events/sinks"
	"github.com/pagewatch/fetchd/internal/fetch"
	"github.com/pagewatch/fetchd/internal/history"
	"github.com/pagewatch/fetchd/internal/logging"
	"github.com/pagewatch/fetchd/internal/registry"
	"github.com/pagewatch/fetchd/internal/watch"
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	registryBackends *registry.Registry
	hub              *events.Hub
	recorder         history.Recorder
	watcher          *watch.Watcher
	apiServer        *api.Server

	pubsubClient  *pubsub.Client
	storageClient *storage.Client
}

// Build creates the application's dependencies. Any failure aborts
// startup.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies")

	store, err := app.setupArtifacts(ctx)
	if err != nil {
		return nil, err
	}

	app.registryBackends, err = registry.New(registry.Config{
		RefreshInterval:     cfg.RefreshInterval(),
		Workdir:             cfg.Watch.Workdir,
		UserAgent:           cfg.HTTP.UserAgent,
		Referer:             cfg.HTTP.Referer,
		LeanAddr:            cfg.Lean.Addr,
		HeadlessEnabled:     cfg.Headless.Enabled,
		HeadlessMaxParallel: cfg.Headless.MaxParallel,
		RodEnabled:          cfg.Rod.Enabled,
		StealthPatchDriver:  cfg.Stealth.PatchDriver,
		StealthDriverPaths:  cfg.Stealth.DriverPaths,
		Artifacts:           store,
		Logger:              logger,
	})
	if err != nil {
		return nil, fmt.Errorf("backend registry init failed: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	if err := app.setupEvents(ctx, promRegistry); err != nil {
		return nil, err
	}

	if err := app.setupHistory(ctx); err != nil {
		return nil, err
	}

	if len(cfg.Watch.Targets) > 0 {
		entries, err := watchEntries(cfg.Watch.Targets)
		if err != nil {
			return nil, err
		}
		app.watcher, err = watch.New(watch.Config{
			Interval: cfg.RefreshInterval(),
			Entries:  entries,
			Backends: app.registryBackends,
			Emitter:  app.hub,
			Recorder: app.recorder,
			Logger:   logger.Named("watch"),
		})
		if err != nil {
			return nil, fmt.Errorf("watcher init failed: %w", err)
		}
	} else {
		logger.Info("no watch targets configured, serving API only")
	}

	app.apiServer = api.NewServer(app.registryBackends, promRegistry, logger.Named("api"))
	return app, nil
}

func (a *App) setupArtifacts(ctx context.Context) (*artifact.Store, error) {
	var mirror artifact.Mirror
	if a.cfg.Artifacts.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storageClient = client
		mirror, err = artifact.NewGCSMirror(client, a.cfg.Artifacts.GCSBucket, a.cfg.Artifacts.Prefix)
		if err != nil {
			return nil, fmt.Errorf("gcs mirror init failed: %w", err)
		}
		a.logger.Info("artifact mirror enabled", zap.String("bucket", a.cfg.Artifacts.GCSBucket))
	}
	store, err := artifact.NewStore(artifact.Config{
		Dir:    a.cfg.Watch.Workdir,
		Mirror: mirror,
		Logger: a.logger.Named("artifacts"),
	})
	if err != nil {
		return nil, fmt.Errorf("artifact store init failed: %w", err)
	}
	return store, nil
}

func (a *App) setupEvents(ctx context.Context, promRegistry prometheus.Registerer) error {
	sinkList := []events.Sink{sinks.NewLogSink(a.logger.Named("events"))}

	promSink, err := sinks.NewPrometheusSink(promRegistry)
	if err != nil {
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)

	if a.cfg.Events.PubSub.ProjectID != "" && a.cfg.Events.PubSub.TopicName != "" {
		client, err := pubsub.NewClient(ctx, a.cfg.Events.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		sink, err := sinks.NewPubSubSink(client.Topic(a.cfg.Events.PubSub.TopicName))
		if err != nil {
			return fmt.Errorf("pubsub sink init failed: %w", err)
		}
		sinkList = append(sinkList, sink)
		a.logger.Info("pubsub event sink enabled",
			zap.String("project", a.cfg.Events.PubSub.ProjectID),
			zap.String("topic", a.cfg.Events.PubSub.TopicName),
		)
	}

	a.hub = events.NewHub(events.Config{Logger: a.logger.Named("hub")}, sinkList...)
	return nil
}

func (a *App) setupHistory(ctx context.Context) error {
	if a.cfg.History.DSN == "" {
		a.logger.Info("no history DSN configured, fetch records will not be persisted")
		a.recorder = history.NewNoop()
		return nil
	}
	recorder, err := history.NewPostgres(ctx, history.PostgresConfig{
		DSN:      a.cfg.History.DSN,
		Table:    a.cfg.History.Table,
		MaxConns: a.cfg.History.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("history store init failed: %w", err)
	}
	a.logger.Info("history store initialized", zap.String("table", a.cfg.History.Table))
	a.recorder = recorder
	return nil
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.watcher != nil {
		go func() {
			if err := a.watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("watch loop error", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// FetchOnce performs a single fetch through the named backend; used by
// the CLI one-shot mode.
func (a *App) FetchOnce(ctx context.Context, rawURL, nickname, backendName string) (fetch.Result, error) {
	target, err := fetch.NewTarget(rawURL, nickname)
	if err != nil {
		return fetch.Result{}, err
	}
	backend, err := a.registryBackends.Get(backendName)
	if err != nil {
		return fetch.Result{}, err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, a.registryBackends.Timeout())
	defer cancel()
	return backend.Fetch(fetchCtx, target)
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("event hub close failed", zap.Error(err))
		}
	}
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.registryBackends != nil {
		a.registryBackends.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func watchEntries(targets []config.WatchTarget) ([]watch.Entry, error) {
	entries := make([]watch.Entry, 0, len(targets))
	for _, t := range targets {
		target, err := fetch.NewTarget(t.URL, t.Nickname)
		if err != nil {
			return nil, fmt.Errorf("watch target %q: %w", t.Nickname, err)
		}
		entries = append(entries, watch.Entry{Target: target, Backend: t.Backend})
	}
	return entries, nil
}
