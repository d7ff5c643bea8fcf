// Package watch polls a fixed set of targets on a cadence, fanning each
// pass out across goroutines and reporting outcomes to the event hub and
// the fetch history.
package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pagewatch/fetchd/internal/events"
	"github.com/pagewatch/fetchd/internal/fetch"
	"github.com/pagewatch/fetchd/internal/history"
)

// Entry pairs a target with the backend that should fetch it.
type Entry struct {
	Target  fetch.Target
	Backend string
}

// BackendSource resolves backend names; satisfied by registry.Registry.
type BackendSource interface {
	Get(name string) (fetch.Backend, error)
	Timeout() time.Duration
}

// Config wires a Watcher.
type Config struct {
	// Interval is the pause between passes. A pass runs all entries
	// concurrently; the next pass starts Interval after the previous
	// one finished.
	Interval time.Duration
	Entries  []Entry
	Backends BackendSource
	Emitter  events.Emitter
	Recorder history.Recorder
	Logger   *zap.Logger
}

// Watcher runs the poll loop.
type Watcher struct {
	cfg     Config
	timeout time.Duration
	logger  *zap.Logger
}

// New validates the configuration. Backend names are resolved up front so
// a typo in the watch list fails at startup, not on the first pass.
func New(cfg Config) (*Watcher, error) {
	if cfg.Backends == nil {
		return nil, fmt.Errorf("backend source is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", cfg.Interval)
	}
	if len(cfg.Entries) == 0 {
		return nil, fmt.Errorf("at least one watch entry is required")
	}
	for _, entry := range cfg.Entries {
		if _, err := cfg.Backends.Get(entry.Backend); err != nil {
			return nil, fmt.Errorf("watch entry %s: %w", entry.Target.Nickname, err)
		}
	}
	if cfg.Emitter == nil {
		cfg.Emitter = (*events.Hub)(nil)
	}
	if cfg.Recorder == nil {
		cfg.Recorder = history.NewNoop()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{cfg: cfg, timeout: cfg.Backends.Timeout(), logger: logger}, nil
}

// Run executes passes until ctx is cancelled. The first pass starts
// immediately.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watch loop starting",
		zap.Int("entries", len(w.cfg.Entries)),
		zap.Duration("interval", w.cfg.Interval),
	)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch loop stopping")
			return ctx.Err()
		case <-timer.C:
		}
		w.runPass(ctx)
		timer.Reset(w.cfg.Interval)
	}
}

// RunOnce executes a single pass; used by the one-shot CLI mode and tests.
func (w *Watcher) RunOnce(ctx context.Context) {
	w.runPass(ctx)
}

func (w *Watcher) runPass(ctx context.Context) {
	var wg sync.WaitGroup
	for _, entry := range w.cfg.Entries {
		wg.Add(1)
		go func(entry Entry) {
			defer wg.Done()
			w.fetchOne(ctx, entry)
		}(entry)
	}
	wg.Wait()
}

func (w *Watcher) fetchOne(ctx context.Context, entry Entry) {
	backend, err := w.cfg.Backends.Get(entry.Backend)
	if err != nil {
		w.logger.Error("backend vanished", zap.String("backend", entry.Backend), zap.Error(err))
		return
	}

	now := time.Now().UTC()
	w.cfg.Emitter.Emit(events.Event{
		TS:       now,
		Stage:    events.StageFetchStart,
		Nickname: entry.Target.Nickname,
		URL:      entry.Target.URL,
		Backend:  entry.Backend,
	})

	fetchCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	result, err := backend.Fetch(fetchCtx, entry.Target)
	dur := time.Since(start)

	if err != nil {
		w.logger.Warn("fetch failed",
			zap.String("nickname", entry.Target.Nickname),
			zap.String("backend", entry.Backend),
			zap.Duration("duration", dur),
			zap.Error(err),
		)
		w.cfg.Emitter.Emit(events.Event{
			TS:       time.Now().UTC(),
			Stage:    events.StageFetchError,
			Nickname: entry.Target.Nickname,
			URL:      entry.Target.URL,
			Backend:  entry.Backend,
			Dur:      dur,
			Note:     err.Error(),
		})
		return
	}

	w.logger.Debug("fetch complete",
		zap.String("nickname", entry.Target.Nickname),
		zap.String("backend", entry.Backend),
		zap.Int("status", result.StatusCode),
		zap.Int("bytes", len(result.Body)),
		zap.Duration("duration", dur),
	)
	w.cfg.Emitter.Emit(events.Event{
		TS:          time.Now().UTC(),
		Stage:       events.StageFetchDone,
		Nickname:    entry.Target.Nickname,
		URL:         entry.Target.URL,
		Backend:     entry.Backend,
		StatusClass: events.ClassifyStatus(result.StatusCode),
		Bytes:       int64(len(result.Body)),
		Dur:         dur,
	})

	if err := w.cfg.Recorder.Record(ctx, history.Record{
		Nickname:   entry.Target.Nickname,
		URL:        entry.Target.URL,
		FinalURL:   result.FinalURL,
		Backend:    entry.Backend,
		StatusCode: result.StatusCode,
		Bytes:      int64(len(result.Body)),
		Dur:        dur,
		FetchedAt:  now,
	}); err != nil {
		w.logger.Warn("history record failed",
			zap.String("nickname", entry.Target.Nickname),
			zap.Error(err),
		)
	}
}
