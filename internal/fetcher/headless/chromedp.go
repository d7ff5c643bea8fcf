// Package headless implements the browser backend driven by chromedp.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/pagewatch/fetchd/internal/artifact"
	"github.com/pagewatch/fetchd/internal/fetch"
)

// Name identifies this backend in the registry.
const Name = "chromedp"

// Config controls the behavior of the headless fetcher.
type Config struct {
	UserAgent string
	// Timeout bounds one navigation, shared with the other backends.
	Timeout time.Duration
	// MaxParallel caps concurrent browser instances; 0 means unlimited.
	MaxParallel int
	// UserDataDir holds the browser profile, kept under the working
	// directory so repeated runs reuse cookies and cache.
	UserDataDir string
	Artifacts   *artifact.Store
	Logger      *zap.Logger
}

// Fetcher implements fetch.Backend with headless Chrome via chromedp.
type Fetcher struct {
	cfg       Config
	limiter   chan struct{}
	allocOpts []chromedp.ExecAllocatorOption
	logger    *zap.Logger
}

// New validates the config and prepares allocator options. Chrome itself is
// launched per fetch, not here; a missing binary surfaces on first use.
func New(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("window-position", "0,0"),
		chromedp.WindowSize(1920, 1080),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if os.Geteuid() == 0 {
		// Chrome refuses to sandbox under root.
		opts = append(opts, chromedp.NoSandbox)
	}

	return &Fetcher{
		cfg:       cfg,
		limiter:   limiter,
		allocOpts: opts,
		logger:    cfg.Logger,
	}, nil
}

// Fetch renders the target in a fresh browser instance and returns the DOM.
// Headless Chrome crashes somewhat regularly on long-lived profiles, so each
// call starts and tears down its own process.
func (f *Fetcher) Fetch(ctx context.Context, target fetch.Target) (fetch.Result, error) {
	if err := f.acquire(ctx); err != nil {
		return fetch.Result{}, err
	}
	defer f.release()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, f.allocOpts...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.Timeout)
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		network.Enable(),
		chromedp.Navigate(target.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return fetch.Result{}, fetch.NewError(fetch.KindConnectionFailed, Name,
			fmt.Errorf("render %s: %w", target.URL, err))
	}

	f.saveScreenshot(taskCtx, target)

	status, responseURL := meta.snapshotWithFallbacks(target.URL, finalURL)
	if status != 0 && (status < 200 || status >= 300) {
		f.logger.Debug("got response with non-2xx status code",
			zap.String("url", target.URL),
			zap.Int("status_code", status))
	}

	return fetch.Result{
		Body:       []byte(html),
		FinalURL:   responseURL,
		StatusCode: status,
	}, nil
}

// saveScreenshot is best-effort; a failed capture never aborts the fetch.
func (f *Fetcher) saveScreenshot(ctx context.Context, target fetch.Target) {
	if f.cfg.Artifacts == nil {
		return
	}
	var shot []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&shot)); err != nil {
		f.logger.Warn("unable to capture screenshot of webpage",
			zap.String("nickname", target.Nickname),
			zap.Error(err))
		return
	}
	if _, err := f.cfg.Artifacts.SavePNG(ctx, target.Nickname, shot); err != nil {
		f.logger.Warn("unable to save screenshot of webpage",
			zap.String("nickname", target.Nickname),
			zap.Error(err))
	}
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fetch.NewError(fetch.KindConnectionFailed, Name,
			fmt.Errorf("browser slot wait canceled: %w", ctx.Err()))
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

// responseMeta records the document response observed during navigation.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	event, ok := ev.(*network.EventResponseReceived)
	if !ok || event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

// snapshotWithFallbacks prefers the observed document URL, then the browser
// location, then the requested URL; an unobserved status defaults to 200
// because the navigation demonstrably produced a document.
func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()

	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
