// Package rodfetcher implements the second browser backend using go-rod and
// its managed Chromium launcher.
package rodfetcher

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/pagewatch/fetchd/internal/artifact"
	"github.com/pagewatch/fetchd/internal/fetch"
)

// Name identifies this backend in the registry.
const Name = "rod"

// Config controls the rod fetcher.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// UserDataDir holds the browser profile under the working directory.
	UserDataDir string
	Artifacts   *artifact.Store
	Logger      *zap.Logger
}

// Fetcher implements fetch.Backend with a rod-controlled browser. The browser
// is launched once at construction; each fetch opens and closes its own page,
// so concurrent calls are independent.
type Fetcher struct {
	cfg      Config
	browser  *rod.Browser
	launcher *launcher.Launcher
	logger   *zap.Logger
}

// New launches the managed browser. A launch failure means the backend's
// external dependency is missing and must abort startup.
func New(cfg Config) (*Fetcher, error) {
	cfg = normalizeConfig(cfg)

	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage")
	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}
	if os.Geteuid() == 0 {
		l = l.NoSandbox(true)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fetch.NewError(fetch.KindBackendUnavailable, Name,
			fmt.Errorf("launch browser: %w", err))
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fetch.NewError(fetch.KindBackendUnavailable, Name,
			fmt.Errorf("connect browser: %w", err))
	}

	return &Fetcher{
		cfg:      cfg,
		browser:  browser,
		launcher: l,
		logger:   cfg.Logger,
	}, nil
}

func normalizeConfig(cfg Config) Config {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}

// Close shuts the browser down and removes the launcher's temp state.
func (f *Fetcher) Close() error {
	err := f.browser.Close()
	f.launcher.Cleanup()
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// Fetch renders the target and returns the DOM. Rod does not surface the
// document status code without request interception, so StatusCode stays
// zero and callers treat the result as status-unreported.
func (f *Fetcher) Fetch(ctx context.Context, target fetch.Target) (fetch.Result, error) {
	page, err := f.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fetch.Result{}, fetch.NewError(fetch.KindConnectionFailed, Name,
			fmt.Errorf("open page: %w", err))
	}
	defer func() {
		if err := page.Close(); err != nil {
			f.logger.Warn("unable to close page", zap.Error(err))
		}
	}()

	page = page.Context(ctx).Timeout(f.cfg.Timeout)
	if f.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: f.cfg.UserAgent}); err != nil {
			return fetch.Result{}, fetch.NewError(fetch.KindConnectionFailed, Name,
				fmt.Errorf("set user-agent: %w", err))
		}
	}
	if err := page.Navigate(target.URL); err != nil {
		return fetch.Result{}, fetch.NewError(fetch.KindConnectionFailed, Name,
			fmt.Errorf("navigate %s: %w", target.URL, err))
	}
	if err := page.WaitLoad(); err != nil {
		return fetch.Result{}, fetch.NewError(fetch.KindConnectionFailed, Name,
			fmt.Errorf("wait for load: %w", err))
	}

	html, err := page.HTML()
	if err != nil {
		return fetch.Result{}, fetch.NewError(fetch.KindProtocolError, Name,
			fmt.Errorf("read page html: %w", err))
	}
	finalURL := target.URL
	if info, err := page.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}

	f.saveArtifacts(ctx, page, target, html)

	return fetch.Result{
		Body:     []byte(html),
		FinalURL: finalURL,
	}, nil
}

// saveArtifacts writes the HTML dump and screenshot; both are best-effort.
func (f *Fetcher) saveArtifacts(ctx context.Context, page *rod.Page, target fetch.Target, html string) {
	if f.cfg.Artifacts == nil {
		return
	}
	if _, err := f.cfg.Artifacts.SaveHTML(ctx, target.Nickname, []byte(html)); err != nil {
		f.logger.Warn("unable to save html dump of webpage",
			zap.String("nickname", target.Nickname),
			zap.Error(err))
	}
	shot, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
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
