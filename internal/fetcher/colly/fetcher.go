// Package collyfetcher implements the plain HTTP backend using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/pagewatch/fetchd/internal/fetch"
)

// Name identifies this backend in the registry.
const Name = "http"

// DefaultUserAgent mimics a desktop Chrome build; sites that gate on the
// user-agent otherwise serve stripped or blocked pages.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/90.0.4427.0 Safari/537.36"

// DefaultReferer makes requests look like organic search traffic.
const DefaultReferer = "https://google.com"

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Referer   string
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Fetcher implements fetch.Backend with a Colly collector. Each call clones
// the base collector, so concurrent fetches share no mutable state.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Referer == "" {
		cfg.Referer = DefaultReferer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        cfg.Logger,
	}
}

// Fetch executes a single HTTP GET. Non-2xx responses still succeed; the
// status code is reported in the Result for the caller to act on.
func (f *Fetcher) Fetch(ctx context.Context, target fetch.Target) (fetch.Result, error) {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		result   fetch.Result
		captured bool
		fetchErr error
	)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Referer", f.cfg.Referer)
	})
	collector.OnResponse(func(r *colly.Response) {
		result = fetch.Result{
			Body:       append([]byte(nil), r.Body...),
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
		}
		captured = true
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			f.logger.Debug("got response with non-2xx status code",
				zap.String("url", target.URL),
				zap.Int("status_code", r.StatusCode))
			result = fetch.Result{
				Body:       append([]byte(nil), r.Body...),
				FinalURL:   r.Request.URL.String(),
				StatusCode: r.StatusCode,
			}
			captured = true
			return
		}
		fetchErr = err
	})

	if err := f.runCollector(ctx, collector, target.URL, &fetchErr, &captured); err != nil {
		return fetch.Result{}, err
	}
	if !captured {
		return fetch.Result{}, fetch.NewError(fetch.KindProtocolError, Name,
			errors.New("no response captured"))
	}
	return result, nil
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error, captured *bool) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fetch.NewError(fetch.KindConnectionFailed, Name,
			fmt.Errorf("fetch canceled: %w", ctx.Err()))
	case err := <-done:
		if *fetchErr != nil && !*captured {
			return fetch.NewError(fetch.KindConnectionFailed, Name, *fetchErr)
		}
		if err != nil && !*captured {
			return fetch.NewError(fetch.KindConnectionFailed, Name,
				fmt.Errorf("visit failed: %w", err))
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
