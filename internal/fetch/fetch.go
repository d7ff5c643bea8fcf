// Package fetch defines the uniform types shared by every page fetch backend.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Target is a URL paired with a caller-chosen nickname. The nickname keys any
// diagnostic artifacts (screenshots, HTML dumps) written during a fetch, so it
// must be unique per concurrent fetch. Targets are immutable once created.
type Target struct {
	URL      string
	Nickname string
}

// NewTarget validates and builds a Target.
func NewTarget(rawURL, nickname string) (Target, error) {
	if strings.TrimSpace(rawURL) == "" {
		return Target{}, errors.New("target url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, fmt.Errorf("parse target url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Target{}, fmt.Errorf("unsupported target scheme %q", parsed.Scheme)
	}
	if strings.TrimSpace(nickname) == "" {
		return Target{}, errors.New("target nickname is required")
	}
	return Target{URL: rawURL, Nickname: nickname}, nil
}

// String returns the target URL, matching how targets read in logs.
func (t Target) String() string {
	return t.URL
}

// Result is the uniform output of any backend. A Result is only ever produced
// on success: Body is populated, FinalURL reflects redirects when the backend
// can observe them, and StatusCode is zero when the backend has no way to
// report one. Non-2xx statuses are not errors; callers inspect StatusCode.
type Result struct {
	Body       []byte
	FinalURL   string
	StatusCode int
}

// Backend turns a Target into a Result. Implementations must be safe for
// concurrent use, hold no per-call mutable state, and fail with a *Error
// rather than returning a partial result.
type Backend interface {
	Fetch(ctx context.Context, target Target) (Result, error)
}
