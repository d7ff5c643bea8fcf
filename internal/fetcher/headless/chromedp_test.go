package headless

import (
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

func TestNewLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{MaxParallel: -1}); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	fetcher, err := New(Config{MaxParallel: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cap(fetcher.limiter) != 2 {
		t.Fatalf("expected limiter capacity 2, got %d", cap(fetcher.limiter))
	}
	if fetcher.cfg.Timeout != 15*time.Second {
		t.Fatalf("expected default timeout, got %v", fetcher.cfg.Timeout)
	}
}

func TestNewUnlimitedParallelism(t *testing.T) {
	t.Parallel()

	fetcher, err := New(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.limiter != nil {
		t.Fatal("expected nil limiter when max parallel is 0")
	}
}

func TestResponseMetaFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	status, url := meta.snapshotWithFallbacks("https://req.example", "")
	if status != http.StatusOK {
		t.Fatalf("expected default status 200, got %d", status)
	}
	if url != "https://req.example" {
		t.Fatalf("expected request url fallback, got %q", url)
	}

	_, url = meta.snapshotWithFallbacks("https://req.example", "https://final.example")
	if url != "https://final.example" {
		t.Fatalf("expected browser location to win over request url, got %q", url)
	}
}

func TestResponseMetaCapturesDocumentEvents(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeImage,
		Response: &network.Response{
			Status: 404,
			URL:    "https://cdn.example/missing.png",
		},
	})
	status, url := meta.snapshotWithFallbacks("https://req.example", "")
	if status != http.StatusOK || url != "https://req.example" {
		t.Fatalf("subresource events must be ignored, got %d %q", status, url)
	}

	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status: 429,
			URL:    "https://shop.example/item",
		},
	})
	status, url = meta.snapshotWithFallbacks("https://req.example", "")
	if status != 429 {
		t.Fatalf("expected observed status, got %d", status)
	}
	if url != "https://shop.example/item" {
		t.Fatalf("expected observed url, got %q", url)
	}
}
