// Package main hosts the fetch service entrypoint.
//
// Architecture overview:
//   - Backend registry: internal/registry constructs every fetch backend at
//     startup (plain HTTP via Colly, chromedp and rod browser automation, and
//     the lean TCP client for an external fetch service). A backend that fails
//     to construct aborts the process. Disabled browsers stay registered as
//     stubs that report themselves unavailable.
//   - Watch loop: internal/watch polls the configured targets every refresh
//     interval, fanning a pass out across goroutines. The per-fetch timeout is
//     derived from the refresh interval with a 15 second floor.
//   - HTTP API: internal/api.Server exposes health probes, Prometheus metrics,
//     a backend listing, and a one-shot fetch endpoint.
//   - Events & persistence: fetch lifecycle events flow through the
//     internal/events hub into zap logs, Prometheus counters, and optionally
//     Google Cloud Pub/Sub. Completed fetches are recorded to Postgres when a
//     DSN is configured. Page HTML and screenshots land in the working
//     directory, mirrored to GCS when a bucket is set.
//   - Configuration & plumbing: Viper populates config from env/files
//     (FETCHD_ prefix); zap provides structured logging.
//
// Quick checklist:
//   - Run the daemon: go run ./cmd/fetchd -config config.yaml
//   - One-shot fetch: go run ./cmd/fetchd -url https://example.com -backend http
//   - The lean backend expects its fetch service at lean.addr
//     (default 127.0.0.1:3080).
package main
