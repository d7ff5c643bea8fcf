// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/backends to list the registered fetch backends.
//   - POST /v1/fetch for a one-shot fetch through a chosen backend.
package api
