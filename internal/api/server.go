package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pagewatch/fetchd/internal/fetch"
)

// BackendSource resolves fetch backends by name; satisfied by
// registry.Registry.
type BackendSource interface {
	Get(name string) (fetch.Backend, error)
	Names() []string
	Timeout() time.Duration
}

// Server wires HTTP handlers to the backend registry.
type Server struct {
	router   chi.Router
	backends BackendSource
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The gatherer
// backs /metrics; pass the registry the event sinks registered into.
func NewServer(backends BackendSource, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{backends: backends, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(90 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/backends", s.listBackends)
		r.Post("/fetch", s.fetchOnce)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// Backends are constructed eagerly at startup, so a serving process
	// is a ready process.
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listBackends(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"backends": s.backends.Names()})
}

type fetchRequest struct {
	URL      string `json:"url"`
	Nickname string `json:"nickname"`
	Backend  string `json:"backend"`
}

type fetchResponse struct {
	Nickname   string `json:"nickname"`
	Backend    string `json:"backend"`
	FinalURL   string `json:"final_url"`
	StatusCode int    `json:"status_code,omitempty"`
	Bytes      int    `json:"bytes"`
	BodyBase64 string `json:"body_base64"`
	DurationMS int64  `json:"duration_ms"`
}

func (s *Server) fetchOnce(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Backend == "" {
		req.Backend = "http"
	}
	target, err := fetch.NewTarget(req.URL, req.Nickname)
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	backend, err := s.backends.Get(req.Backend)
	if err != nil {
		writeError(s.logger, w, http.StatusNotFound, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.backends.Timeout())
	defer cancel()

	start := time.Now()
	result, err := backend.Fetch(ctx, target)
	dur := time.Since(start)
	if err != nil {
		writeError(s.logger, w, statusForFetchError(err), err.Error())
		return
	}

	writeJSON(s.logger, w, http.StatusOK, fetchResponse{
		Nickname:   target.Nickname,
		Backend:    req.Backend,
		FinalURL:   result.FinalURL,
		StatusCode: result.StatusCode,
		Bytes:      len(result.Body),
		BodyBase64: base64.StdEncoding.EncodeToString(result.Body),
		DurationMS: dur.Milliseconds(),
	})
}

func statusForFetchError(err error) int {
	switch {
	case fetch.IsKind(err, fetch.KindBackendUnavailable):
		return http.StatusServiceUnavailable
	case fetch.IsKind(err, fetch.KindConnectionFailed),
		fetch.IsKind(err, fetch.KindProtocolError):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(logger, w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
