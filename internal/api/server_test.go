package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagewatch/fetchd/internal/fetch"
)

type fakeBackend struct {
	result fetch.Result
	err    error
	gotURL string
}

func (f *fakeBackend) Fetch(ctx context.Context, target fetch.Target) (fetch.Result, error) {
	f.gotURL = target.URL
	if f.err != nil {
		return fetch.Result{}, f.err
	}
	return f.result, nil
}

type fakeSource struct {
	backends map[string]*fakeBackend
}

func (f *fakeSource) Get(name string) (fetch.Backend, error) {
	backend, ok := f.backends[name]
	if !ok {
		return nil, errors.New("unknown backend")
	}
	return backend, nil
}

func (f *fakeSource) Names() []string {
	return []string{"chromedp", "http", "lean", "rod"}
}

func (f *fakeSource) Timeout() time.Duration { return 15 * time.Second }

func newTestServer(backends map[string]*fakeBackend) *Server {
	return NewServer(
		&fakeSource{backends: backends},
		prometheus.NewRegistry(),
		zap.NewNop(),
	)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestListBackends(t *testing.T) {
	t.Parallel()

	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/backends", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Backends []string `json:"backends"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []string{"chromedp", "http", "lean", "rod"}, body.Backends)
}

func TestFetchOnceSucceeds(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{result: fetch.Result{
		Body:       []byte("<html>ok</html>"),
		FinalURL:   "https://shop.example/item-v2",
		StatusCode: 200,
	}}
	srv := newTestServer(map[string]*fakeBackend{"http": backend})

	payload := `{"url":"https://shop.example/item","nickname":"item","backend":"http"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(
		http.MethodPost, "/v1/fetch", bytes.NewBufferString(payload)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp fetchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "item", resp.Nickname)
	require.Equal(t, "https://shop.example/item-v2", resp.FinalURL)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, len("<html>ok</html>"), resp.Bytes)

	decoded, err := base64.StdEncoding.DecodeString(resp.BodyBase64)
	require.NoError(t, err)
	require.Equal(t, "<html>ok</html>", string(decoded))
	require.Equal(t, "https://shop.example/item", backend.gotURL)
}

func TestFetchOnceDefaultsToHTTPBackend(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{result: fetch.Result{StatusCode: 200}}
	srv := newTestServer(map[string]*fakeBackend{"http": backend})

	payload := `{"url":"https://shop.example/item","nickname":"item"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(
		http.MethodPost, "/v1/fetch", bytes.NewBufferString(payload)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://shop.example/item", backend.gotURL)
}

func TestFetchOnceRejectsBadInput(t *testing.T) {
	t.Parallel()

	srv := newTestServer(map[string]*fakeBackend{"http": {}})

	tests := []struct {
		name    string
		payload string
		want    int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing url", `{"nickname":"item"}`, http.StatusBadRequest},
		{"missing nickname", `{"url":"https://shop.example/item"}`, http.StatusBadRequest},
		{"unknown backend", `{"url":"https://shop.example/item","nickname":"item","backend":"selenium"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(
				http.MethodPost, "/v1/fetch", bytes.NewBufferString(tt.payload)))
			require.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestFetchOnceMapsErrorKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			"unavailable backend",
			fetch.NewError(fetch.KindBackendUnavailable, "chromedp", errors.New("disabled")),
			http.StatusServiceUnavailable,
		},
		{
			"connection failure",
			fetch.NewError(fetch.KindConnectionFailed, "http", errors.New("refused")),
			http.StatusBadGateway,
		},
		{
			"protocol failure",
			fetch.NewError(fetch.KindProtocolError, "lean", errors.New("short read")),
			http.StatusBadGateway,
		},
		{
			"plain error",
			errors.New("boom"),
			http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newTestServer(map[string]*fakeBackend{"http": {err: tt.err}})
			payload := `{"url":"https://shop.example/item","nickname":"item","backend":"http"}`
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(
				http.MethodPost, "/v1/fetch", bytes.NewBufferString(payload)))
			require.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "fetchd_test_total"})
	reg.MustRegister(counter)
	counter.Inc()

	srv := NewServer(&fakeSource{}, reg, zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "fetchd_test_total 1")
}
