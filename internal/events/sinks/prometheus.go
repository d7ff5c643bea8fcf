package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pagewatch/fetchd/internal/events"
)

// PrometheusSink exports fetch metrics. It owns all collectors for fetch
// counts, error counts, bytes, and latency, partitioned by backend.
type PrometheusSink struct {
	fetchesTotal  *prometheus.CounterVec
	fetchErrors   *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		fetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fetchd_fetches_total",
			Help: "Completed fetches partitioned by backend and status class.",
		}, []string{"backend", "status_class"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fetchd_fetch_errors_total",
			Help: "Failed fetches partitioned by backend.",
		}, []string{"backend"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fetchd_fetch_bytes_total",
			Help: "Body bytes fetched per backend.",
		}, []string{"backend"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fetchd_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by backend and status class.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"backend", "status_class"}),
	}
	for _, collector := range []prometheus.Collector{
		s.fetchesTotal,
		s.fetchErrors,
		s.fetchBytes,
		s.fetchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register fetch collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors for done and error events.
func (s *PrometheusSink) Consume(_ context.Context, evt events.Event) error {
	switch evt.Stage {
	case events.StageFetchDone:
		statusClass := string(evt.StatusClass)
		if statusClass == "" {
			statusClass = string(events.StatusUnreported)
		}
		s.fetchesTotal.WithLabelValues(evt.Backend, statusClass).Inc()
		if evt.Bytes > 0 {
			s.fetchBytes.WithLabelValues(evt.Backend).Add(float64(evt.Bytes))
		}
		if evt.Dur > 0 {
			s.fetchDuration.WithLabelValues(evt.Backend, statusClass).Observe(evt.Dur.Seconds())
		}
	case events.StageFetchError:
		s.fetchErrors.WithLabelValues(evt.Backend).Inc()
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
