// Package sinks provides Sink implementations for the event hub.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/pagewatch/fetchd/internal/events"
)

// LogSink emits structured logs for every fetch event. Useful during
// development and for deployments without a metrics stack.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the event with structured fields.
func (s *LogSink) Consume(_ context.Context, evt events.Event) error {
	s.logger.Info("fetch event",
		zap.String("stage", string(evt.Stage)),
		zap.String("nickname", evt.Nickname),
		zap.String("url", evt.URL),
		zap.String("backend", evt.Backend),
		zap.String("status_class", string(evt.StatusClass)),
		zap.Int64("bytes", evt.Bytes),
		zap.Duration("dur", evt.Dur),
		zap.String("note", evt.Note),
	)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
