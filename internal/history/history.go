// Package history persists one row per completed fetch so operators can
// audit what each backend returned over time.
package history

import (
	"context"
	"time"
)

// Record captures the outcome of one fetch.
type Record struct {
	Nickname   string
	URL        string
	FinalURL   string
	Backend    string
	StatusCode int
	Bytes      int64
	Dur        time.Duration
	FetchedAt  time.Time
}

// Recorder stores fetch records. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
	Close()
}

// Noop discards records; used when no database is configured.
type Noop struct{}

// NewNoop returns a Noop recorder.
func NewNoop() *Noop {
	return &Noop{}
}

// Record discards the record.
func (*Noop) Record(context.Context, Record) error {
	return nil
}

// Close implements Recorder; it performs no action.
func (*Noop) Close() {}
