package events

import "context"

// Sink consumes events delivered by the Hub. Implementations must honor ctx
// deadlines; they are called from a single hub goroutine, never concurrently.
type Sink interface {
	Consume(ctx context.Context, evt Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so the
// watcher and API stay agnostic about buffering and delivery.
type Emitter interface {
	Emit(evt Event)
}
