package sinks

import (
	"context"
	"sync"

	"github.com/pagewatch/fetchd/internal/events"
)

// MemorySink records consumed events for inspection in tests.
type MemorySink struct {
	mu     sync.RWMutex
	events []events.Event
	closed bool
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Consume appends the event.
func (s *MemorySink) Consume(_ context.Context, evt events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

// Close marks the sink closed.
func (s *MemorySink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Events returns a copy of the recorded events.
func (s *MemorySink) Events() []events.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]events.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Closed reports whether Close was called.
func (s *MemorySink) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
