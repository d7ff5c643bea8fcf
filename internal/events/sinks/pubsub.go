package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/pagewatch/fetchd/internal/events"
)

// PubSubSink publishes fetch events to a Google Pub/Sub topic as JSON, for
// downstream alerting (e.g. restock notifications).
type PubSubSink struct {
	topic *pubsub.Topic
}

// NewPubSubSink wraps an existing topic handle.
func NewPubSubSink(topic *pubsub.Topic) (*PubSubSink, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	return &PubSubSink{topic: topic}, nil
}

type eventMessage struct {
	TS          string `json:"ts"`
	Stage       string `json:"stage"`
	Nickname    string `json:"nickname"`
	URL         string `json:"url"`
	Backend     string `json:"backend"`
	StatusClass string `json:"status_class,omitempty"`
	Bytes       int64  `json:"bytes,omitempty"`
	DurMs       int64  `json:"dur_ms,omitempty"`
	Note        string `json:"note,omitempty"`
}

// Consume publishes one event and waits for the server acknowledgment.
func (s *PubSubSink) Consume(ctx context.Context, evt events.Event) error {
	data, err := json.Marshal(eventMessage{
		TS:          evt.TS.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Stage:       string(evt.Stage),
		Nickname:    evt.Nickname,
		URL:         evt.URL,
		Backend:     evt.Backend,
		StatusClass: string(evt.StatusClass),
		Bytes:       evt.Bytes,
		DurMs:       evt.Dur.Milliseconds(),
		Note:        evt.Note,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	result := s.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close stops the topic's publish goroutines and flushes pending messages.
func (s *PubSubSink) Close(context.Context) error {
	s.topic.Stop()
	return nil
}
