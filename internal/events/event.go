// Package events defines the fetch lifecycle event stream and the hub that
// fans it out to sinks (logs, metrics, pub/sub).
package events

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the lifecycle milestone an Event represents.
type Stage string

// Supported stages.
const (
	StageFetchStart Stage = "FETCH_START"
	StageFetchDone  Stage = "FETCH_DONE"
	StageFetchError Stage = "FETCH_ERROR"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported status classes. StatusUnreported covers backends that cannot
// observe a status code (the rod engine, a lean service that omits it).
const (
	Status2xx        StatusClass = "2xx"
	Status3xx        StatusClass = "3xx"
	Status4xx        StatusClass = "4xx"
	Status5xx        StatusClass = "5xx"
	StatusOther      StatusClass = "other"
	StatusUnreported StatusClass = "unreported"
)

// Event captures a single fetch milestone.
type Event struct {
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Nickname scopes the event to a watched target.
	Nickname string
	// URL is the page URL; it should not contain credentials.
	URL string
	// Backend names the fetch strategy that handled the call.
	Backend string
	// StatusClass groups the reported HTTP status, set on FETCH_DONE.
	StatusClass StatusClass
	// Bytes carries the response body size.
	Bytes int64
	// Dur captures the fetch latency.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Nickname == "" {
		return errors.New("nickname is required")
	}
	if e.Backend == "" {
		return errors.New("backend is required")
	}
	switch e.Stage {
	case StageFetchStart, StageFetchError:
	case StageFetchDone:
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for fetch events. Zero means the
// backend could not report one.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code == 0:
		return StatusUnreported
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
