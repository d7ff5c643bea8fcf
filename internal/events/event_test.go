package events

import (
	"testing"
	"time"
)

func validEvent() Event {
	return Event{
		TS:          time.Now().UTC(),
		Stage:       StageFetchDone,
		Nickname:    "rtx3080",
		URL:         "https://shop.example/rtx3080",
		Backend:     "http",
		StatusClass: Status2xx,
		Bytes:       2048,
		Dur:         120 * time.Millisecond,
	}
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Event)
		wantErr bool
	}{
		{name: "valid done", mutate: func(*Event) {}, wantErr: false},
		{name: "valid start", mutate: func(e *Event) { e.Stage = StageFetchStart; e.StatusClass = "" }},
		{name: "valid error", mutate: func(e *Event) { e.Stage = StageFetchError; e.StatusClass = ""; e.Note = "dial refused" }},
		{name: "missing ts", mutate: func(e *Event) { e.TS = time.Time{} }, wantErr: true},
		{name: "missing nickname", mutate: func(e *Event) { e.Nickname = "" }, wantErr: true},
		{name: "missing backend", mutate: func(e *Event) { e.Backend = "" }, wantErr: true},
		{name: "done without status class", mutate: func(e *Event) { e.StatusClass = "" }, wantErr: true},
		{name: "unknown stage", mutate: func(e *Event) { e.Stage = "SOMETHING" }, wantErr: true},
		{name: "negative duration", mutate: func(e *Event) { e.Dur = -time.Second }, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			evt := validEvent()
			tc.mutate(&evt)
			err := evt.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want StatusClass
	}{
		{code: 0, want: StatusUnreported},
		{code: 200, want: Status2xx},
		{code: 204, want: Status2xx},
		{code: 301, want: Status3xx},
		{code: 404, want: Status4xx},
		{code: 503, want: Status5xx},
		{code: 999, want: StatusOther},
	}
	for _, tc := range tests {
		if got := ClassifyStatus(tc.code); got != tc.want {
			t.Fatalf("ClassifyStatus(%d) = %s, want %s", tc.code, got, tc.want)
		}
	}
}
