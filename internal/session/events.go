package session

import "time"

// Event is one entry of a session's replayable log. Applying Kind with
// Params to the opened document reproduces the step; Undo events retract
// the step with the same Seq.
type Event struct {
	Session string         `json:"session"`
	Seq     int            `json:"seq"`
	Kind    string         `json:"kind"`
	Params  map[string]any `json:"params,omitempty"`
	Undo    bool           `json:"undo,omitempty"`
	At      time.Time      `json:"at"`
}

// EventSink receives events as they happen, in order, while the session
// lock is held. Sinks must not call back into the session.
type EventSink interface {
	Publish(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Publish implements EventSink.
func (f EventSinkFunc) Publish(e Event) { f(e) }

type nopSink struct{}

func (nopSink) Publish(Event) {}
