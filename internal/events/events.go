package events

import "time"

// Event types emitted by the streaming engine.
const (
	SessionCreated   = "session_created"
	SessionClosed    = "session_closed"
	SegmentGenerated = "segment_generated"
	SegmentEvicted   = "segment_evicted"
	GenerationFailed = "generation_failed"
)

// Event describes a change to a streaming session.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	Quality   string    `json:"quality,omitempty"`
	First     int       `json:"first,omitempty"`
	Count     int       `json:"count,omitempty"`
	Message   string    `json:"message,omitempty"`
	Time      time.Time `json:"time"`
}

// Notifier receives session events. Implementations must not block.
type Notifier interface {
	Notify(Event)
}

// Nop discards every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(Event) {}

// Func adapts a function to the Notifier interface.
type Func func(Event)

// Notify implements Notifier.
func (f Func) Notify(e Event) { f(e) }
