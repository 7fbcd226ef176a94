package runloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of loop event.
type EventKind string

const (
	EventPhaseChange   EventKind = "phase_change"
	EventContextLoaded EventKind = "context_loaded"
	EventCompaction    EventKind = "compaction"
	EventToolCallStart EventKind = "tool_call_start"
	EventToolCallEnd   EventKind = "tool_call_end"
	EventVerification  EventKind = "verification"
	EventRefinement    EventKind = "refinement"
	EventDegraded      EventKind = "degraded"
	EventLoopDone      EventKind = "loop_done"
	EventLoopFailed    EventKind = "loop_failed"
)

// LoopEvent is a typed event emitted while a request runs.
type LoopEvent struct {
	Kind      EventKind              `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventEmitter delivers typed events to the host application via a channel.
type EventEmitter struct {
	ch        chan LoopEvent
	requestID string
	closed    bool
	mu        sync.Mutex
}

// NewEventEmitter creates an EventEmitter with a buffered channel.
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{
		ch: make(chan LoopEvent, bufferSize),
	}
}

// SetRequestID tags subsequent events with the given request id.
func (e *EventEmitter) SetRequestID(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requestID = id
}

// Emit sends an event to the channel. If the emitter is closed or the channel
// is full, the event is dropped rather than blocking the loop.
func (e *EventEmitter) Emit(kind EventKind, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := LoopEvent{
		Kind:      kind,
		Timestamp: time.Now(),
		RequestID: e.requestID,
		Data:      data,
	}
	select {
	case e.ch <- event:
	default:
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan LoopEvent {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
