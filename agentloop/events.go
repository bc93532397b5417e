package agentloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of session event.
type EventKind string

const (
	EventSessionStart     EventKind = "session_start"
	EventSessionEnd       EventKind = "session_end"
	EventUserInput        EventKind = "user_input"
	EventProviderRequest  EventKind = "provider_request"
	EventProviderResponse EventKind = "provider_response"
	EventToolCallStart    EventKind = "tool_call_start"
	EventToolCallEnd      EventKind = "tool_call_end"
	EventSteeringInjected EventKind = "steering_injected"
	EventLoopDetection    EventKind = "loop_detection"
	EventError            EventKind = "error"
)

// SessionEvent is emitted by Session at fixed points of the loop.
type SessionEvent struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Iteration int            `json:"iteration"`
	Data      map[string]any `json:"data,omitempty"`
}

// Observer receives session events synchronously on the loop goroutine, or
// on tool goroutines when tools run in parallel. Implementations must be
// safe for concurrent use and should return quickly.
type Observer interface {
	OnEvent(SessionEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(SessionEvent)

func (f ObserverFunc) OnEvent(e SessionEvent) { f(e) }

// EventEmitter is an Observer that forwards events to a buffered channel
// for hosts that prefer to consume them asynchronously.
type EventEmitter struct {
	ch     chan SessionEvent
	closed bool
	mu     sync.Mutex
}

// NewEventEmitter creates an EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{ch: make(chan SessionEvent, bufferSize)}
}

// OnEvent queues the event. Events are dropped when the buffer is full or
// the emitter is closed; the loop never blocks on a slow consumer.
func (e *EventEmitter) OnEvent(event SessionEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.ch <- event:
	default:
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan SessionEvent {
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
