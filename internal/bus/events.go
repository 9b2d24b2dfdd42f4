// Package bus provides the in-process event stream for Gravitas. Every
// orchestration publishes its lifecycle onto the bus so observers (the
// serve stream, logging taps, tests) can follow a request without coupling
// to the orchestrator.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the kind of orchestration event on the bus.
type EventType string

const (
	// Gate and routing events
	EventClassified EventType = "classified"
	EventRouted     EventType = "routed"

	// Council events
	EventBackendStarted   EventType = "backend_started"
	EventBackendCompleted EventType = "backend_completed"
	EventQuorumReached    EventType = "quorum_reached"

	// Terminal events
	EventResolved      EventType = "resolved"
	EventResolveFailed EventType = "resolve_failed"
)

// Event is one orchestration lifecycle event.
type Event struct {
	// Core identification
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// RequestID ties the event to one orchestration call.
	RequestID string `json:"request_id,omitempty"`

	// Backend names the backend for backend-scoped events.
	Backend string `json:"backend,omitempty"`

	// Path is the chosen execution path ("single" or "council").
	Path string `json:"path,omitempty"`

	// Verdict is the quorum outcome for quorum/terminal events.
	Verdict string `json:"verdict,omitempty"`

	// Score is the density score for gate events.
	Score float64 `json:"score,omitempty"`

	// FailureKind carries the failure taxonomy for failed invocations.
	FailureKind string `json:"failure_kind,omitempty"`

	// DurationMs is the elapsed time for completed operations.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// Detail is a human-readable annotation.
	Detail string `json:"detail,omitempty"`

	// Error carries the error text for failure events.
	Error string `json:"error,omitempty"`
}

// NewEvent creates a new event with the current timestamp and a fresh ID.
func NewEvent(eventType EventType, requestID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		RequestID: requestID,
	}
}
