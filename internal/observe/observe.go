// Package observe reports routing events to an observability sink.
//
// Sinks are strictly best-effort: a sink that blocks, errors, or panics
// must never change a routing outcome. The dispatch router publishes
// asynchronously and drops events it cannot deliver.
package observe

import (
	"time"

	"github.com/opsmesh/conductor/internal/logging"
)

// Event is one structured routing event.
type Event struct {
	Component  string    `json:"component"`             // Emitting component (dispatch, remediation)
	AgentID    string    `json:"agent_id,omitempty"`    // Target specialist agent
	SessionID  string    `json:"session_id,omitempty"`  // Session correlation
	Outcome    string    `json:"outcome"`               // success, or a failure kind
	Reason     string    `json:"reason,omitempty"`      // Failure detail
	DurationMs int64     `json:"duration_ms,omitempty"` // Wall time of the routed call
	Timestamp  time.Time `json:"timestamp"`
}

// Sink accepts events. Implementations must not block for long and must
// swallow their own delivery failures.
type Sink interface {
	Publish(event Event)
}

// NopSink discards all events.
type NopSink struct{}

// Publish discards the event.
func (NopSink) Publish(Event) {}

// LoggerSink writes events to the structured log.
type LoggerSink struct {
	logger *logging.Logger
}

// NewLoggerSink creates a sink backed by the given logger.
func NewLoggerSink(logger *logging.Logger) *LoggerSink {
	return &LoggerSink{logger: logger.WithComponent("events")}
}

// Publish logs the event.
func (s *LoggerSink) Publish(e Event) {
	fields := map[string]interface{}{
		"component": e.Component,
		"outcome":   e.Outcome,
	}
	if e.AgentID != "" {
		fields["agent"] = e.AgentID
	}
	if e.SessionID != "" {
		fields["session"] = e.SessionID
	}
	if e.Reason != "" {
		fields["reason"] = e.Reason
	}
	if e.DurationMs > 0 {
		fields["duration_ms"] = e.DurationMs
	}
	s.logger.Info("routing_event", fields)
}

// MultiSink fans an event out to several sinks.
type MultiSink []Sink

// Publish delivers the event to every sink in order.
func (m MultiSink) Publish(e Event) {
	for _, s := range m {
		s.Publish(e)
	}
}
