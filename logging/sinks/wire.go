package sinks

import (
	"time"

	"cart-flipper/server/logging"
)

// wireEvent is the serialized form shared by the JSON and Redis sinks.
// Severity is rendered by name and time in RFC 3339 with nanoseconds.
type wireEvent struct {
	Type      logging.EventType   `json:"type"`
	Tick      uint64              `json:"tick"`
	Time      string              `json:"time"`
	Severity  string              `json:"severity"`
	Category  string              `json:"category,omitempty"`
	Actor     logging.EntityRef   `json:"actor"`
	Targets   []logging.EntityRef `json:"targets,omitempty"`
	Payload   any                 `json:"payload,omitempty"`
	Extra     map[string]any      `json:"extra,omitempty"`
	TraceID   string              `json:"traceId,omitempty"`
	CommandID string              `json:"commandId,omitempty"`
}

func toWire(event logging.Event) wireEvent {
	return wireEvent{
		Type:      event.Type,
		Tick:      event.Tick,
		Time:      event.Time.Format(time.RFC3339Nano),
		Severity:  event.Severity.String(),
		Category:  event.Category,
		Actor:     event.Actor,
		Targets:   event.Targets,
		Payload:   event.Payload,
		Extra:     event.Extra,
		TraceID:   event.TraceID,
		CommandID: event.CommandID,
	}
}
