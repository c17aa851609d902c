package network

import (
	"context"

	"cart-flipper/server/logging"
)

const (
	// EventCommandUndeliverable is emitted when a routed command has no path
	// to its destination and is dropped.
	EventCommandUndeliverable logging.EventType = "network.command_undeliverable"
	// EventCommandUnhandled is emitted when a command arrives with no
	// registered handler.
	EventCommandUnhandled logging.EventType = "network.command_unhandled"
	// EventCommandRejected is emitted when intake refuses to stage a command.
	EventCommandRejected logging.EventType = "network.command_rejected"
)

// CommandPayload describes a routed command.
type CommandPayload struct {
	Name   string `json:"name"`
	Target uint64 `json:"target,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// CommandUndeliverable publishes a debug event for a dropped send.
func CommandUndeliverable(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload CommandPayload, extra map[string]any) {
	publish(ctx, pub, EventCommandUndeliverable, logging.SeverityDebug, actor, payload, extra)
}

// CommandUnhandled publishes a warning for a command without a handler.
func CommandUnhandled(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload CommandPayload, extra map[string]any) {
	publish(ctx, pub, EventCommandUnhandled, logging.SeverityWarn, actor, payload, extra)
}

// CommandRejected publishes a warning when a command is refused at intake.
func CommandRejected(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload CommandPayload, extra map[string]any) {
	publish(ctx, pub, EventCommandRejected, logging.SeverityWarn, actor, payload, extra)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, actor logging.EntityRef, payload CommandPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     eventType,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
