// Package correction publishes the observable lifecycle of object correction
// sessions. These events are the only outcome signal a requester receives.
package correction

import (
	"context"

	"cart-flipper/server/logging"
)

const (
	// EventAccepted is emitted when a session starts for a misoriented object.
	EventAccepted logging.EventType = "correction.accepted"
	// EventRejected is emitted when a request does not start a session.
	EventRejected logging.EventType = "correction.rejected"
	// EventPhase is emitted on every phase transition of a live session.
	EventPhase logging.EventType = "correction.phase"
	// EventRetry is emitted when a settled object is still misoriented and
	// another attempt begins.
	EventRetry logging.EventType = "correction.retry"
	// EventSucceeded is emitted when a settled object is upright.
	EventSucceeded logging.EventType = "correction.succeeded"
	// EventExhausted is emitted when the attempt ceiling is reached.
	EventExhausted logging.EventType = "correction.exhausted"
	// EventAborted is emitted when the target disappears mid-session.
	EventAborted logging.EventType = "correction.aborted"
)

// SessionPayload summarizes a session at the moment of the event.
type SessionPayload struct {
	Object      string  `json:"object"`
	Phase       string  `json:"phase,omitempty"`
	Previous    string  `json:"previous,omitempty"`
	Attempt     int     `json:"attempt"`
	MaxAttempts int     `json:"maxAttempts"`
	TiltDegrees float64 `json:"tiltDegrees"`
}

// RejectedPayload explains why a request was dropped.
type RejectedPayload struct {
	Object string `json:"object"`
	Reason string `json:"reason"`
}

// Accepted publishes an info event when a session begins.
func Accepted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SessionPayload) {
	publish(ctx, pub, EventAccepted, logging.SeverityInfo, tick, actor, payload.Object, payload)
}

// Rejected publishes a request rejection. Rejections that are a normal
// "nothing to do" answer use info; everything else is a warning.
func Rejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, severity logging.Severity, payload RejectedPayload) {
	publish(ctx, pub, EventRejected, severity, tick, actor, payload.Object, payload)
}

// Phase publishes an info event for a phase transition.
func Phase(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SessionPayload) {
	publish(ctx, pub, EventPhase, logging.SeverityInfo, tick, actor, payload.Object, payload)
}

// Retry publishes a warning when another attempt is scheduled.
func Retry(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SessionPayload) {
	publish(ctx, pub, EventRetry, logging.SeverityWarn, tick, actor, payload.Object, payload)
}

// Succeeded publishes an info event for an upright object.
func Succeeded(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SessionPayload) {
	publish(ctx, pub, EventSucceeded, logging.SeverityInfo, tick, actor, payload.Object, payload)
}

// Exhausted publishes a warning when the attempt ceiling is reached.
func Exhausted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SessionPayload) {
	publish(ctx, pub, EventExhausted, logging.SeverityWarn, tick, actor, payload.Object, payload)
}

// Aborted publishes a warning when the session target is lost.
func Aborted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SessionPayload) {
	publish(ctx, pub, EventAborted, logging.SeverityWarn, tick, actor, payload.Object, payload)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, tick uint64, actor logging.EntityRef, object string, payload any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryCorrection,
		Payload:  payload,
	}
	if object != "" {
		event.Targets = []logging.EntityRef{logging.ObjectRef(object)}
	}
	pub.Publish(ctx, event)
}
