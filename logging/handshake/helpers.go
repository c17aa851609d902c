package handshake

import (
	"context"

	"cart-flipper/server/logging"
)

const (
	// EventRequested is emitted when the authority asks a peer for its version.
	EventRequested logging.EventType = "handshake.requested"
	// EventMatched is emitted when a peer reports the authority's version.
	EventMatched logging.EventType = "handshake.matched"
	// EventMismatch is emitted when a peer reports a different version and is
	// disconnected.
	EventMismatch logging.EventType = "handshake.mismatch"
	// EventPeerMissing is emitted when a mismatched peer can no longer be found.
	EventPeerMissing logging.EventType = "handshake.peer_missing"
)

// VersionPayload records both sides of a version comparison.
type VersionPayload struct {
	Expected string `json:"expected"`
	Reported string `json:"reported,omitempty"`
}

// Requested publishes a debug event per version request.
func Requested(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload VersionPayload) {
	publish(ctx, pub, EventRequested, logging.SeverityDebug, actor, payload)
}

// Matched publishes an info event for a compatible peer.
func Matched(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload VersionPayload) {
	publish(ctx, pub, EventMatched, logging.SeverityInfo, actor, payload)
}

// Mismatch publishes a warning for an incompatible peer.
func Mismatch(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload VersionPayload) {
	publish(ctx, pub, EventMismatch, logging.SeverityWarn, actor, payload)
}

// PeerMissing publishes a warning when the mismatched peer is already gone.
func PeerMissing(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload VersionPayload) {
	publish(ctx, pub, EventPeerMissing, logging.SeverityWarn, actor, payload)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, actor logging.EntityRef, payload VersionPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}
