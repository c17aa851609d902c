package lifecycle

import (
	"context"

	"cart-flipper/server/logging"
)

const (
	// EventPeerJoined is emitted when a peer connection is registered.
	EventPeerJoined logging.EventType = "lifecycle.peer_joined"
	// EventPeerDisconnected is emitted when a peer connection is removed.
	EventPeerDisconnected logging.EventType = "lifecycle.peer_disconnected"
)

// PeerJoinedPayload captures connection metadata for a new peer.
type PeerJoinedPayload struct {
	RemoteAddr string `json:"remoteAddr,omitempty"`
	Replaced   bool   `json:"replaced,omitempty"`
}

// PeerDisconnectedPayload captures the reason a peer left.
type PeerDisconnectedPayload struct {
	Reason string `json:"reason"`
}

// PeerJoined publishes a peer join event.
func PeerJoined(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload PeerJoinedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventPeerJoined,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: "lifecycle",
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// PeerDisconnected publishes a peer disconnect event.
func PeerDisconnected(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload PeerDisconnectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventPeerDisconnected,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: "lifecycle",
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
