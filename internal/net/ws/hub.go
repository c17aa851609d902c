package ws

import (
	"context"
	"sort"
	"sync"

	"cart-flipper/server/internal/net/route"
	"cart-flipper/server/logging"
	"cart-flipper/server/logging/lifecycle"
)

// HubConfig wires the peer directory's observers.
type HubConfig struct {
	Publisher logging.Publisher
	// OnJoin runs after a peer is registered.
	OnJoin func(id uint64)
	// OnLeave runs after a peer is removed.
	OnLeave func(id uint64)
}

// Hub tracks the authority's live peer connections by routing id.
type Hub struct {
	pub     logging.Publisher
	onJoin  func(uint64)
	onLeave func(uint64)

	mu    sync.RWMutex
	peers map[uint64]*Conn
}

// NewHub constructs an empty directory.
func NewHub(cfg HubConfig) *Hub {
	pub := cfg.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	return &Hub{
		pub:     pub,
		onJoin:  cfg.OnJoin,
		onLeave: cfg.OnLeave,
		peers:   make(map[uint64]*Conn),
	}
}

// SetHooks replaces the join and leave observers.
func (h *Hub) SetHooks(onJoin, onLeave func(uint64)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onJoin = onJoin
	h.onLeave = onLeave
}

// Link implements route.Links.
func (h *Hub) Link(id uint64) (route.Link, bool) {
	conn, ok := h.LookupPeer(id)
	if !ok {
		return nil, false
	}
	return conn, true
}

// LookupPeer returns the live connection for id.
func (h *Hub) LookupPeer(id uint64) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.peers[id]
	return conn, ok
}

// PeerIDs lists connected routing ids in ascending order.
func (h *Hub) PeerIDs() []uint64 {
	h.mu.RLock()
	ids := make([]uint64, 0, len(h.peers))
	for id := range h.peers {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len reports the number of connected peers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Disconnect closes the peer's connection with reason. It reports false when
// the peer is not connected.
func (h *Hub) Disconnect(id uint64, reason string) bool {
	conn, ok := h.LookupPeer(id)
	if !ok {
		return false
	}
	_ = conn.Disconnect(reason)
	h.remove(conn, reason)
	return true
}

// add registers conn, replacing and closing any earlier connection with the
// same id.
func (h *Hub) add(conn *Conn) {
	h.mu.Lock()
	previous, replaced := h.peers[conn.id]
	h.peers[conn.id] = conn
	onJoin := h.onJoin
	h.mu.Unlock()

	if replaced {
		_ = previous.Disconnect("replaced by a newer connection")
	}
	lifecycle.PeerJoined(context.Background(), h.pub, logging.PeerRef(conn.id), lifecycle.PeerJoinedPayload{
		RemoteAddr: conn.RemoteAddr(),
		Replaced:   replaced,
	}, nil)
	if onJoin != nil {
		onJoin(conn.id)
	}
}

// remove unregisters conn if it is still the current connection for its id.
func (h *Hub) remove(conn *Conn, reason string) {
	h.mu.Lock()
	current, ok := h.peers[conn.id]
	if !ok || current != conn {
		h.mu.Unlock()
		return
	}
	delete(h.peers, conn.id)
	onLeave := h.onLeave
	h.mu.Unlock()

	lifecycle.PeerDisconnected(context.Background(), h.pub, logging.PeerRef(conn.id), lifecycle.PeerDisconnectedPayload{Reason: reason}, nil)
	if onLeave != nil {
		onLeave(conn.id)
	}
}

var _ route.Links = (*Hub)(nil)
