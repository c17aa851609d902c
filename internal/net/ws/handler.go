package ws

import (
	nethttp "net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"cart-flipper/server/internal/net/route"
	"cart-flipper/server/internal/telemetry"
)

// PeerQueryParam carries the connecting process's routing id.
const PeerQueryParam = "peer"

type HandlerConfig struct {
	Logger telemetry.Logger
}

// Handler accepts peer connections on the authority.
type Handler struct {
	hub      *Hub
	router   *route.Router
	logger   telemetry.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, router *route.Router, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:      hub,
		router:   router,
		logger:   logger,
		upgrader: upgrader,
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	raw := r.URL.Query().Get(PeerQueryParam)
	if raw == "" {
		nethttp.Error(w, "missing peer", nethttp.StatusBadRequest)
		return
	}
	peerID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || peerID == 0 {
		nethttp.Error(w, "invalid peer", nethttp.StatusBadRequest)
		return
	}
	if peerID == h.router.Self() {
		nethttp.Error(w, "peer id collides with authority", nethttp.StatusConflict)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %d: %v", peerID, err)
		return
	}

	conn := newConn(peerID, ws)
	if err := conn.Write(h.router.Hello(peerID)); err != nil {
		h.logger.Printf("hello failed for %d: %v", peerID, err)
		conn.Close()
		return
	}
	h.hub.add(conn)

	for {
		env, ok, err := conn.readEnvelope()
		if err != nil {
			h.hub.remove(conn, "read closed")
			conn.Close()
			return
		}
		if !ok {
			h.logger.Printf("discarding malformed frame from %d", peerID)
			continue
		}
		env.Sender = peerID
		h.router.Dispatch(env)
	}
}
