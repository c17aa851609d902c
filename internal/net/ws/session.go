package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cart-flipper/server/internal/net/packet"
)

const (
	writeWait = 10 * time.Second
	// maxFrameSize bounds a single inbound envelope.
	maxFrameSize = 64 << 10
)

// ErrClosed is returned by writes on a closed connection.
var ErrClosed = errors.New("ws: connection closed")

// Conn is one peer connection. Writes are serialized; reads belong to the
// goroutine running the read loop.
type Conn struct {
	id   uint64
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newConn(id uint64, conn *websocket.Conn) *Conn {
	conn.SetReadLimit(maxFrameSize)
	return &Conn{id: id, conn: conn, done: make(chan struct{})}
}

// ID returns the routing id of the remote process.
func (c *Conn) ID() uint64 {
	return c.id
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Write sends one envelope as a binary frame.
func (c *Conn) Write(env packet.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.BinaryMessage, env.Encode())
}

// Disconnect sends a close frame carrying reason and closes the connection.
func (c *Conn) Disconnect(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
	err := c.conn.Close()
	close(c.done)
	return err
}

// Close closes the connection without a close frame.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	return c.conn.Close()
}

// Done is closed once the connection has been closed locally.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// readEnvelope blocks for the next binary frame. Frames that fail to decode
// are returned with a nil error and ok=false so the caller can skip them.
func (c *Conn) readEnvelope() (packet.Envelope, bool, error) {
	messageType, payload, err := c.conn.ReadMessage()
	if err != nil {
		return packet.Envelope{}, false, err
	}
	if messageType != websocket.BinaryMessage {
		return packet.Envelope{}, false, nil
	}
	env, err := packet.DecodeEnvelope(payload)
	if err != nil {
		return packet.Envelope{}, false, nil
	}
	return env, true, nil
}
