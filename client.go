package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"cart-flipper/server/internal/correction"
	"cart-flipper/server/internal/net/intake"
	"cart-flipper/server/internal/net/packet"
	"cart-flipper/server/internal/net/route"
	"cart-flipper/server/internal/net/ws"
	"cart-flipper/server/internal/objectid"
	"cart-flipper/server/internal/telemetry"
	"cart-flipper/server/internal/version"
	"cart-flipper/server/logging"
)

var (
	// ErrNotConnected is returned when a client has no authority link.
	ErrNotConnected = errors.New("client: not connected")
	// ErrUnsetObject is returned for the zero ID, which no world issues.
	ErrUnsetObject = errors.New("client: object id is unset")
)

// Handle is an object the client's UI has picked out.
type Handle interface {
	correction.Object
	ID() objectid.ID
}

// ClientConfig wires a peer process.
type ClientConfig struct {
	ID      uint64
	Version string
	// Classifier screens objects before a request is sent. Nil accepts
	// everything and leaves the check to the authority.
	Classifier correction.Classifier

	Publisher logging.Publisher
	Logger    telemetry.Logger
	Dialer    *websocket.Dialer
}

// Client is a non-authoritative peer. It answers version requests and asks
// the authority to correct objects.
type Client struct {
	id         uint64
	classifier correction.Classifier
	logger     telemetry.Logger
	dialer     *websocket.Dialer
	router     *route.Router

	mu   sync.Mutex
	conn *ws.Conn
}

// NewClient registers the version responder on a fresh router.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.ID == 0 {
		return nil, fmt.Errorf("client: routing id must be non-zero")
	}
	if cfg.Version == "" {
		cfg.Version = ProtocolVersion
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}
	router := route.New(route.Config{
		Self:      cfg.ID,
		Publisher: cfg.Publisher,
		Logger:    logger,
	})
	if err := version.NewResponder(cfg.Version, router).Register(router); err != nil {
		return nil, fmt.Errorf("register %s: %w", version.CommandRequest, err)
	}
	return &Client{
		id:         cfg.ID,
		classifier: cfg.Classifier,
		logger:     logger,
		dialer:     cfg.Dialer,
		router:     router,
	}, nil
}

// ID returns the client's routing id.
func (c *Client) ID() uint64 { return c.id }

// Router exposes the client's command router.
func (c *Client) Router() *route.Router { return c.router }

// Connect dials the authority. The connection lives until ctx ends or the
// authority drops it.
func (c *Client) Connect(ctx context.Context, authorityURL string) error {
	conn, err := ws.Dial(ctx, authorityURL, c.id, c.router, ws.DialConfig{
		Logger: c.logger,
		Dialer: c.dialer,
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Done closes when the authority connection ends.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.conn.Done()
}

// Close drops the authority connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// RequestCorrection screens obj with the client's classifier and asks the
// authority to correct it.
func (c *Client) RequestCorrection(ctx context.Context, obj Handle) error {
	if obj == nil {
		return correction.ErrUnresolvableTarget
	}
	if c.classifier != nil && !c.classifier.Correctable(obj) {
		return fmt.Errorf("%w: %s", correction.ErrNotCorrectable, obj.ID())
	}
	return c.RequestCorrectionID(ctx, obj.ID())
}

// RequestCorrectionID sends a correct-object command for id once the
// authority has announced itself. Delivery is not confirmed.
func (c *Client) RequestCorrectionID(ctx context.Context, id objectid.ID) error {
	if id.IsZero() {
		return ErrUnsetObject
	}
	c.mu.Lock()
	connected := c.conn != nil
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	authority, err := c.router.WaitAuthority(ctx)
	if err != nil {
		return fmt.Errorf("client: waiting for authority: %w", err)
	}
	c.router.Send(authority, intake.CommandCorrectObject, packet.StringPayload(id.String()))
	return nil
}
