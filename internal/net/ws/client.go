package ws

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"

	"cart-flipper/server/internal/net/route"
	"cart-flipper/server/internal/telemetry"
)

// DialConfig tunes a client connection.
type DialConfig struct {
	Logger telemetry.Logger
	Dialer *websocket.Dialer
}

// Dial connects to the authority at rawURL as peerID, installs the
// connection as router's upstream, and reads frames into router until ctx
// ends or the connection drops. The returned Conn's Done channel closes when
// reading stops.
func Dial(ctx context.Context, rawURL string, peerID uint64, router *route.Router, cfg DialConfig) (*Conn, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("ws: parse authority url: %w", err)
	}
	query := target.Query()
	query.Set(PeerQueryParam, strconv.FormatUint(peerID, 10))
	target.RawQuery = query.Encode()

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}

	ws, resp, err := dialer.DialContext(ctx, target.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", target.Redacted(), err)
	}

	conn := newConn(0, ws)
	router.SetUpstream(conn)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-conn.Done():
		}
	}()
	go func() {
		defer func() {
			router.SetUpstream(nil)
			conn.Close()
		}()
		for {
			env, ok, err := conn.readEnvelope()
			if err != nil {
				if ctx.Err() == nil {
					logger.Printf("[ws] authority connection closed: %v", err)
				}
				return
			}
			if !ok {
				logger.Printf("[ws] discarding malformed frame from authority")
				continue
			}
			router.Dispatch(env)
		}
	}()
	return conn, nil
}
