package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"cart-flipper/server/internal/net/packet"
	"cart-flipper/server/internal/net/route"
)

const authorityID = 1000

type received struct {
	sender  uint64
	payload string
}

func newAuthority(t *testing.T) (*Hub, *route.Router, *httptest.Server) {
	t.Helper()
	hub := NewHub(HubConfig{})
	router := route.New(route.Config{Self: authorityID, Links: hub})
	handler := NewHandler(hub, router, HandlerConfig{})
	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(srv.Close)
	return hub, router, srv
}

func websocketURL(t *testing.T, baseURL string) string {
	t.Helper()

	parsed, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("failed to parse test server url: %v", err)
	}
	parsed.Scheme = "ws"
	parsed.Path = "/"
	return parsed.String()
}

func capture(t *testing.T, router *route.Router, name string) <-chan received {
	t.Helper()
	ch := make(chan received, 8)
	if err := router.Register(name, func(sender uint64, payload []byte) {
		ch <- received{sender: sender, payload: string(payload)}
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return ch
}

func waitFor(t *testing.T, ch <-chan received) received {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for command")
		return received{}
	}
}

func waitForPeers(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d peers, have %d", n, hub.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClientReachesAuthority(t *testing.T) {
	_, authority, srv := newAuthority(t)
	inbox := capture(t, authority, "correct-object")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	client := route.New(route.Config{Self: 7})
	if _, err := Dial(ctx, websocketURL(t, srv.URL), 7, client, DialConfig{}); err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	id, err := client.WaitAuthority(waitCtx)
	if err != nil {
		t.Fatalf("authority never announced: %v", err)
	}
	if id != authorityID {
		t.Fatalf("expected authority %d, got %d", authorityID, id)
	}

	client.Send(id, "correct-object", packet.StringPayload("3:4"))
	msg := waitFor(t, inbox)
	if msg.sender != 7 {
		t.Fatalf("expected sender 7, got %d", msg.sender)
	}
	target, err := packet.ReadStringPayload([]byte(msg.payload))
	if err != nil || target != "3:4" {
		t.Fatalf("unexpected payload %q (%v)", target, err)
	}
}

func TestAuthorityReachesClient(t *testing.T) {
	hub, authority, srv := newAuthority(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	client := route.New(route.Config{Self: 9})
	inbox := capture(t, client, "version-request")
	if _, err := Dial(ctx, websocketURL(t, srv.URL), 9, client, DialConfig{}); err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	waitForPeers(t, hub, 1)

	authority.Send(9, "version-request", nil)
	msg := waitFor(t, inbox)
	if msg.sender != authorityID {
		t.Fatalf("expected sender %d, got %d", authorityID, msg.sender)
	}
	if ids := hub.PeerIDs(); len(ids) != 1 || ids[0] != 9 {
		t.Fatalf("unexpected peer ids %v", ids)
	}
}

func TestSenderIsOverwrittenAndMalformedFramesSkipped(t *testing.T) {
	_, authority, srv := newAuthority(t)
	inbox := capture(t, authority, "ping")

	raw := websocketURL(t, srv.URL) + "?" + PeerQueryParam + "=" + strconv.Itoa(5)
	conn, resp, err := websocket.DefaultDialer.Dial(raw, nil)
	if err != nil {
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		if resp != nil {
			resp.Body.Close()
		}
	})

	// hello
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("failed to read hello: %v", err)
	}

	conn.WriteMessage(websocket.TextMessage, []byte("not binary"))
	conn.WriteMessage(websocket.BinaryMessage, []byte{0xff, 0xff})
	spoofed := packet.Envelope{Sender: 999, Target: authorityID, Name: "ping", Payload: []byte("x")}
	if err := conn.WriteMessage(websocket.BinaryMessage, spoofed.Encode()); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	msg := waitFor(t, inbox)
	if msg.sender != 5 {
		t.Fatalf("expected sender to be the connection id 5, got %d", msg.sender)
	}
}

func TestHubDisconnectClosesClient(t *testing.T) {
	hub, _, srv := newAuthority(t)
	left := make(chan uint64, 1)
	hub.SetHooks(nil, func(id uint64) { left <- id })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	client := route.New(route.Config{Self: 11})
	conn, err := Dial(ctx, websocketURL(t, srv.URL), 11, client, DialConfig{})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	waitForPeers(t, hub, 1)

	if !hub.Disconnect(11, "version mismatch") {
		t.Fatalf("expected disconnect to find the peer")
	}
	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("client connection was not closed")
	}
	select {
	case id := <-left:
		if id != 11 {
			t.Fatalf("expected leave hook for 11, got %d", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("leave hook not called")
	}
	if hub.Disconnect(11, "again") {
		t.Fatalf("expected second disconnect to report a missing peer")
	}
}

func TestHandleRejectsBadPeerParam(t *testing.T) {
	_, _, srv := newAuthority(t)
	for _, query := range []string{"", "?peer=abc", "?peer=0", "?peer=1000"} {
		resp, err := http.Get(srv.URL + "/" + query)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusSwitchingProtocols || resp.StatusCode < 400 {
			t.Fatalf("expected rejection for %q, got %d", query, resp.StatusCode)
		}
	}
}
