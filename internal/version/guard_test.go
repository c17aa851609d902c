package version

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cart-flipper/server/internal/net/packet"
	"cart-flipper/server/internal/net/route"
	"cart-flipper/server/logging"
	"cart-flipper/server/logging/handshake"
)

type fakePeer struct {
	mu      sync.Mutex
	reasons []string
}

func (p *fakePeer) Disconnect(reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reasons = append(p.reasons, reason)
	return nil
}

func (p *fakePeer) disconnects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reasons)
}

type fakeDirectory map[uint64]*fakePeer

func (d fakeDirectory) PeerIDs() []uint64 {
	ids := make([]uint64, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	return ids
}

func (d fakeDirectory) LookupPeer(id uint64) (Peer, bool) {
	peer, ok := d[id]
	if !ok {
		return nil, false
	}
	return peer, true
}

type sent struct {
	dest    uint64
	name    string
	payload []byte
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
}

func (s *fakeSender) Send(dest uint64, name string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sent{dest: dest, name: name, payload: payload})
}

func (s *fakeSender) snapshot() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.sent...)
}

type eventTypes struct {
	mu    sync.Mutex
	types []logging.EventType
}

func (e *eventTypes) Publish(_ context.Context, event logging.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, event.Type)
}

func (e *eventTypes) has(t logging.EventType) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, got := range e.types {
		if got == t {
			return true
		}
	}
	return false
}

func TestMismatchDisconnectsPeer(t *testing.T) {
	peer := &fakePeer{}
	events := &eventTypes{}
	guard := NewGuard(GuardConfig{Version: "0.1.10", Directory: fakeDirectory{4: peer}, Publisher: events})

	err := guard.HandleReport(4, packet.StringPayload("0.1.9"))
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
	if peer.disconnects() != 1 {
		t.Fatalf("expected one disconnect, got %d", peer.disconnects())
	}
	if !events.has(handshake.EventMismatch) {
		t.Fatalf("expected mismatch event")
	}
}

func TestMatchKeepsPeer(t *testing.T) {
	peer := &fakePeer{}
	events := &eventTypes{}
	guard := NewGuard(GuardConfig{Version: "0.1.10", Directory: fakeDirectory{4: peer}, Publisher: events})

	if err := guard.HandleReport(4, packet.StringPayload("0.1.10")); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if peer.disconnects() != 0 {
		t.Fatalf("expected no disconnect")
	}
	if !events.has(handshake.EventMatched) {
		t.Fatalf("expected matched event")
	}
}

func TestVersionComparisonIsExact(t *testing.T) {
	for _, reported := range []string{"0.1.10 ", "v0.1.10", "0.1.1", ""} {
		peer := &fakePeer{}
		guard := NewGuard(GuardConfig{Version: "0.1.10", Directory: fakeDirectory{4: peer}})
		if err := guard.HandleReport(4, packet.StringPayload(reported)); !errors.Is(err, ErrVersionMismatch) {
			t.Fatalf("expected %q to mismatch, got %v", reported, err)
		}
		if peer.disconnects() != 1 {
			t.Fatalf("expected %q to disconnect", reported)
		}
	}
}

func TestMalformedReportIsMismatch(t *testing.T) {
	peer := &fakePeer{}
	guard := NewGuard(GuardConfig{Version: "0.1.10", Directory: fakeDirectory{4: peer}})
	if err := guard.HandleReport(4, []byte{0x09}); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if peer.disconnects() != 1 {
		t.Fatalf("expected malformed report to disconnect")
	}
}

func TestLookupFailureIsIgnored(t *testing.T) {
	events := &eventTypes{}
	guard := NewGuard(GuardConfig{Version: "0.1.10", Directory: fakeDirectory{}, Publisher: events})
	err := guard.HandleReport(4, packet.StringPayload("0.0.1"))
	if !errors.Is(err, ErrPeerLookup) || !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected lookup failure wrapping the mismatch, got %v", err)
	}
	if !events.has(handshake.EventPeerMissing) {
		t.Fatalf("expected peer missing event")
	}
}

func TestStartRequestsEveryPeerAfterGrace(t *testing.T) {
	sender := &fakeSender{}
	guard := NewGuard(GuardConfig{
		Version:    "0.1.10",
		GraceDelay: 10 * time.Millisecond,
		Directory:  fakeDirectory{1: {}, 2: {}},
		Sender:     sender,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	guard.Start(ctx)
	if got := len(sender.snapshot()); got != 0 {
		t.Fatalf("expected no requests before the grace delay, got %d", got)
	}
	guard.Wait()

	requests := sender.snapshot()
	if len(requests) != 2 {
		t.Fatalf("expected two requests, got %d", len(requests))
	}
	for _, req := range requests {
		if req.name != CommandRequest || len(req.payload) != 0 {
			t.Fatalf("unexpected request %+v", req)
		}
	}

	guard.PeerJoined(3)
	guard.Wait()
	requests = sender.snapshot()
	if len(requests) != 3 || requests[2].dest != 3 {
		t.Fatalf("expected late joiner to get a request, got %+v", requests)
	}
}

func TestStartHonorsCancellation(t *testing.T) {
	sender := &fakeSender{}
	guard := NewGuard(GuardConfig{
		GraceDelay: time.Hour,
		Directory:  fakeDirectory{1: {}},
		Sender:     sender,
	})
	ctx, cancel := context.WithCancel(context.Background())
	guard.Start(ctx)
	cancel()
	guard.Wait()
	if len(sender.snapshot()) != 0 {
		t.Fatalf("expected no requests after cancellation")
	}
}

func TestResponderRepliesToRequester(t *testing.T) {
	sender := &fakeSender{}
	router := route.New(route.Config{Self: 9})
	responder := NewResponder("0.1.10", sender)
	if err := responder.Register(router); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	router.Dispatch(packet.Envelope{Sender: 1000, Target: 9, Name: CommandRequest})

	replies := sender.snapshot()
	if len(replies) != 1 {
		t.Fatalf("expected one reply, got %d", len(replies))
	}
	if replies[0].dest != 1000 || replies[0].name != CommandReport {
		t.Fatalf("unexpected reply %+v", replies[0])
	}
	report, err := DecodeReport(9, replies[0].payload)
	if err != nil || report.Version != "0.1.10" {
		t.Fatalf("unexpected report %+v (%v)", report, err)
	}
}
