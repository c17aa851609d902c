package route

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cart-flipper/server/internal/net/packet"
	"cart-flipper/server/logging"
	"cart-flipper/server/logging/network"
)

// pipe delivers envelopes straight into another router, as a websocket
// connection would after decoding.
type pipe struct {
	to     *Router
	sender uint64
	err    error
}

func (p *pipe) Write(env packet.Envelope) error {
	if p.err != nil {
		return p.err
	}
	if p.sender != 0 {
		env.Sender = p.sender
	}
	p.to.Dispatch(env)
	return nil
}

type linkTable map[uint64]Link

func (t linkTable) Link(id uint64) (Link, bool) {
	link, ok := t[id]
	return link, ok
}

type recorded struct {
	sender  uint64
	payload string
}

type recorder struct {
	mu    sync.Mutex
	calls []recorded
}

func (r *recorder) handle(sender uint64, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recorded{sender: sender, payload: string(payload)})
}

func (r *recorder) snapshot() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.calls...)
}

type eventLog struct {
	mu     sync.Mutex
	events []logging.Event
}

func (l *eventLog) publisher() logging.Publisher {
	return logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = append(l.events, event)
	})
}

func (l *eventLog) types() []logging.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	types := make([]logging.EventType, 0, len(l.events))
	for _, event := range l.events {
		types = append(types, event.Type)
	}
	return types
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	router := New(Config{Self: 1})
	if err := router.Register("correct-object", func(uint64, []byte) {}); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	err := router.Register("correct-object", func(uint64, []byte) {})
	if !errors.Is(err, ErrDuplicateHandler) {
		t.Fatalf("expected ErrDuplicateHandler, got %v", err)
	}
	if err := router.Register(HelloCommand, func(uint64, []byte) {}); err == nil {
		t.Fatalf("expected reserved name to be refused")
	}
	if err := router.Register("", func(uint64, []byte) {}); err == nil {
		t.Fatalf("expected empty name to be refused")
	}
}

func TestSendToSelfDispatchesLocally(t *testing.T) {
	router := New(Config{Self: 5})
	rec := &recorder{}
	if err := router.Register("ping", rec.handle); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	router.Send(5, "ping", []byte("hi"))
	calls := rec.snapshot()
	if len(calls) != 1 || calls[0].sender != 5 || calls[0].payload != "hi" {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestClientRoutesThroughAuthority(t *testing.T) {
	authority := New(Config{Self: 100, Links: linkTable{}})
	client := New(Config{Self: 7})
	client.SetUpstream(&pipe{to: authority, sender: 7})

	rec := &recorder{}
	if err := authority.Register("correct-object", rec.handle); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	client.Send(100, "correct-object", []byte("1:2"))

	calls := rec.snapshot()
	if len(calls) != 1 || calls[0].sender != 7 || calls[0].payload != "1:2" {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestAuthorityForwardsBetweenPeers(t *testing.T) {
	links := linkTable{}
	authority := New(Config{Self: 100, Links: links})
	alice := New(Config{Self: 1})
	bob := New(Config{Self: 2})
	links[1] = &pipe{to: alice}
	links[2] = &pipe{to: bob}
	alice.SetUpstream(&pipe{to: authority, sender: 1})

	rec := &recorder{}
	if err := bob.Register("note", rec.handle); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	alice.Send(2, "note", []byte("hello bob"))

	calls := rec.snapshot()
	if len(calls) != 1 || calls[0].sender != 1 {
		t.Fatalf("expected bob to receive one command from alice, got %+v", calls)
	}
}

func TestSendWithoutRouteIsSilent(t *testing.T) {
	events := &eventLog{}
	router := New(Config{Self: 1, Links: linkTable{}, Publisher: events.publisher()})
	router.Send(99, "correct-object", nil)

	types := events.types()
	if len(types) != 1 || types[0] != network.EventCommandUndeliverable {
		t.Fatalf("expected one undeliverable event, got %v", types)
	}
}

func TestSendLinkFailureIsSilent(t *testing.T) {
	events := &eventLog{}
	links := linkTable{2: &pipe{err: errors.New("closed")}}
	router := New(Config{Self: 1, Links: links, Publisher: events.publisher()})
	router.Send(2, "version-request", nil)

	types := events.types()
	if len(types) != 1 || types[0] != network.EventCommandUndeliverable {
		t.Fatalf("expected one undeliverable event, got %v", types)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	events := &eventLog{}
	router := New(Config{Self: 1, Publisher: events.publisher()})
	router.Dispatch(packet.Envelope{Sender: 4, Target: 1, Name: "mystery"})

	types := events.types()
	if len(types) != 1 || types[0] != network.EventCommandUnhandled {
		t.Fatalf("expected one unhandled event, got %v", types)
	}
}

func TestHelloAnnouncesAuthority(t *testing.T) {
	authority := New(Config{Self: 100})
	client := New(Config{Self: 7})

	if _, ok := client.Authority(); ok {
		t.Fatalf("expected authority to be unknown before hello")
	}

	go client.Dispatch(authority.Hello(7))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	id, err := client.WaitAuthority(ctx)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if id != 100 {
		t.Fatalf("expected authority 100, got %d", id)
	}
}

func TestWaitAuthorityHonorsContext(t *testing.T) {
	client := New(Config{Self: 7})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.WaitAuthority(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
