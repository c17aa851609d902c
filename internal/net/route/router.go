// Package route delivers named single-argument commands between processes.
//
// Delivery is best-effort and at-most-once: Send never reports failure and
// never retries. Callers that need confirmation must arrange it themselves.
package route

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cart-flipper/server/internal/net/packet"
	"cart-flipper/server/internal/telemetry"
	"cart-flipper/server/logging"
	"cart-flipper/server/logging/network"
)

// HelloCommand is reserved for the authority announcing its routing id to a
// newly connected peer.
const HelloCommand = "route.hello"

// ErrDuplicateHandler is returned when a command name is registered twice.
var ErrDuplicateHandler = errors.New("route: handler already registered")

// Handler processes one inbound command. sender is the routing id of the
// process that issued it.
type Handler func(sender uint64, payload []byte)

// Link writes envelopes to one connected process.
type Link interface {
	Write(env packet.Envelope) error
}

// Links resolves direct links by routing id. The authority's peer hub
// implements it; clients have none.
type Links interface {
	Link(id uint64) (Link, bool)
}

// Config wires a Router.
type Config struct {
	Self      uint64
	Links     Links
	Publisher logging.Publisher
	Logger    telemetry.Logger
}

// Router registers handlers and addresses commands by routing id.
type Router struct {
	self   uint64
	links  Links
	pub    logging.Publisher
	logger telemetry.Logger

	mu        sync.RWMutex
	handlers  map[string]Handler
	upstream  Link
	authority uint64
	ready     chan struct{}
	readyOnce sync.Once
}

// New constructs a router for the process identified by cfg.Self.
func New(cfg Config) *Router {
	pub := cfg.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}
	return &Router{
		self:     cfg.Self,
		links:    cfg.Links,
		pub:      pub,
		logger:   logger,
		handlers: make(map[string]Handler),
		ready:    make(chan struct{}),
	}
}

// Self returns this process's routing id.
func (r *Router) Self() uint64 {
	return r.self
}

// Register installs the handler for name. A second registration of the same
// name fails with ErrDuplicateHandler and leaves the first in place.
func (r *Router) Register(name string, handler Handler) error {
	if name == "" || handler == nil {
		return fmt.Errorf("route: invalid registration for %q", name)
	}
	if name == HelloCommand {
		return fmt.Errorf("%w: %s is reserved", ErrDuplicateHandler, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, name)
	}
	r.handlers[name] = handler
	return nil
}

// Send addresses name to dest. Local destinations are dispatched in place,
// connected peers are written directly, anything else goes upstream. When no
// path exists the command is dropped.
func (r *Router) Send(dest uint64, name string, payload []byte) {
	env := packet.Envelope{Sender: r.self, Target: dest, Name: name, Payload: payload}
	if dest == r.self {
		r.deliver(env)
		return
	}
	if r.links != nil {
		if link, ok := r.links.Link(dest); ok {
			r.write(link, env)
			return
		}
	}
	if upstream := r.currentUpstream(); upstream != nil {
		r.write(upstream, env)
		return
	}
	r.undeliverable(env, "no route")
}

// Dispatch handles an envelope read from a transport. Envelopes addressed to
// another peer are forwarded; the rest are handed to the registered handler.
func (r *Router) Dispatch(env packet.Envelope) {
	if env.Name == HelloCommand {
		r.setAuthority(env.Sender)
		return
	}
	if env.Target != 0 && env.Target != r.self {
		if r.links != nil {
			if link, ok := r.links.Link(env.Target); ok {
				r.write(link, env)
				return
			}
		}
		r.undeliverable(env, "unknown destination")
		return
	}
	r.deliver(env)
}

// Hello builds the announcement the authority sends to a new peer.
func (r *Router) Hello(peer uint64) packet.Envelope {
	return packet.Envelope{Sender: r.self, Target: peer, Name: HelloCommand}
}

// SetUpstream installs the link used for destinations without a direct
// route. Passing nil detaches it.
func (r *Router) SetUpstream(link Link) {
	r.mu.Lock()
	r.upstream = link
	r.mu.Unlock()
}

// Authority reports the authority routing id learned from the hello frame.
func (r *Router) Authority() (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.authority, r.authority != 0
}

// WaitAuthority blocks until the hello frame arrives or ctx ends.
func (r *Router) WaitAuthority(ctx context.Context) (uint64, error) {
	select {
	case <-r.ready:
		id, _ := r.Authority()
		return id, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (r *Router) setAuthority(id uint64) {
	if id == 0 {
		return
	}
	r.mu.Lock()
	r.authority = id
	r.mu.Unlock()
	r.readyOnce.Do(func() { close(r.ready) })
}

func (r *Router) currentUpstream() Link {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.upstream
}

func (r *Router) deliver(env packet.Envelope) {
	r.mu.RLock()
	handler, ok := r.handlers[env.Name]
	r.mu.RUnlock()
	if !ok {
		network.CommandUnhandled(context.Background(), r.pub, logging.PeerRef(env.Sender), network.CommandPayload{Name: env.Name, Target: env.Target}, nil)
		return
	}
	handler(env.Sender, env.Payload)
}

func (r *Router) write(link Link, env packet.Envelope) {
	if err := link.Write(env); err != nil {
		r.logger.Printf("[route] dropping %s for %d: %v", env.Name, env.Target, err)
		r.undeliverable(env, err.Error())
	}
}

func (r *Router) undeliverable(env packet.Envelope, reason string) {
	network.CommandUndeliverable(context.Background(), r.pub, logging.PeerRef(env.Sender), network.CommandPayload{
		Name:   env.Name,
		Target: env.Target,
		Reason: reason,
	}, nil)
}
