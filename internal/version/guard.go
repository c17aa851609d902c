// Package version keeps every connected peer on the authority's protocol
// version. The authority asks each peer to report its version and
// disconnects any peer whose report differs.
package version

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cart-flipper/server/internal/net/packet"
	"cart-flipper/server/internal/net/route"
	"cart-flipper/server/internal/telemetry"
	"cart-flipper/server/logging"
	"cart-flipper/server/logging/handshake"
)

const (
	// CommandRequest asks a peer for its version. Payload is empty.
	CommandRequest = "version-request"
	// CommandReport carries a peer's version string.
	CommandReport = "version-report"

	// DefaultGraceDelay lets connections settle before the first request.
	DefaultGraceDelay = 2 * time.Second
)

var (
	// ErrVersionMismatch means the reported version differs from ours.
	ErrVersionMismatch = errors.New("version: mismatch")
	// ErrPeerLookup means a mismatched peer was no longer connected.
	ErrPeerLookup = errors.New("version: peer lookup failed")
)

// Report is one peer's answer. It is used once and not kept.
type Report struct {
	PeerID  uint64
	Version string
}

// DecodeReport reads a version-report payload. A payload that does not
// decode yields an empty version alongside the error.
func DecodeReport(sender uint64, payload []byte) (Report, error) {
	v, err := packet.ReadStringPayload(payload)
	if err != nil {
		return Report{PeerID: sender}, fmt.Errorf("version: decode report from %d: %w", sender, err)
	}
	return Report{PeerID: sender, Version: v}, nil
}

// Peer is a connection the guard can close.
type Peer interface {
	Disconnect(reason string) error
}

// Directory lists and finds connected peers.
type Directory interface {
	PeerIDs() []uint64
	LookupPeer(id uint64) (Peer, bool)
}

// Sender addresses commands to peers.
type Sender interface {
	Send(dest uint64, name string, payload []byte)
}

// Registrar installs command handlers.
type Registrar interface {
	Register(name string, handler route.Handler) error
}

type GuardConfig struct {
	Version    string
	GraceDelay time.Duration
	Directory  Directory
	Sender     Sender
	Publisher  logging.Publisher
	Logger     telemetry.Logger
}

// Guard runs on the authority.
type Guard struct {
	version    string
	graceDelay time.Duration
	directory  Directory
	sender     Sender
	pub        logging.Publisher
	logger     telemetry.Logger

	mu  sync.Mutex
	ctx context.Context
	wg  sync.WaitGroup
}

func NewGuard(cfg GuardConfig) *Guard {
	pub := cfg.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}
	if cfg.GraceDelay < 0 {
		cfg.GraceDelay = 0
	}
	return &Guard{
		version:    cfg.Version,
		graceDelay: cfg.GraceDelay,
		directory:  cfg.Directory,
		sender:     cfg.Sender,
		pub:        pub,
		logger:     logger,
	}
}

// Version returns the version peers must report.
func (g *Guard) Version() string {
	return g.version
}

// Register installs the version-report handler.
func (g *Guard) Register(registrar Registrar) error {
	return registrar.Register(CommandReport, g.Handler())
}

// Handler adapts HandleReport to a router handler.
func (g *Guard) Handler() route.Handler {
	return func(sender uint64, payload []byte) {
		_ = g.HandleReport(sender, payload)
	}
}

// Start requests a version from every connected peer once the grace delay
// has passed. Later joiners are covered by PeerJoined. Start does not block.
func (g *Guard) Start(ctx context.Context) {
	g.mu.Lock()
	g.ctx = ctx
	g.mu.Unlock()
	g.after(ctx, g.RequestAll)
}

// Wait blocks until scheduled requests have fired or been cancelled.
func (g *Guard) Wait() {
	g.wg.Wait()
}

// PeerJoined schedules a request for a peer that connected after Start.
func (g *Guard) PeerJoined(id uint64) {
	g.mu.Lock()
	ctx := g.ctx
	g.mu.Unlock()
	if ctx == nil {
		// Not started; Start's broadcast will include this peer.
		return
	}
	g.after(ctx, func() { g.Request(id) })
}

// RequestAll sends a version-request to every connected peer.
func (g *Guard) RequestAll() {
	if g.directory == nil {
		return
	}
	for _, id := range g.directory.PeerIDs() {
		g.Request(id)
	}
}

// Request sends one version-request.
func (g *Guard) Request(id uint64) {
	if g.sender == nil {
		return
	}
	handshake.Requested(context.Background(), g.pub, logging.PeerRef(id), handshake.VersionPayload{Expected: g.version})
	g.sender.Send(id, CommandRequest, nil)
}

// HandleReport compares a peer's report against our version. A mismatched
// peer is disconnected; the returned error describes the mismatch or a
// failed lookup and is informational only.
func (g *Guard) HandleReport(sender uint64, payload []byte) error {
	report, decodeErr := DecodeReport(sender, payload)
	if decodeErr != nil {
		g.logger.Printf("[version] %v", decodeErr)
	}
	versions := handshake.VersionPayload{Expected: g.version, Reported: report.Version}
	actor := logging.PeerRef(sender)

	if decodeErr == nil && report.Version == g.version {
		handshake.Matched(context.Background(), g.pub, actor, versions)
		return nil
	}

	handshake.Mismatch(context.Background(), g.pub, actor, versions)
	mismatch := fmt.Errorf("%w: peer %d reported %q, want %q", ErrVersionMismatch, sender, report.Version, g.version)

	var peer Peer
	ok := false
	if g.directory != nil {
		peer, ok = g.directory.LookupPeer(sender)
	}
	if !ok {
		err := fmt.Errorf("%w: %d: %w", ErrPeerLookup, sender, mismatch)
		handshake.PeerMissing(context.Background(), g.pub, actor, versions)
		g.logger.Printf("[version] %v", err)
		return err
	}
	reason := fmt.Sprintf("incompatible version %q, authority runs %q", report.Version, g.version)
	if err := peer.Disconnect(reason); err != nil {
		g.logger.Printf("[version] disconnect %d: %v", sender, err)
	}
	return mismatch
}

func (g *Guard) after(ctx context.Context, fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if g.graceDelay > 0 {
			timer := time.NewTimer(g.graceDelay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return
		}
		fn()
	}()
}
