package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.opentelemetry.io/otel/trace"

	"cart-flipper/server/internal/correction"
	"cart-flipper/server/internal/net/intake"
	"cart-flipper/server/internal/net/route"
	"cart-flipper/server/internal/net/ws"
	"cart-flipper/server/internal/sim"
	"cart-flipper/server/internal/telemetry"
	"cart-flipper/server/internal/version"
	"cart-flipper/server/internal/world"
	"cart-flipper/server/logging"
	"cart-flipper/server/logging/simulation"
)

// AuthorityConfig wires the authoritative process.
type AuthorityConfig struct {
	ID      uint64
	Owner   uint32
	Version string

	Correction        correction.Config
	TickRate          int
	RequestsPerSecond float64
	RequestBurst      int
	VersionGraceDelay time.Duration

	Publisher logging.Publisher
	Logger    telemetry.Logger
	Tracer    trace.Tracer
	Clock     logging.Clock
	Metrics   *telemetry.Counters
}

// DefaultAuthorityConfig returns the stock authority wiring.
func DefaultAuthorityConfig() AuthorityConfig {
	return AuthorityConfig{
		ID:                DefaultAuthorityID,
		Owner:             DefaultOwner,
		Version:           ProtocolVersion,
		Correction:        correction.DefaultConfig(),
		TickRate:          tickRate,
		RequestsPerSecond: 2,
		RequestBurst:      defaultRequestBurst,
		VersionGraceDelay: version.DefaultGraceDelay,
	}
}

// Authority owns the world and runs every correction session.
type Authority struct {
	id       uint64
	tickRate int
	pub      logging.Publisher
	logger   telemetry.Logger
	metrics  *telemetry.Counters

	world   *world.World
	engine  *correction.Engine
	loop    *sim.Loop
	hub     *ws.Hub
	router  *route.Router
	guard   *version.Guard
	limiter *intake.SenderLimiter
	accept  *ws.Handler

	statusMu      sync.RWMutex
	status        Status
	overrunStreak uint64
}

// Status is a point-in-time view of the authority for diagnostics. It is
// refreshed after every tick.
type Status struct {
	Tick     uint64            `json:"tick"`
	Peers    []uint64          `json:"peers"`
	Objects  int               `json:"objects"`
	Sessions []SessionStatus   `json:"sessions"`
	Pending  int               `json:"pending"`
	Counters map[string]uint64 `json:"counters,omitempty"`
}

// SessionStatus describes one live correction session.
type SessionStatus struct {
	Object  string    `json:"object"`
	Sender  uint64    `json:"sender"`
	Attempt int       `json:"attempt"`
	Phase   string    `json:"phase"`
	Started time.Time `json:"started"`
}

// NewAuthority assembles the world, engine, tick loop, transport and version
// guard, and registers the authority's command handlers.
func NewAuthority(cfg AuthorityConfig) (*Authority, error) {
	if cfg.ID == 0 {
		cfg.ID = DefaultAuthorityID
	}
	if cfg.Version == "" {
		cfg.Version = ProtocolVersion
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = tickRate
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewCounters()
	}

	a := &Authority{
		id:       cfg.ID,
		tickRate: cfg.TickRate,
		pub:      pub,
		logger:   logger,
		metrics:  metrics,
		world:    world.New(cfg.Owner),
		limiter:  intake.NewSenderLimiter(cfg.RequestsPerSecond, cfg.RequestBurst),
	}

	a.engine = correction.NewEngine(cfg.Correction, correction.Deps{
		World:      a.world,
		Classifier: world.NewClassifier(a.world, world.DefaultKind),
		Publisher:  pub,
		Tracer:     cfg.Tracer,
		Logger:     logger,
	})

	a.loop = sim.NewLoop(&authorityCore{world: a.world, engine: a.engine}, sim.LoopConfig{
		TickRate:        cfg.TickRate,
		CatchupMaxTicks: catchupMaxTicks,
		CommandCapacity: commandCapacity,
		PerActorLimit:   perActorLimit,
		WarningStep:     queueWarningStep,
	}, sim.Deps{
		Logger:  logger,
		Metrics: metrics,
		Clock:   cfg.Clock,
	}, sim.LoopHooks{
		AfterStep: a.afterStep,
		OnQueueWarning: func(length int) {
			simulation.QueueBacklog(context.Background(), pub, simulation.QueueBacklogPayload{
				Depth:    length,
				Capacity: commandCapacity,
			})
		},
		OnCommandDrop: func(reason string, cmd sim.Command) {
			simulation.CommandDropped(context.Background(), pub, logging.PeerRef(cmd.ActorID), simulation.CommandDroppedPayload{
				Reason:  reason,
				Command: string(cmd.Type),
			})
		},
	})

	a.hub = ws.NewHub(ws.HubConfig{Publisher: pub})
	a.router = route.New(route.Config{
		Self:      cfg.ID,
		Links:     a.hub,
		Publisher: pub,
		Logger:    logger,
	})
	a.guard = version.NewGuard(version.GuardConfig{
		Version:    cfg.Version,
		GraceDelay: cfg.VersionGraceDelay,
		Directory:  peerDirectory{hub: a.hub},
		Sender:     a.router,
		Publisher:  pub,
		Logger:     logger,
	})
	a.hub.SetHooks(a.guard.PeerJoined, a.limiter.Forget)
	a.accept = ws.NewHandler(a.hub, a.router, ws.HandlerConfig{Logger: logger})

	intakeCtx := intake.CommandContext{
		Queue:   a.loop,
		Limiter: a.limiter,
		Tick:    a.loop.Tick,
	}
	if cfg.Clock != nil {
		intakeCtx.Now = cfg.Clock.Now
	}
	if err := a.router.Register(intake.CommandCorrectObject, intake.CorrectHandler(intakeCtx, pub)); err != nil {
		return nil, fmt.Errorf("register %s: %w", intake.CommandCorrectObject, err)
	}
	if err := a.guard.Register(a.router); err != nil {
		return nil, fmt.Errorf("register %s: %w", version.CommandReport, err)
	}
	return a, nil
}

// ID returns the authority's routing id.
func (a *Authority) ID() uint64 { return a.id }

// TickRate returns the loop frequency in ticks per second.
func (a *Authority) TickRate() int { return a.tickRate }

// World exposes the authoritative object store.
func (a *Authority) World() *world.World { return a.world }

// Router exposes the authority's command router.
func (a *Authority) Router() *route.Router { return a.router }

// Guard exposes the version guard.
func (a *Authority) Guard() *version.Guard { return a.guard }

// Hub exposes the peer directory.
func (a *Authority) Hub() *ws.Hub { return a.hub }

// ServeWS accepts a peer connection.
func (a *Authority) ServeWS(w http.ResponseWriter, r *http.Request) {
	a.accept.Handle(w, r)
}

// SpawnDemoCarts places count carts in a row, every other one upside down.
func (a *Authority) SpawnDemoCarts(count int) error {
	for i := 0; i < count; i++ {
		rotation := mgl64.QuatIdent()
		if i%2 == 0 {
			rotation = mgl64.QuatRotate(math.Pi, mgl64.Vec3{0, 0, 1})
		}
		body := world.NewRigidBody(
			mgl64.Vec3{float64(i) * demoCartSpacing, 0, 0},
			rotation,
			demoCartMass,
			correction.Damping{Linear: 0.1, Angular: 0.05},
		)
		obj, err := a.world.Spawn(world.Spec{Name: demoCartName, Body: body})
		if err != nil {
			return fmt.Errorf("spawn demo cart %d: %w", i, err)
		}
		a.logger.Printf("[world] spawned %s %s tilt=%.0f°", obj.Name(), obj.ID(), correction.Degrees(correction.Tilt(rotation)))
	}
	return nil
}

// Run drives the tick loop and the version guard until ctx ends.
func (a *Authority) Run(ctx context.Context) error {
	a.guard.Start(ctx)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.loop.Run(stop)
	}()
	<-ctx.Done()
	close(stop)
	<-done
	a.guard.Wait()
	for _, id := range a.hub.PeerIDs() {
		a.hub.Disconnect(id, "authority shutting down")
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// Advance runs one tick synchronously. It must not be called while Run is
// active.
func (a *Authority) Advance(tick uint64, now time.Time, dt float64) sim.LoopStepResult {
	result := a.loop.Advance(sim.LoopTickContext{Tick: tick, Now: now, Delta: dt})
	a.afterStep(result)
	return result
}

// Pending reports commands staged for the next tick.
func (a *Authority) Pending() int {
	return a.loop.Pending()
}

// Status returns the snapshot taken after the most recent tick.
func (a *Authority) Status() Status {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	status := a.status
	status.Peers = a.hub.PeerIDs()
	status.Pending = a.loop.Pending()
	status.Counters = a.metrics.Snapshot()
	return status
}

// afterStep runs on the tick goroutine, so it may read engine state.
func (a *Authority) afterStep(result sim.LoopStepResult) {
	if result.Budget > 0 && result.Duration > result.Budget {
		a.overrunStreak++
		simulation.TickBudgetOverrun(context.Background(), a.pub, result.Tick, simulation.TickBudgetOverrunPayload{
			DurationMillis: result.Duration.Milliseconds(),
			BudgetMillis:   result.Budget.Milliseconds(),
			Ratio:          float64(result.Duration) / float64(result.Budget),
			Streak:         a.overrunStreak,
			Sessions:       a.engine.Len(),
		}, nil)
	} else {
		a.overrunStreak = 0
	}

	a.statusMu.Lock()
	a.status.Tick = result.Tick
	a.status.Objects = a.world.Len()
	views := a.engine.Sessions()
	sessions := make([]SessionStatus, 0, len(views))
	for _, view := range views {
		sessions = append(sessions, SessionStatus{
			Object:  view.ID.String(),
			Sender:  view.Sender,
			Attempt: view.Attempt,
			Phase:   view.Phase.String(),
			Started: view.Started,
		})
	}
	a.status.Sessions = sessions
	a.statusMu.Unlock()
}

// authorityCore feeds staged commands to the engine and advances the world.
type authorityCore struct {
	world  *world.World
	engine *correction.Engine
}

func (c *authorityCore) Apply(now time.Time, cmds []sim.Command) {
	for _, cmd := range cmds {
		if cmd.Type != sim.CommandCorrect || cmd.Correct == nil {
			continue
		}
		// Rejections are published by the engine.
		_ = c.engine.Begin(now, correction.Request{
			Sender:     cmd.ActorID,
			Target:     cmd.Correct.Target,
			ReceivedAt: cmd.IssuedAt,
		})
	}
}

func (c *authorityCore) Step(now time.Time, dt float64) {
	c.world.Step(dt)
	c.engine.Step(now)
}

// peerDirectory adapts the hub to the version guard.
type peerDirectory struct {
	hub *ws.Hub
}

func (d peerDirectory) PeerIDs() []uint64 {
	return d.hub.PeerIDs()
}

func (d peerDirectory) LookupPeer(id uint64) (version.Peer, bool) {
	conn, ok := d.hub.LookupPeer(id)
	if !ok {
		return nil, false
	}
	return conn, true
}

var (
	_ sim.Core          = (*authorityCore)(nil)
	_ version.Directory = peerDirectory{}
)
