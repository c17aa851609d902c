package correction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cart-flipper/server/internal/objectid"
	"cart-flipper/server/internal/telemetry"
	"cart-flipper/server/logging"
	correctionlog "cart-flipper/server/logging/correction"
)

const tracerName = "cart-flipper/server/correction"

// Deps bundles the collaborators an Engine needs.
type Deps struct {
	World      World
	Classifier Classifier
	Publisher  logging.Publisher
	Tracer     trace.Tracer
	Logger     telemetry.Logger
}

type session struct {
	id      objectid.ID
	sender  uint64
	attempt int
	phase   Phase
	entered time.Time
	started time.Time

	origin     mgl64.Vec3
	damping    Damping
	rotateFrom mgl64.Quat
	rotateTo   mgl64.Quat

	ctx  context.Context
	span trace.Span
}

// Engine runs correction sessions, one per object id, multiplexed over the
// caller's tick. It is not safe for concurrent use: Begin and Step must be
// called from the same goroutine.
type Engine struct {
	cfg        Config
	world      World
	classifier Classifier
	pub        logging.Publisher
	tracer     trace.Tracer
	logger     telemetry.Logger

	sessions map[objectid.ID]*session
	tick     uint64
}

// NewEngine constructs an engine. A nil classifier accepts every object.
func NewEngine(cfg Config, deps Deps) *Engine {
	pub := deps.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	logger := deps.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}
	return &Engine{
		cfg:        cfg.normalized(),
		world:      deps.World,
		classifier: deps.Classifier,
		pub:        pub,
		tracer:     tracer,
		logger:     logger,
		sessions:   make(map[objectid.ID]*session),
	}
}

// Config returns the normalized configuration in effect.
func (e *Engine) Config() Config {
	return e.cfg
}

// Begin validates a request and starts a session for it. The returned error
// explains a rejection; it is informational and already published.
func (e *Engine) Begin(now time.Time, req Request) error {
	actor := logging.PeerRef(req.Sender)

	id, err := objectid.Parse(req.Target)
	if err != nil {
		e.reject(actor, req.Target, logging.SeverityWarn, err)
		return err
	}
	if _, busy := e.sessions[id]; busy {
		err := fmt.Errorf("%w: %s", ErrSessionConflict, id)
		e.reject(actor, id.String(), logging.SeverityWarn, err)
		return err
	}
	if e.world == nil {
		err := fmt.Errorf("%w: %s: no world attached", ErrUnresolvableTarget, id)
		e.reject(actor, id.String(), logging.SeverityWarn, err)
		return err
	}
	obj, ok := e.world.Resolve(id)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnresolvableTarget, id)
		e.reject(actor, id.String(), logging.SeverityWarn, err)
		return err
	}
	body, ok := obj.Body()
	if !ok {
		err := fmt.Errorf("%w: %s (%s)", ErrMissingCapability, id, obj.Name())
		e.reject(actor, id.String(), logging.SeverityWarn, err)
		return err
	}
	if e.classifier != nil && !e.classifier.Correctable(obj) {
		err := fmt.Errorf("%w: %s (%s)", ErrNotCorrectable, id, obj.Name())
		e.reject(actor, id.String(), logging.SeverityDebug, err)
		return err
	}
	tilt := Tilt(body.Rotation())
	if tilt <= MaxUprightTilt {
		err := fmt.Errorf("%w: %s tilt %.1f°", ErrNotMisoriented, id, Degrees(tilt))
		e.reject(actor, id.String(), logging.SeverityInfo, err)
		return err
	}

	s := &session{
		id:      id,
		sender:  req.Sender,
		attempt: 1,
		phase:   PhaseIdle,
		started: now,
		origin:  body.Position(),
		damping: body.Damping(),
	}
	s.ctx, s.span = e.tracer.Start(context.Background(), "correction.session", trace.WithAttributes(
		attribute.String("object.id", id.String()),
		attribute.String("peer.id", strconv.FormatUint(req.Sender, 10)),
		attribute.Int("correction.max_attempts", e.cfg.MaxAttempts),
	))
	body.SetDamping(s.damping.Scale(e.cfg.SettleFactor))
	e.sessions[id] = s

	correctionlog.Accepted(s.ctx, e.pub, e.tick, actor, e.payload(s, tilt))
	e.enter(s, PhaseLifting, now)
	return nil
}

// Step advances every live session to now.
func (e *Engine) Step(now time.Time) {
	e.tick++
	for _, s := range e.sessions {
		e.advance(s, now)
	}
}

// Active reports whether a session is running for id.
func (e *Engine) Active(id objectid.ID) bool {
	_, ok := e.sessions[id]
	return ok
}

// Len reports the number of live sessions.
func (e *Engine) Len() int {
	return len(e.sessions)
}

// Sessions returns snapshots of the live sessions ordered by id.
func (e *Engine) Sessions() []SessionView {
	views := make([]SessionView, 0, len(e.sessions))
	for _, s := range e.sessions {
		views = append(views, SessionView{
			ID:      s.id,
			Sender:  s.sender,
			Attempt: s.attempt,
			Phase:   s.phase,
			Started: s.started,
		})
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].ID.Owner != views[j].ID.Owner {
			return views[i].ID.Owner < views[j].ID.Owner
		}
		return views[i].ID.Disambiguator < views[j].ID.Disambiguator
	})
	return views
}

func (e *Engine) advance(s *session, now time.Time) {
	body, ok := e.resolveBody(s.id)
	if !ok {
		e.abort(s)
		return
	}

	elapsed := now.Sub(s.entered)
	lifted := s.origin.Add(worldUp.Mul(e.cfg.LiftHeight))

	switch s.phase {
	case PhaseLifting:
		f := fraction(elapsed, e.cfg.LiftDuration)
		body.SetPosition(lerp(s.origin, lifted, f))
		if f >= 1 {
			s.rotateFrom = body.Rotation()
			s.rotateTo = Upright(s.rotateFrom)
			e.enter(s, PhaseRotating, now)
		}
	case PhaseRotating:
		f := fraction(elapsed, e.cfg.RotateDuration)
		body.SetPosition(lifted)
		body.SetRotation(slerp(s.rotateFrom, s.rotateTo, f))
		if f >= 1 {
			e.enter(s, PhaseLowering, now)
		}
	case PhaseLowering:
		f := fraction(elapsed, e.cfg.LiftDuration)
		body.SetPosition(lerp(lifted, s.origin, f))
		if f >= 1 {
			body.ZeroVelocity()
			if e.cfg.NudgeImpulse > 0 {
				body.AddImpulse(worldUp.Mul(e.cfg.NudgeImpulse))
			}
			e.enter(s, PhaseSettling, now)
		}
	case PhaseSettling:
		if elapsed < e.cfg.SettleDuration {
			return
		}
		tilt := Tilt(body.Rotation())
		switch {
		case tilt <= MaxUprightTilt:
			e.finish(s, body, PhaseSucceeded, tilt)
		case s.attempt < e.cfg.MaxAttempts:
			s.attempt++
			correctionlog.Retry(s.ctx, e.pub, e.tick, logging.PeerRef(s.sender), e.payload(s, tilt))
			e.enter(s, PhaseLifting, now)
		default:
			e.finish(s, body, PhaseExhausted, tilt)
		}
	}
}

func (e *Engine) enter(s *session, phase Phase, now time.Time) {
	previous := s.phase
	s.phase = phase
	s.entered = now
	s.span.AddEvent("phase", trace.WithAttributes(
		attribute.String("correction.phase", phase.String()),
		attribute.Int("correction.attempt", s.attempt),
	))
	payload := e.payload(s, -1)
	payload.Previous = previous.String()
	correctionlog.Phase(s.ctx, e.pub, e.tick, logging.PeerRef(s.sender), payload)
}

func (e *Engine) finish(s *session, body Body, outcome Phase, tilt float64) {
	body.SetDamping(s.damping)
	s.phase = outcome
	delete(e.sessions, s.id)

	actor := logging.PeerRef(s.sender)
	payload := e.payload(s, tilt)
	switch outcome {
	case PhaseSucceeded:
		s.span.SetStatus(codes.Ok, "")
		correctionlog.Succeeded(s.ctx, e.pub, e.tick, actor, payload)
	default:
		err := fmt.Errorf("%w: %s after %d attempts", ErrAttemptsExhausted, s.id, s.attempt)
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
		correctionlog.Exhausted(s.ctx, e.pub, e.tick, actor, payload)
		e.logger.Printf("[correction] %v", err)
	}
	s.span.End()
}

// abort drops a session whose target vanished. Damping is not restored: the
// handle is no longer valid.
func (e *Engine) abort(s *session) {
	s.phase = PhaseAborted
	delete(e.sessions, s.id)
	err := fmt.Errorf("%w: %s", ErrTargetLost, s.id)
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
	correctionlog.Aborted(s.ctx, e.pub, e.tick, logging.PeerRef(s.sender), e.payload(s, -1))
	s.span.End()
}

func (e *Engine) resolveBody(id objectid.ID) (Body, bool) {
	if e.world == nil {
		return nil, false
	}
	obj, ok := e.world.Resolve(id)
	if !ok || obj == nil {
		return nil, false
	}
	return obj.Body()
}

func (e *Engine) reject(actor logging.EntityRef, object string, severity logging.Severity, err error) {
	correctionlog.Rejected(context.Background(), e.pub, e.tick, actor, severity, correctionlog.RejectedPayload{
		Object: object,
		Reason: rejectReason(err),
	})
}

func (e *Engine) payload(s *session, tilt float64) correctionlog.SessionPayload {
	payload := correctionlog.SessionPayload{
		Object:      s.id.String(),
		Phase:       s.phase.String(),
		Attempt:     s.attempt,
		MaxAttempts: e.cfg.MaxAttempts,
	}
	if tilt >= 0 {
		payload.TiltDegrees = Degrees(tilt)
	}
	return payload
}

// rejectReason maps a rejection to a stable machine-readable reason.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, objectid.ErrMalformedIdentifier):
		return "malformed_identifier"
	case errors.Is(err, ErrSessionConflict):
		return "session_conflict"
	case errors.Is(err, ErrUnresolvableTarget):
		return "unresolvable_target"
	case errors.Is(err, ErrMissingCapability):
		return "missing_capability"
	case errors.Is(err, ErrNotCorrectable):
		return "not_correctable"
	case errors.Is(err, ErrNotMisoriented):
		return "not_misoriented"
	default:
		return "unknown"
	}
}

func fraction(elapsed, duration time.Duration) float64 {
	if duration <= 0 {
		return 1
	}
	f := float64(elapsed) / float64(duration)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
