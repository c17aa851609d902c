package correction

import (
	"errors"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"cart-flipper/server/internal/objectid"
)

var (
	// ErrUnresolvableTarget means the id decoded but names no live object.
	ErrUnresolvableTarget = errors.New("correction: unresolvable target")
	// ErrMissingCapability means the object has no physical body to move.
	ErrMissingCapability = errors.New("correction: object lacks a physical body")
	// ErrNotCorrectable means the classifier does not accept the object.
	ErrNotCorrectable = errors.New("correction: object is not correctable")
	// ErrNotMisoriented means the object is already upright.
	ErrNotMisoriented = errors.New("correction: object is not misoriented")
	// ErrSessionConflict means a session is already running for the id.
	ErrSessionConflict = errors.New("correction: session already active")
	// ErrAttemptsExhausted is the terminal give-up outcome.
	ErrAttemptsExhausted = errors.New("correction: attempts exhausted")
	// ErrTargetLost means the object vanished while a session was running.
	ErrTargetLost = errors.New("correction: target lost mid-session")
)

// Damping holds a body's linear and angular drag coefficients.
type Damping struct {
	Linear  float64
	Angular float64
}

// Scale multiplies both coefficients.
func (d Damping) Scale(factor float64) Damping {
	return Damping{Linear: d.Linear * factor, Angular: d.Angular * factor}
}

// Body is the physics handle of a correctable object.
type Body interface {
	Position() mgl64.Vec3
	SetPosition(mgl64.Vec3)
	Rotation() mgl64.Quat
	SetRotation(mgl64.Quat)
	// ZeroVelocity clears linear and angular velocity.
	ZeroVelocity()
	Damping() Damping
	SetDamping(Damping)
	AddImpulse(mgl64.Vec3)
}

// Object is a live world object as seen by the classifier.
type Object interface {
	Name() string
	Tags() []string
	// Body returns the physics handle, or false when the object has none.
	Body() (Body, bool)
}

// World resolves identifiers to live objects on the authoritative process.
type World interface {
	Resolve(id objectid.ID) (Object, bool)
}

// Classifier decides whether an object kind supports correction.
type Classifier interface {
	Correctable(Object) bool
}

// ClassifierFunc adapts a function into a Classifier.
type ClassifierFunc func(Object) bool

// Correctable implements Classifier.
func (f ClassifierFunc) Correctable(obj Object) bool {
	if f == nil {
		return true
	}
	return f(obj)
}

// Request is a decoded correct-object command awaiting the next tick.
type Request struct {
	Sender     uint64
	Target     string
	ReceivedAt time.Time
}

// Phase enumerates the session state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLifting
	PhaseRotating
	PhaseLowering
	PhaseSettling
	PhaseSucceeded
	PhaseExhausted
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLifting:
		return "lifting"
	case PhaseRotating:
		return "rotating"
	case PhaseLowering:
		return "lowering"
	case PhaseSettling:
		return "settling"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseExhausted:
		return "exhausted"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase ends a session.
func (p Phase) Terminal() bool {
	return p >= PhaseSucceeded
}

// SessionView is a read-only snapshot of a live session.
type SessionView struct {
	ID      objectid.ID
	Sender  uint64
	Attempt int
	Phase   Phase
	Started time.Time
}
