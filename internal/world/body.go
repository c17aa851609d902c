package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"cart-flipper/server/internal/correction"
)

// RigidBody is a minimal rigid body: no gravity or collisions, just
// velocity integration with linear and angular drag.
type RigidBody struct {
	position        mgl64.Vec3
	rotation        mgl64.Quat
	velocity        mgl64.Vec3
	angularVelocity mgl64.Vec3
	damping         correction.Damping
	mass            float64
}

// NewRigidBody constructs a body at rest. Non-positive mass defaults to 1.
func NewRigidBody(position mgl64.Vec3, rotation mgl64.Quat, mass float64, damping correction.Damping) *RigidBody {
	if mass <= 0 {
		mass = 1
	}
	return &RigidBody{
		position: position,
		rotation: rotation.Normalize(),
		damping:  damping,
		mass:     mass,
	}
}

func (b *RigidBody) Position() mgl64.Vec3     { return b.position }
func (b *RigidBody) SetPosition(p mgl64.Vec3) { b.position = p }
func (b *RigidBody) Rotation() mgl64.Quat     { return b.rotation }
func (b *RigidBody) SetRotation(q mgl64.Quat) { b.rotation = q.Normalize() }

func (b *RigidBody) Damping() correction.Damping     { return b.damping }
func (b *RigidBody) SetDamping(d correction.Damping) { b.damping = d }

// Velocity returns the linear velocity.
func (b *RigidBody) Velocity() mgl64.Vec3 { return b.velocity }

// SetVelocity overrides the linear velocity.
func (b *RigidBody) SetVelocity(v mgl64.Vec3) { b.velocity = v }

// AngularVelocity returns the angular velocity in radians per second.
func (b *RigidBody) AngularVelocity() mgl64.Vec3 { return b.angularVelocity }

// SetAngularVelocity overrides the angular velocity.
func (b *RigidBody) SetAngularVelocity(w mgl64.Vec3) { b.angularVelocity = w }

// ZeroVelocity clears linear and angular velocity.
func (b *RigidBody) ZeroVelocity() {
	b.velocity = mgl64.Vec3{}
	b.angularVelocity = mgl64.Vec3{}
}

// AddImpulse changes linear velocity by impulse/mass.
func (b *RigidBody) AddImpulse(impulse mgl64.Vec3) {
	b.velocity = b.velocity.Add(impulse.Mul(1 / b.mass))
}

// Integrate advances the body by dt seconds.
func (b *RigidBody) Integrate(dt float64) {
	if dt <= 0 {
		return
	}
	b.position = b.position.Add(b.velocity.Mul(dt))
	if speed := b.angularVelocity.Len(); speed > 0 {
		step := mgl64.QuatRotate(speed*dt, b.angularVelocity.Mul(1/speed))
		b.rotation = step.Mul(b.rotation).Normalize()
	}
	b.velocity = b.velocity.Mul(drag(b.damping.Linear, dt))
	b.angularVelocity = b.angularVelocity.Mul(drag(b.damping.Angular, dt))
}

func drag(coefficient, dt float64) float64 {
	return math.Max(0, 1-coefficient*dt)
}

var _ correction.Body = (*RigidBody)(nil)
