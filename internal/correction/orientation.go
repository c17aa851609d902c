package correction

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// MaxUprightTilt is the largest angle between an object's up axis and world
// up that still counts as upright. The comparison is strict: exactly 90° is
// upright.
const MaxUprightTilt = math.Pi / 2

var (
	worldUp      = mgl64.Vec3{0, 1, 0}
	localForward = mgl64.Vec3{0, 0, 1}
	localRight   = mgl64.Vec3{1, 0, 0}
)

// TiltOfUp returns the angle in radians between up and world up.
func TiltOfUp(up mgl64.Vec3) float64 {
	length := up.Len()
	if length == 0 {
		return 0
	}
	cos := up.Dot(worldUp) / length
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos)
}

// Tilt returns the angle in radians between the rotated up axis and world up.
func Tilt(rotation mgl64.Quat) float64 {
	return TiltOfUp(rotation.Rotate(worldUp))
}

// Misoriented reports whether the rotation tilts the object past upright.
func Misoriented(rotation mgl64.Quat) bool {
	return Tilt(rotation) > MaxUprightTilt
}

// Degrees converts a tilt to degrees for logs and events.
func Degrees(radians float64) float64 {
	return radians * 180 / math.Pi
}

// Yaw returns the heading of rotation around world up, in radians.
func Yaw(rotation mgl64.Quat) float64 {
	forward := rotation.Rotate(localForward)
	if math.Hypot(forward.X(), forward.Z()) > 1e-6 {
		return math.Atan2(forward.X(), forward.Z())
	}
	// Forward is vertical; the right axis still carries the heading.
	right := rotation.Rotate(localRight)
	return math.Atan2(-right.Z(), right.X())
}

// Upright returns the rotation with the same yaw and zero pitch and roll.
func Upright(rotation mgl64.Quat) mgl64.Quat {
	return mgl64.QuatRotate(Yaw(rotation), worldUp)
}

// slerp interpolates along the shorter arc between from and to.
func slerp(from, to mgl64.Quat, t float64) mgl64.Quat {
	if t <= 0 {
		return from
	}
	if t >= 1 {
		return to
	}
	if from.Dot(to) < 0 {
		to = to.Scale(-1)
	}
	return mgl64.QuatSlerp(from, to, t).Normalize()
}

func lerp(from, to mgl64.Vec3, t float64) mgl64.Vec3 {
	t = math.Max(0, math.Min(1, t))
	return from.Add(to.Sub(from).Mul(t))
}
