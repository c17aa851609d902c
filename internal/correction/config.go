package correction

import "time"

const (
	DefaultMaxAttempts    = 3
	DefaultLiftHeight     = 1.0
	DefaultLiftDuration   = 500 * time.Millisecond
	DefaultRotateDuration = 1500 * time.Millisecond
	DefaultSettleDuration = time.Second
	DefaultSettleFactor   = 5.0

	// DefaultNudgeImpulse is the upward kick a deployed authority gives a
	// righted object. DefaultConfig leaves it off.
	DefaultNudgeImpulse = 2.0
)

// Config tunes the correction procedure. Lowering reuses LiftDuration.
type Config struct {
	MaxAttempts    int
	LiftHeight     float64
	LiftDuration   time.Duration
	RotateDuration time.Duration
	SettleDuration time.Duration
	// SettleFactor multiplies damping for the whole session.
	SettleFactor float64
	// NudgeImpulse is an upward impulse applied once velocities are zeroed.
	// Zero disables it.
	NudgeImpulse float64
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    DefaultMaxAttempts,
		LiftHeight:     DefaultLiftHeight,
		LiftDuration:   DefaultLiftDuration,
		RotateDuration: DefaultRotateDuration,
		SettleDuration: DefaultSettleDuration,
		SettleFactor:   DefaultSettleFactor,
	}
}

func (c Config) normalized() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.LiftHeight <= 0 {
		c.LiftHeight = DefaultLiftHeight
	}
	if c.LiftDuration < 0 {
		c.LiftDuration = 0
	}
	if c.RotateDuration < 0 {
		c.RotateDuration = 0
	}
	if c.SettleDuration < 0 {
		c.SettleDuration = 0
	}
	if c.SettleFactor <= 0 {
		c.SettleFactor = DefaultSettleFactor
	}
	if c.NudgeImpulse < 0 {
		c.NudgeImpulse = 0
	}
	return c
}
