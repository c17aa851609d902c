package sim

import (
	"sync"
	"time"

	"cart-flipper/server/internal/telemetry"
	"cart-flipper/server/logging"
)

// Reasons Enqueue gives for refusing a command.
const (
	CommandRejectQueueLimit = "queue_limit"
	CommandRejectQueueFull  = "queue_full"
)

const DefaultTickRate = 15

// Core is what the loop advances. Apply and Step are only ever called from
// the goroutine that calls Advance or Run.
type Core interface {
	Apply(now time.Time, cmds []Command)
	Step(now time.Time, dt float64)
}

type Deps struct {
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Clock   logging.Clock
}

// LoopConfig sizes the intake queue and paces Run. PerActorLimit caps how
// many commands one sender may stage per tick; zero disables the cap.
// WarningStep fires OnQueueWarning each time the depth reaches a multiple
// of it.
type LoopConfig struct {
	TickRate        int
	CatchupMaxTicks int
	CommandCapacity int
	PerActorLimit   int
	WarningStep     int
}

type LoopTickContext struct {
	Tick  uint64
	Now   time.Time
	Delta float64
}

// LoopStepResult is handed to AfterStep. Duration and Budget are only set
// by Run.
type LoopStepResult struct {
	Tick     uint64
	Now      time.Time
	Delta    float64
	Commands []Command
	Duration time.Duration
	Budget   time.Duration
}

type LoopHooks struct {
	AfterStep      func(LoopStepResult)
	OnQueueWarning func(depth int)
	OnCommandDrop  func(reason string, cmd Command)
}

// Loop stages commands from any goroutine and feeds them to the core once
// per tick.
type Loop struct {
	core   Core
	queue  *CommandBuffer
	hooks  LoopHooks
	cfg    LoopConfig
	clock  logging.Clock
	logger telemetry.Logger

	mu    sync.Mutex
	tick  uint64
	quota senderQuota
}

// senderQuota tracks per-sender admissions for the tick being filled and
// lifetime drop counts.
type senderQuota struct {
	staged  map[uint64]int
	dropped map[uint64]uint64
}

func (q *senderQuota) admit(sender uint64, limit int) bool {
	if limit <= 0 || sender == 0 {
		return true
	}
	if q.staged[sender] >= limit {
		return false
	}
	q.staged[sender]++
	return true
}

func (q *senderQuota) drop(sender uint64) uint64 {
	if sender == 0 {
		return 0
	}
	q.dropped[sender]++
	return q.dropped[sender]
}

func (q *senderQuota) reset() {
	clear(q.staged)
}

func NewLoop(core Core, cfg LoopConfig, deps Deps, hooks LoopHooks) *Loop {
	if core == nil {
		return nil
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	cfg.CatchupMaxTicks = max(cfg.CatchupMaxTicks, 1)
	loop := &Loop{
		core:   core,
		queue:  NewCommandBuffer(cfg.CommandCapacity, deps.Metrics),
		hooks:  hooks,
		cfg:    cfg,
		clock:  deps.Clock,
		logger: deps.Logger,
		quota: senderQuota{
			staged:  make(map[uint64]int),
			dropped: make(map[uint64]uint64),
		},
	}
	if loop.clock == nil {
		loop.clock = logging.SystemClock{}
	}
	if loop.logger == nil {
		loop.logger = telemetry.Discard()
	}
	return loop
}

// Tick is the number of the most recently advanced tick.
func (l *Loop) Tick() uint64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tick
}

func (l *Loop) Pending() int {
	if l == nil {
		return 0
	}
	return l.queue.Len()
}

// Enqueue stages cmd for the next tick. On refusal it returns false with
// one of the CommandReject reasons.
func (l *Loop) Enqueue(cmd Command) (bool, string) {
	if l == nil {
		return false, CommandRejectQueueFull
	}
	l.mu.Lock()
	if cmd.OriginTick == 0 {
		cmd.OriginTick = l.tick
	}
	reason := ""
	switch {
	case !l.quota.admit(cmd.ActorID, l.cfg.PerActorLimit):
		reason = CommandRejectQueueLimit
	case !l.queue.Push(cmd):
		reason = CommandRejectQueueFull
	}
	var drops uint64
	if reason != "" {
		drops = l.quota.drop(cmd.ActorID)
	}
	depth := l.queue.Len()
	l.mu.Unlock()

	if reason != "" {
		l.dropped(reason, cmd, drops)
		return false, reason
	}
	if step := l.cfg.WarningStep; step > 0 && depth%step == 0 && l.hooks.OnQueueWarning != nil {
		l.hooks.OnQueueWarning(depth)
	}
	return true, ""
}

// Advance runs one tick: staged commands are applied, then the core steps
// by Delta seconds.
func (l *Loop) Advance(ctx LoopTickContext) LoopStepResult {
	if l == nil {
		return LoopStepResult{}
	}
	l.mu.Lock()
	l.tick = ctx.Tick
	commands := l.queue.Drain()
	l.quota.reset()
	l.mu.Unlock()

	l.core.Apply(ctx.Now, commands)
	l.core.Step(ctx.Now, ctx.Delta)
	return LoopStepResult{Tick: ctx.Tick, Now: ctx.Now, Delta: ctx.Delta, Commands: commands}
}

// Run advances the core at the configured rate until stop is closed. The
// step delta is measured from the clock and capped at CatchupMaxTicks
// intervals.
func (l *Loop) Run(stop <-chan struct{}) {
	if l == nil {
		return
	}
	interval := time.Second / time.Duration(l.cfg.TickRate)
	nominal := interval.Seconds()
	ceiling := nominal * float64(l.cfg.CatchupMaxTicks)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	previous := l.clock.Now()
	for tick := uint64(1); ; tick++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		now := l.clock.Now()
		dt := now.Sub(previous).Seconds()
		if dt <= 0 {
			dt = nominal
		}
		dt = min(dt, ceiling)
		previous = now

		result := l.Advance(LoopTickContext{Tick: tick, Now: now, Delta: dt})
		result.Duration = l.clock.Now().Sub(now)
		result.Budget = interval
		if l.hooks.AfterStep != nil {
			l.hooks.AfterStep(result)
		}
	}
}

func (l *Loop) dropped(reason string, cmd Command, count uint64) {
	if l.hooks.OnCommandDrop != nil {
		l.hooks.OnCommandDrop(reason, cmd)
	}
	if count&(count-1) == 0 && count > 0 {
		l.logger.Printf("[intake] refused %s from peer %d: %s (%d so far)", cmd.Type, cmd.ActorID, reason, count)
	}
}
