// Package intake turns routed command payloads into staged simulation
// commands. It runs on transport goroutines and never touches engine state.
package intake

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cart-flipper/server/internal/net/packet"
	"cart-flipper/server/internal/net/route"
	"cart-flipper/server/internal/sim"
	"cart-flipper/server/logging"
	"cart-flipper/server/logging/network"
)

const (
	// CommandCorrectObject is the routed name of a correction request.
	CommandCorrectObject = "correct-object"

	// CommandRejectMalformedPayload indicates the payload did not decode.
	CommandRejectMalformedPayload = "malformed_payload"
	// CommandRejectRateLimited indicates the sender exceeded its request rate.
	CommandRejectRateLimited = "rate_limited"
)

// Queue is the slice of the tick loop intake depends on.
type Queue interface {
	Enqueue(sim.Command) (bool, string)
}

type CommandContext struct {
	Queue   Queue
	Limiter *SenderLimiter
	Tick    func() uint64
	Now     func() time.Time
}

// StageCorrect decodes a correct-object payload and stages it for the next
// tick. The returned reason is empty on success.
func StageCorrect(ctx CommandContext, sender uint64, payload []byte) (sim.Command, bool, string) {
	var zero sim.Command

	target, err := packet.ReadStringPayload(payload)
	if err != nil {
		return zero, false, CommandRejectMalformedPayload
	}

	now := time.Now()
	if ctx.Now != nil {
		now = ctx.Now()
	}
	if ctx.Limiter != nil && !ctx.Limiter.Allow(sender, now) {
		return zero, false, CommandRejectRateLimited
	}

	command := sim.Command{
		ActorID:  sender,
		Type:     sim.CommandCorrect,
		IssuedAt: now,
		Correct:  &sim.CorrectCommand{Target: target},
	}
	if ctx.Tick != nil {
		command.OriginTick = ctx.Tick()
	}

	if ctx.Queue == nil {
		return zero, false, sim.CommandRejectQueueFull
	}
	if ok, reason := ctx.Queue.Enqueue(command); !ok {
		return zero, false, reason
	}
	return command, true, ""
}

// CorrectHandler adapts StageCorrect to a router handler. Rejections are
// published and never reported back to the sender.
func CorrectHandler(ctx CommandContext, pub logging.Publisher) route.Handler {
	return func(sender uint64, payload []byte) {
		if _, ok, reason := StageCorrect(ctx, sender, payload); !ok {
			network.CommandRejected(context.Background(), pub, logging.PeerRef(sender), network.CommandPayload{
				Name:   CommandCorrectObject,
				Reason: reason,
			}, nil)
		}
	}
}

// SenderLimiter keeps one token bucket per sender.
type SenderLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[uint64]*rate.Limiter
}

// NewSenderLimiter allows each sender perSecond requests with the given
// burst. A non-positive rate disables limiting.
func NewSenderLimiter(perSecond float64, burst int) *SenderLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &SenderLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[uint64]*rate.Limiter),
	}
}

// Allow consumes one token for sender at now.
func (l *SenderLimiter) Allow(sender uint64, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	limiter, ok := l.limiters[sender]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[sender] = limiter
	}
	l.mu.Unlock()
	return limiter.AllowN(now, 1)
}

// Forget drops the bucket of a disconnected sender.
func (l *SenderLimiter) Forget(sender uint64) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, sender)
}
