package simulation

import (
	"context"

	"cart-flipper/server/logging"
)

const (
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
	EventQueueBacklog      logging.EventType = "simulation.queue_backlog"
	EventCommandDropped    logging.EventType = "simulation.command_dropped"
)

// TickBudgetOverrunPayload describes a tick that ran longer than its share
// of the tick interval. Streak counts consecutive overruns.
type TickBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
	Streak         uint64  `json:"streak"`
	Sessions       int     `json:"sessions"`
}

type QueueBacklogPayload struct {
	Depth    int `json:"depth"`
	Capacity int `json:"capacity"`
}

type CommandDroppedPayload struct {
	Reason  string `json:"reason"`
	Command string `json:"command"`
}

func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetOverrunPayload, extra map[string]any) {
	emit(ctx, pub, logging.Event{
		Type:     EventTickBudgetOverrun,
		Tick:     tick,
		Severity: logging.SeverityWarn,
		Payload:  payload,
		Extra:    extra,
	})
}

// QueueBacklog reports that staged commands crossed a warning step.
func QueueBacklog(ctx context.Context, pub logging.Publisher, payload QueueBacklogPayload) {
	emit(ctx, pub, logging.Event{
		Type:     EventQueueBacklog,
		Severity: logging.SeverityWarn,
		Payload:  payload,
	})
}

// CommandDropped reports a command refused by the intake queue. Actor is
// the peer that sent it.
func CommandDropped(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload CommandDroppedPayload) {
	emit(ctx, pub, logging.Event{
		Type:     EventCommandDropped,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Payload:  payload,
	})
}

func emit(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	event.Category = "simulation"
	pub.Publish(ctx, event)
}
