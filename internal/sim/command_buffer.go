package sim

import "sync"

const (
	queueDepthMetric     = "intake_queue_depth"
	queueHighWaterMetric = "intake_queue_high_water"
	queueRejectedMetric  = "intake_queue_rejected_total"
)

type telemetryMetrics interface {
	Add(string, uint64)
	Store(string, uint64)
}

// CommandBuffer is a bounded FIFO of staged commands. Producers may push
// from any goroutine; the tick loop is the only reader.
type CommandBuffer struct {
	mu        sync.Mutex
	pending   []Command
	spare     []Command
	limit     int
	highWater int
	metrics   telemetryMetrics
}

// NewCommandBuffer returns a buffer holding at most capacity commands.
func NewCommandBuffer(capacity int, metrics telemetryMetrics) *CommandBuffer {
	capacity = max(capacity, 1)
	return &CommandBuffer{
		pending: make([]Command, 0, capacity),
		spare:   make([]Command, 0, capacity),
		limit:   capacity,
		metrics: metrics,
	}
}

func (b *CommandBuffer) Capacity() int {
	if b == nil {
		return 0
	}
	return b.limit
}

// Push appends cmd. It reports false when the buffer is at capacity.
func (b *CommandBuffer) Push(cmd Command) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) >= b.limit {
		b.record(queueRejectedMetric, 1, false)
		return false
	}
	b.pending = append(b.pending, cmd)
	depth := len(b.pending)
	b.record(queueDepthMetric, uint64(depth), true)
	if depth > b.highWater {
		b.highWater = depth
		b.record(queueHighWaterMetric, uint64(depth), true)
	}
	return true
}

// Drain hands back everything staged so far, oldest first. The returned
// slice is owned by the caller.
func (b *CommandBuffer) Drain() []Command {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	out := make([]Command, len(b.pending))
	copy(out, b.pending)
	b.pending, b.spare = b.spare[:0], b.pending[:0]
	b.record(queueDepthMetric, 0, true)
	return out
}

func (b *CommandBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// HighWater is the deepest the buffer has been since construction.
func (b *CommandBuffer) HighWater() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.highWater
}

func (b *CommandBuffer) record(key string, value uint64, gauge bool) {
	switch {
	case b.metrics == nil:
	case gauge:
		b.metrics.Store(key, value)
	default:
		b.metrics.Add(key, value)
	}
}
