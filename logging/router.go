package logging

import (
	"context"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

// Router fans published events out to its sinks. Publish never blocks: a
// full queue drops the event and counts it.
type Router struct {
	queue    chan Event
	workers  []*sinkWorker
	clock    Clock
	fallback *log.Logger
	minimum  Severity
	fields   map[string]any
	warnGap  time.Duration

	stop     chan struct{}
	closed   atomic.Bool
	dispatch sync.WaitGroup

	published atomic.Uint64
	filtered  atomic.Uint64
	dropped   atomic.Uint64
	nextWarn  atomic.Int64
}

type RouterStats struct {
	EventsTotal   uint64
	FilteredTotal uint64
	DroppedTotal  uint64
	// SinkDropped counts events a sink's backlog refused, by sink name.
	SinkDropped map[string]uint64
}

// NewRouter starts the dispatch goroutine and one worker per non-nil sink.
// Workers are ordered by sink name.
func NewRouter(cfg Config, clock Clock, fallback *log.Logger, sinks map[string]Sink) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	if fallback == nil {
		fallback = log.New(os.Stderr, "[logging] ", log.LstdFlags)
	}
	queueSize := cfg.BufferSize
	if queueSize <= 0 {
		queueSize = DefaultConfig().BufferSize
	}
	warnGap := cfg.DropWarnInterval
	if warnGap <= 0 {
		warnGap = 5 * time.Second
	}

	r := &Router{
		queue:    make(chan Event, queueSize),
		clock:    clock,
		fallback: fallback,
		minimum:  cfg.MinimumSeverity,
		fields:   cfg.CloneFields(),
		warnGap:  warnGap,
		stop:     make(chan struct{}),
	}

	names := make([]string, 0, len(sinks))
	for name, sink := range sinks {
		if sink != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	backlog := max(32, min(queueSize, 1024))
	for _, name := range names {
		r.workers = append(r.workers, newSinkWorker(name, sinks[name], backlog, fallback))
	}

	for _, w := range r.workers {
		go w.run()
	}
	r.dispatch.Add(1)
	go r.loop()
	return r, nil
}

// Publish stamps the event and queues it. Events without a type, events
// below the minimum severity, and events published after Close are
// discarded. A span carried by ctx supplies the trace id.
func (r *Router) Publish(ctx context.Context, event Event) {
	if event.Type == "" || r.closed.Load() {
		return
	}
	if event.Severity < r.minimum {
		r.filtered.Add(1)
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	if event.TraceID == "" && ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			event.TraceID = sc.TraceID().String()
		}
	}
	select {
	case r.queue <- event:
	default:
		r.drop(event)
	}
}

func (r *Router) loop() {
	defer r.dispatch.Done()
	for {
		select {
		case event := <-r.queue:
			r.forward(event)
		case <-r.stop:
			for {
				select {
				case event := <-r.queue:
					r.forward(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) forward(event Event) {
	event = withFields(event, r.fields)
	r.published.Add(1)
	for _, w := range r.workers {
		w.enqueue(event)
	}
}

func (r *Router) drop(event Event) {
	r.dropped.Add(1)
	now := time.Now().UnixNano()
	next := r.nextWarn.Load()
	if now >= next && r.nextWarn.CompareAndSwap(next, now+r.warnGap.Nanoseconds()) {
		r.fallback.Printf("queue full, dropping event type=%s tick=%d (dropped=%d)", event.Type, event.Tick, r.dropped.Load())
	}
}

// Close flushes queued events through every sink and closes the sinks. A
// second Close waits for ctx and reports its error.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		<-ctx.Done()
		return ctx.Err()
	}
	close(r.stop)

	flushed := make(chan struct{})
	go func() {
		r.dispatch.Wait()
		for _, w := range r.workers {
			w.finish()
		}
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-ctx.Done():
		return ctx.Err()
	}

	var firstErr error
	for _, w := range r.workers {
		if err := w.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) Stats() RouterStats {
	stats := RouterStats{
		EventsTotal:   r.published.Load(),
		FilteredTotal: r.filtered.Load(),
		DroppedTotal:  r.dropped.Load(),
		SinkDropped:   make(map[string]uint64, len(r.workers)),
	}
	for _, w := range r.workers {
		stats.SinkDropped[w.name] = w.dropped.Load()
	}
	return stats
}

// Sink returns the sink registered under name, or nil.
func (r *Router) Sink(name string) Sink {
	for _, w := range r.workers {
		if w.name == name {
			return w.sink
		}
	}
	return nil
}
