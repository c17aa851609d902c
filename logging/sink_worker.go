package logging

import (
	"log"
	"sync/atomic"
	"time"
)

const (
	sinkRetryBase   = 250 * time.Millisecond
	maxSinkBackoff  = 4 * time.Second
	maxSinkAttempts = 4
)

// sinkWorker owns one sink. A failed write is retried with the same event
// under exponential backoff; after maxSinkAttempts the event is counted as
// dropped. Events that arrive while the backlog is full are dropped too.
type sinkWorker struct {
	name      string
	sink      Sink
	backlog   chan Event
	done      chan struct{}
	fallback  *log.Logger
	retryBase time.Duration

	dropped atomic.Uint64
}

func newSinkWorker(name string, sink Sink, backlog int, fallback *log.Logger) *sinkWorker {
	return &sinkWorker{
		name:      name,
		sink:      sink,
		backlog:   make(chan Event, backlog),
		done:      make(chan struct{}),
		fallback:  fallback,
		retryBase: sinkRetryBase,
	}
}

// enqueue hands the worker its own copy of event.
func (w *sinkWorker) enqueue(event Event) {
	select {
	case w.backlog <- event.Clone():
	default:
		if n := w.dropped.Add(1); n&(n-1) == 0 {
			w.fallback.Printf("sink %s backlog full, dropping event type=%s (dropped=%d)", w.name, event.Type, n)
		}
	}
}

func (w *sinkWorker) run() {
	defer close(w.done)
	for event := range w.backlog {
		w.deliver(event)
	}
}

func (w *sinkWorker) deliver(event Event) {
	for attempt := 1; ; attempt++ {
		err := w.sink.Write(event)
		if err == nil {
			return
		}
		if attempt >= maxSinkAttempts {
			w.dropped.Add(1)
			w.fallback.Printf("sink %s gave up on event type=%s after %d attempts: %v", w.name, event.Type, attempt, err)
			return
		}
		delay := w.backoff(attempt)
		w.fallback.Printf("sink %s failed: %v (retry in %s)", w.name, err, delay)
		time.Sleep(delay)
	}
}

// backoff is the wait after the given failed attempt.
func (w *sinkWorker) backoff(attempt int) time.Duration {
	return min(w.retryBase<<min(attempt-1, 5), maxSinkBackoff)
}

// finish stops accepting events and waits for the backlog to drain.
func (w *sinkWorker) finish() {
	close(w.backlog)
	<-w.done
}
