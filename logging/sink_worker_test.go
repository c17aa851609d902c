package logging

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"
)

// flakySink fails its first failures writes.
type flakySink struct {
	mu       sync.Mutex
	failures int
	attempts int
	written  []Event
}

func (s *flakySink) Write(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failures {
		return errors.New("sink unavailable")
	}
	s.written = append(s.written, event)
	return nil
}

func (s *flakySink) Close(context.Context) error { return nil }

func TestSinkWorkerRetriesFailedEvent(t *testing.T) {
	cases := []struct {
		name     string
		failures int
		written  int
		attempts int
		dropped  uint64
	}{
		{name: "healthy", failures: 0, written: 1, attempts: 1},
		{name: "recovers", failures: maxSinkAttempts - 1, written: 1, attempts: maxSinkAttempts},
		{name: "gives up", failures: maxSinkAttempts, written: 0, attempts: maxSinkAttempts, dropped: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := &flakySink{failures: tc.failures}
			worker := newSinkWorker("flaky", sink, 4, log.New(io.Discard, "", 0))
			worker.retryBase = time.Millisecond
			go worker.run()

			worker.enqueue(Event{Type: "correction.succeeded"})
			worker.finish()

			if len(sink.written) != tc.written {
				t.Fatalf("written = %d, want %d", len(sink.written), tc.written)
			}
			if sink.attempts != tc.attempts {
				t.Fatalf("attempts = %d, want %d", sink.attempts, tc.attempts)
			}
			if got := worker.dropped.Load(); got != tc.dropped {
				t.Fatalf("dropped = %d, want %d", got, tc.dropped)
			}
			if tc.written == 1 && sink.written[0].Type != "correction.succeeded" {
				t.Fatalf("retried a different event: %+v", sink.written[0])
			}
		})
	}
}

func TestSinkWorkerBackoffIsCapped(t *testing.T) {
	worker := newSinkWorker("capped", &flakySink{}, 1, log.New(io.Discard, "", 0))
	if got := worker.backoff(1); got != sinkRetryBase {
		t.Fatalf("first backoff = %v, want %v", got, sinkRetryBase)
	}
	if got := worker.backoff(2); got != 2*sinkRetryBase {
		t.Fatalf("second backoff = %v, want %v", got, 2*sinkRetryBase)
	}
	if got := worker.backoff(20); got != maxSinkBackoff {
		t.Fatalf("late backoff = %v, want %v", got, maxSinkBackoff)
	}
}
