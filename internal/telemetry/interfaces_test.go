package telemetry

import (
	"bytes"
	"log"
	"testing"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		base := log.New(&buf, "", 0)
		logger := WrapLogger(base)
		logger.Printf("hello %s", "world")
		if got := buf.String(); got != "hello world\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
	})
}

func TestCounters(t *testing.T) {
	counters := NewCounters()
	var metrics Metrics = counters

	metrics.Add("test_counter", 2)
	metrics.Store("test_counter", 5)
	metrics.Add("test_counter", 3)
	metrics.Store("test_gauge", 9)

	snapshot := counters.Snapshot()
	if got := snapshot["test_counter"]; got != 8 {
		t.Fatalf("unexpected counter value: %d", got)
	}
	if got := snapshot["test_gauge"]; got != 9 {
		t.Fatalf("unexpected gauge value: %d", got)
	}
	keys := counters.Keys()
	if len(keys) != 2 || keys[0] != "test_counter" || keys[1] != "test_gauge" {
		t.Fatalf("unexpected keys: %v", keys)
	}

	// Ensure nil counters do not panic.
	var nilCounters *Counters
	nilCounters.Add("ignored", 1)
	nilCounters.Store("ignored", 1)
}
