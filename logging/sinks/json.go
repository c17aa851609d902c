package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"cart-flipper/server/logging"
)

// JSON writes newline-delimited events. With a positive flush interval the
// output is buffered and flushed periodically; otherwise every event is
// flushed as it is written.
type JSON struct {
	mu      sync.Mutex
	buf     *bufio.Writer
	encoder *json.Encoder

	buffered bool
	stop     chan struct{}
	stopped  sync.WaitGroup
	once     sync.Once
}

func NewJSON(w io.Writer, flushInterval time.Duration) *JSON {
	if w == nil {
		w = io.Discard
	}
	buf := bufio.NewWriter(w)
	sink := &JSON{
		buf:      buf,
		encoder:  json.NewEncoder(buf),
		buffered: flushInterval > 0,
		stop:     make(chan struct{}),
	}
	if sink.buffered {
		sink.stopped.Add(1)
		go sink.flushEvery(flushInterval)
	}
	return sink
}

func (s *JSON) Write(event logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.encoder.Encode(toWire(event)); err != nil {
		return err
	}
	if s.buffered {
		return nil
	}
	return s.buf.Flush()
}

// Close stops the flush loop and flushes what is buffered. The underlying
// writer is left open.
func (s *JSON) Close(context.Context) error {
	s.once.Do(func() { close(s.stop) })
	s.stopped.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Flush()
}

func (s *JSON) flushEvery(interval time.Duration) {
	defer s.stopped.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.buf.Flush()
			s.mu.Unlock()
		}
	}
}
