package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cart-flipper/server/logging"
)

// redisPublisher is the slice of the go-redis client the sink needs.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis fans events out over a pub/sub channel so out-of-process consumers
// (overlays, dashboards) can follow correction outcomes.
type Redis struct {
	client  redisPublisher
	channel string
	timeout time.Duration
	closer  func() error
}

// NewRedis publishes to channel through an existing client. The client is
// not closed by the sink.
func NewRedis(client redisPublisher, cfg logging.RedisConfig) *Redis {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	channel := cfg.Channel
	if channel == "" {
		channel = logging.DefaultConfig().Redis.Channel
	}
	return &Redis{client: client, channel: channel, timeout: timeout}
}

// DialRedis opens a client for cfg.Addr and owns it until Close.
func DialRedis(cfg logging.RedisConfig) *Redis {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	sink := NewRedis(client, cfg)
	sink.closer = client.Close
	return sink
}

// Write satisfies logging.Sink.
func (s *Redis) Write(event logging.Event) error {
	if s.client == nil {
		return nil
	}
	data, err := json.Marshal(toWire(event))
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.Type, s.channel, err)
	}
	return nil
}

// Close releases the client when the sink dialed it.
func (s *Redis) Close(context.Context) error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
