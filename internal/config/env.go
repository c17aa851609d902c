// Package config loads process settings from the environment and tunables
// from an optional settings file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"cart-flipper/server/internal/observability"
	"cart-flipper/server/logging"
)

const (
	RoleAuthority = "authority"
	RoleClient    = "client"
)

// Env holds process-level configuration read from environment variables.
type Env struct {
	Role         string        `env:"CARTFLIPPER_ROLE"          envDefault:"authority"`
	ListenAddr   string        `env:"CARTFLIPPER_LISTEN_ADDR"   envDefault:":8080"`
	AuthorityURL string        `env:"CARTFLIPPER_AUTHORITY_URL" envDefault:"ws://localhost:8080/ws"`
	PeerID       uint64        `env:"CARTFLIPPER_PEER_ID"`
	SettingsPath string        `env:"CARTFLIPPER_SETTINGS"      envDefault:"cartflipper.yaml"`
	TickRate     int           `env:"CARTFLIPPER_TICK_RATE"     envDefault:"15"`
	DemoCarts    int           `env:"CARTFLIPPER_DEMO_CARTS"    envDefault:"0"`
	ShutdownWait time.Duration `env:"CARTFLIPPER_SHUTDOWN_WAIT" envDefault:"5s"`

	LogLevel     string   `env:"CARTFLIPPER_LOG_LEVEL"     envDefault:"info"`
	LogSinks     []string `env:"CARTFLIPPER_LOG_SINKS"     envDefault:"console" envSeparator:","`
	LogJSONPath  string   `env:"CARTFLIPPER_LOG_JSON_PATH"`
	RedisAddr    string   `env:"CARTFLIPPER_REDIS_ADDR"`
	RedisChannel string   `env:"CARTFLIPPER_REDIS_CHANNEL" envDefault:"cartflipper:events"`

	OTLPEndpoint     string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName      string `env:"OTEL_SERVICE_NAME"      envDefault:"cart-flipper"`
	EnablePprofTrace bool   `env:"ENABLE_PPROF_TRACE"`
}

// LoadEnv reads Env from the process environment.
func LoadEnv() (Env, error) {
	var cfg Env
	if err := env.Parse(&cfg); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.validate()
}

// ParseEnv reads Env from the provided variables instead of the process
// environment.
func ParseEnv(vars map[string]string) (Env, error) {
	var cfg Env
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.validate()
}

func (e Env) validate() error {
	switch e.Role {
	case RoleAuthority, RoleClient:
	default:
		return fmt.Errorf("config: unknown role %q", e.Role)
	}
	if e.TickRate <= 0 {
		return fmt.Errorf("config: tick rate must be positive, got %d", e.TickRate)
	}
	return nil
}

// Logging derives the logging router configuration.
func (e Env) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.ParseSeverity(e.LogLevel)
	sinks := make([]string, 0, len(e.LogSinks))
	for _, sink := range e.LogSinks {
		if sink = strings.TrimSpace(sink); sink != "" {
			sinks = append(sinks, sink)
		}
	}
	if len(sinks) > 0 {
		cfg.EnabledSinks = sinks
	}
	cfg.JSON.FilePath = e.LogJSONPath
	cfg.Redis.Addr = e.RedisAddr
	if e.RedisChannel != "" {
		cfg.Redis.Channel = e.RedisChannel
	}
	cfg.Fields = map[string]any{"role": e.Role}
	return cfg
}

// Observability derives the tracing and profiling toggles.
func (e Env) Observability() observability.Config {
	return observability.Config{
		EnablePprofTrace: e.EnablePprofTrace,
		OTLPEndpoint:     e.OTLPEndpoint,
		ServiceName:      e.ServiceName,
	}
}
