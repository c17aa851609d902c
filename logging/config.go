package logging

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Config selects sinks and tunes the router. Fields are attached to the
// Extra of every event that does not already set them.
type Config struct {
	EnabledSinks     []string
	BufferSize       int
	MinimumSeverity  Severity
	Fields           map[string]any
	DropWarnInterval time.Duration

	Console ConsoleConfig
	JSON    JSONConfig
	Redis   RedisConfig
}

type ConsoleConfig struct {
	UseColor bool
}

// JSONConfig points the newline-delimited file sink at a path. A zero
// FlushInterval flushes after every event.
type JSONConfig struct {
	FilePath      string
	FlushInterval time.Duration
}

// RedisConfig selects the pub/sub channel used to fan events out to
// out-of-process consumers.
type RedisConfig struct {
	Addr    string
	Channel string
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		EnabledSinks:     []string{"console"},
		BufferSize:       512,
		MinimumSeverity:  SeverityInfo,
		DropWarnInterval: 5 * time.Second,
		JSON:             JSONConfig{FlushInterval: 2 * time.Second},
		Redis:            RedisConfig{Channel: "cartflipper:events", Timeout: time.Second},
	}
}

func (c Config) HasSink(name string) bool {
	return slices.Contains(c.EnabledSinks, name)
}

func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	return maps.Clone(c.Fields)
}

var severityNames = map[string]Severity{
	"debug":   SeverityDebug,
	"info":    SeverityInfo,
	"warn":    SeverityWarn,
	"warning": SeverityWarn,
	"error":   SeverityError,
}

// ParseSeverity accepts a level name in any case. Unknown names map to
// info.
func ParseSeverity(level string) Severity {
	if severity, ok := severityNames[strings.ToLower(strings.TrimSpace(level))]; ok {
		return severity
	}
	return SeverityInfo
}
