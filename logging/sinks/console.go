package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"cart-flipper/server/logging"
)

const (
	ansiReset  = "\x1b[0m"
	ansiGray   = "\x1b[90m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
)

// ConsoleSink writes one human-readable line per event.
type ConsoleSink struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

func NewConsoleSink(w io.Writer, cfg logging.ConsoleConfig) *ConsoleSink {
	if w == nil {
		w = io.Discard
	}
	return &ConsoleSink{w: w, color: cfg.UseColor}
}

// NewConsole writes events to w without color.
func NewConsole(w io.Writer) *ConsoleSink {
	return NewConsoleSink(w, logging.ConsoleConfig{})
}

func (s *ConsoleSink) Write(event logging.Event) error {
	var b strings.Builder
	b.WriteString(event.Time.Format(time.DateTime))
	b.WriteByte(' ')
	b.WriteString(s.level(event.Severity))
	fmt.Fprintf(&b, " %s tick=%d actor=%s", event.Type, event.Tick, formatEntity(event.Actor))
	if len(event.Targets) > 0 {
		parts := make([]string, 0, len(event.Targets))
		for _, target := range event.Targets {
			parts = append(parts, formatEntity(target))
		}
		b.WriteString(" targets=")
		b.WriteString(strings.Join(parts, ","))
	}
	if event.Payload != nil {
		b.WriteString(" payload=")
		if data, err := json.Marshal(event.Payload); err == nil {
			b.Write(data)
		} else {
			fmt.Fprintf(&b, "%v", event.Payload)
		}
	}
	if event.TraceID != "" {
		b.WriteString(" trace=")
		b.WriteString(event.TraceID)
	}
	b.WriteByte('\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, b.String())
	return err
}

func (s *ConsoleSink) Close(context.Context) error {
	return nil
}

func (s *ConsoleSink) level(severity logging.Severity) string {
	name := fmt.Sprintf("%-5s", strings.ToUpper(severity.String()))
	if !s.color {
		return name
	}
	switch severity {
	case logging.SeverityDebug:
		return ansiGray + name + ansiReset
	case logging.SeverityWarn:
		return ansiYellow + name + ansiReset
	case logging.SeverityError:
		return ansiRed + name + ansiReset
	default:
		return name
	}
}

func formatEntity(ref logging.EntityRef) string {
	switch {
	case ref.ID == "":
		return string(ref.Kind)
	case ref.Kind == "":
		return ref.ID
	default:
		return string(ref.Kind) + ":" + ref.ID
	}
}
