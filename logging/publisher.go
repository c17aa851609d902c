package logging

import (
	"context"
	"maps"
	"slices"
	"strconv"
	"time"
)

type EventType string

type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	}
	return "unknown"
}

const (
	CategoryCorrection = "correction"
	CategoryNetwork    = "network"
)

type EntityKind string

const (
	EntityKindPeer   EntityKind = "peer"
	EntityKindObject EntityKind = "object"
)

// EntityRef names the peer or object an event is about.
type EntityRef struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
}

// PeerRef identifies a connected process by routing id.
func PeerRef(id uint64) EntityRef {
	return EntityRef{ID: strconv.FormatUint(id, 10), Kind: EntityKindPeer}
}

// ObjectRef identifies a shared world object by its canonical id.
func ObjectRef(id string) EntityRef {
	return EntityRef{ID: id, Kind: EntityKindObject}
}

// Event is one structured record. Time and TraceID are filled in by the
// router when left empty.
type Event struct {
	Type      EventType      `json:"type"`
	Tick      uint64         `json:"tick"`
	Time      time.Time      `json:"time"`
	Actor     EntityRef      `json:"actor"`
	Targets   []EntityRef    `json:"targets,omitempty"`
	Severity  Severity       `json:"severity"`
	Category  string         `json:"category,omitempty"`
	Payload   any            `json:"payload,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
	TraceID   string         `json:"traceId,omitempty"`
	CommandID string         `json:"commandId,omitempty"`
}

// Clone returns a copy of e that shares no slices or maps with it.
func (e Event) Clone() Event {
	e.Targets = slices.Clone(e.Targets)
	e.Extra = maps.Clone(e.Extra)
	return e
}

// withFields returns a copy of event whose Extra carries fields. Keys the
// event already sets win.
func withFields(event Event, fields map[string]any) Event {
	if len(fields) == 0 {
		return event
	}
	event = event.Clone()
	if event.Extra == nil {
		event.Extra = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		if _, set := event.Extra[k]; !set {
			event.Extra[k] = v
		}
	}
	return event
}

type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f != nil {
		f(ctx, event)
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

func NopPublisher() Publisher {
	return nopPublisher{}
}
