package events

import "time"

// Kind identifies an event type. Values are namespaced receiver-facing
// strings, e.g. "call.ended" or "tool_call.started".
type Kind string

// Event is the contract every telemetry payload satisfies.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// base carries the kind and emission time shared by all events. It is
// stamped at construction, not at delivery.
type base struct {
	kind      Kind
	timestamp time.Time
}

func newBase(kind Kind) base {
	return base{kind: kind, timestamp: time.Now()}
}

func (b base) Kind() Kind { return b.kind }

func (b base) Timestamp() time.Time { return b.timestamp }
