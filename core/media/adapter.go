// Package media defines the media channel contract: call legs carrying
// bidirectional audio plus the signaling events that drive the session
// state machine. Implementations own no business logic.
package media

import (
	"context"

	"github.com/outdial/outdial-core/core/audio"
)

type SignalKind string

const (
	// SignalRinging reports far-end ringing on the leg.
	SignalRinging SignalKind = "ringing"
	// SignalAnswered reports far-end pickup.
	SignalAnswered SignalKind = "answered"
	// SignalEnded reports an orderly hangup by either side.
	SignalEnded SignalKind = "ended"
	// SignalFailed reports that the leg broke: trunk rejection, transport
	// loss, or anything else that makes the media path unusable.
	SignalFailed SignalKind = "failed"
)

// SignalEvent is one signaling update on a call leg.
type SignalEvent struct {
	Kind SignalKind

	// SIPStatus carries the trunk's status code where the gateway exposes
	// one (e.g. 486 busy). Zero when not applicable.
	SIPStatus int
	// Headers carries signaling hints attached by the trunk, such as
	// answering-machine detection results.
	Headers map[string]string
	// Reason is a human-readable explanation for Ended/Failed signals.
	Reason string
}

// Leg is one directional call connection between the system and a single
// endpoint. Audio and signaling channels are closed when the leg ends.
type Leg interface {
	ID() string

	// SendAudio writes one synthesized frame towards the endpoint.
	SendAudio(frame []byte) error
	// Audio streams captured frames from the endpoint.
	Audio() <-chan []byte
	// Signals streams signaling events in arrival order.
	Signals() <-chan SignalEvent

	Encoding() audio.EncodingInfo

	// Close releases the leg. Safe to call more than once.
	Close(ctx context.Context) error
}

// Adapter originates call legs and bridges their media. Implementations are
// shared across concurrent sessions and hold no per-session state.
type Adapter interface {
	Dial(ctx context.Context, number string, opts ...DialOption) (Leg, error)

	// Bridge joins two live legs so media flows between them. It must
	// refuse a leg that has already ended.
	Bridge(ctx context.Context, a Leg, b Leg) error
}
