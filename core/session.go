package orchestration

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

// State is the call session lifecycle state. Transitions are monotonic: once
// a state is left it is never revisited, with the single exception of
// Transferring falling back to Active when a transfer fails and the policy is
// to stay on the call.
type State string

const (
	StateCreated           State = "created"
	StateDialing           State = "dialing"
	StateRinging           State = "ringing"
	StateAnswered          State = "answered"
	StateVoicemail         State = "voicemail"
	StateActive            State = "active"
	StateTransferRequested State = "transfer_requested"
	StateTransferring      State = "transferring"
	StateEnding            State = "ending"
	StateEnded             State = "ended"
	StateFailed            State = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateEnded || s == StateFailed
}

// EndReason records why a session reached a terminal state.
type EndReason string

const (
	EndReasonCompleted            EndReason = "completed"
	EndReasonRemoteHangup         EndReason = "remote_hangup"
	EndReasonIdleTimeout          EndReason = "idle_timeout"
	EndReasonVoicemailLeftMessage EndReason = "voicemail_left_message"
	EndReasonTransferredToHuman   EndReason = "transferred_to_human"
	EndReasonDialError            EndReason = "dial_error"
	EndReasonNoAnswer             EndReason = "no_answer"
	EndReasonPipelineError        EndReason = "pipeline_error"
	EndReasonInternalFault        EndReason = "internal_fault"
)

var validTransitions = map[State][]State{
	StateCreated:           {StateDialing},
	StateDialing:           {StateRinging, StateAnswered},
	StateRinging:           {StateAnswered},
	StateAnswered:          {StateVoicemail, StateActive},
	StateVoicemail:         {StateEnding},
	StateActive:            {StateTransferRequested, StateEnding},
	StateTransferRequested: {StateTransferring},
	StateTransferring:      {StateActive, StateEnding},
	StateEnding:            {StateEnded},
}

// Speaker attributes a conversation turn.
type Speaker string

const (
	SpeakerAgent  Speaker = "agent"
	SpeakerCaller Speaker = "caller"
)

// ConversationTurn is one contiguous utterance attributed to a single
// speaker. Turns are append-only while the session is live.
type ConversationTurn struct {
	Speaker Speaker
	Text    string
	// StartOffset and EndOffset locate the turn in the call's audio stream,
	// measured from the moment the call was answered.
	StartOffset time.Duration
	EndOffset   time.Duration
	// Confidence is the recognizer confidence for caller turns, nil for
	// synthesized agent turns.
	Confidence *float64
}

// CallSession is one outbound call attempt. All mutation goes through the
// orchestrator; the exclusion covers only the state variable and the turn
// log, never I/O.
type CallSession struct {
	ID          string
	PhoneNumber string
	TransferTo  string
	Metadata    map[string]string

	CreatedAt time.Time

	mu         sync.Mutex
	state      State
	endReason  EndReason
	answeredAt *time.Time
	endedAt    *time.Time
	turns      []ConversationTurn
	transfer   *TransferAttempt
}

type SessionOption func(*CallSession)

// WithTransferTo sets the number a transfer_call request will dial.
func WithTransferTo(number string) SessionOption {
	return func(s *CallSession) { s.TransferTo = number }
}

// WithMetadata attaches the opaque dispatch payload to the session.
func WithMetadata(metadata map[string]string) SessionOption {
	return func(s *CallSession) { s.Metadata = metadata }
}

func WithSessionID(id string) SessionOption {
	return func(s *CallSession) {
		if id != "" {
			s.ID = id
		}
	}
}

func NewCallSession(phoneNumber string, opts ...SessionOption) *CallSession {
	session := &CallSession{
		ID:          uuid.NewString(),
		PhoneNumber: phoneNumber,
		CreatedAt:   time.Now(),
		state:       StateCreated,
	}
	for _, opt := range opts {
		opt(session)
	}
	return session
}

func (s *CallSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *CallSession) EndReason() EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endReason
}

// transitionTo moves the session to the next state if the transition table
// allows it. Terminal states are unreachable through this method, use end or
// fail instead.
func (s *CallSession) transitionTo(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsTerminal() {
		return fmt.Errorf("session %s is already terminal (%s)", s.ID, s.state)
	}

	allowed := false
	for _, candidate := range validTransitions[s.state] {
		if candidate == next {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("invalid transition %s -> %s for session %s", s.state, next, s.ID)
	}

	if next == StateAnswered {
		now := time.Now()
		s.answeredAt = &now
	}
	s.state = next
	return nil
}

// end finalizes the session from Ending. The reason recorded by the first
// terminal call wins.
func (s *CallSession) end(reason EndReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsTerminal() {
		return fmt.Errorf("session %s is already terminal (%s)", s.ID, s.state)
	}
	if s.state != StateEnding {
		return fmt.Errorf("session %s cannot end from %s", s.ID, s.state)
	}

	now := time.Now()
	s.state = StateEnded
	s.endReason = reason
	s.endedAt = &now
	return nil
}

// fail moves the session to Failed from any non-terminal state.
func (s *CallSession) fail(reason EndReason) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsTerminal() {
		return false
	}

	now := time.Now()
	s.state = StateFailed
	s.endReason = reason
	s.endedAt = &now
	return true
}

// appendTurn records one conversation turn. Offsets are measured from the
// answer timestamp.
func (s *CallSession) appendTurn(turn ConversationTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsTerminal() {
		return
	}
	s.turns = append(s.turns, turn)
}

// sinceAnswered returns the current offset into the call audio stream.
func (s *CallSession) sinceAnswered() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.answeredAt == nil {
		return 0
	}
	return time.Since(*s.answeredAt)
}

func (s *CallSession) setTransfer(attempt *TransferAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfer = attempt
}

// Snapshot is a point-in-time copy of session state, safe to retain and read
// after the session has moved on.
type Snapshot struct {
	ID          string
	PhoneNumber string
	TransferTo  string
	Metadata    map[string]string

	State     State
	EndReason EndReason

	CreatedAt  time.Time
	AnsweredAt *time.Time
	EndedAt    *time.Time

	Turns    []ConversationTurn
	Transfer *TransferAttempt
}

// Snapshot deep-copies the mutable session state under the session lock.
func (s *CallSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := Snapshot{
		ID:          s.ID,
		PhoneNumber: s.PhoneNumber,
		TransferTo:  s.TransferTo,
		State:       s.state,
		EndReason:   s.endReason,
		CreatedAt:   s.CreatedAt,
	}

	// The turn log, timestamps, metadata and transfer attempt are live
	// structures, deep-copy them so the snapshot cannot observe later writes.
	_ = copier.CopyWithOption(&snapshot.Metadata, &s.Metadata, copier.Option{DeepCopy: true})
	_ = copier.CopyWithOption(&snapshot.Turns, &s.turns, copier.Option{DeepCopy: true})
	_ = copier.CopyWithOption(&snapshot.AnsweredAt, &s.answeredAt, copier.Option{DeepCopy: true})
	_ = copier.CopyWithOption(&snapshot.EndedAt, &s.endedAt, copier.Option{DeepCopy: true})
	if s.transfer != nil {
		transfer := &TransferAttempt{}
		_ = copier.CopyWithOption(transfer, s.transfer, copier.Option{DeepCopy: true})
		snapshot.Transfer = transfer
	}

	return snapshot
}
