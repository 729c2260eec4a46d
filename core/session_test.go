package orchestration

import (
	"testing"
)

func TestSessionHappyPathTransitions(t *testing.T) {
	session := NewCallSession("+15550001111")

	for _, next := range []State{StateDialing, StateRinging, StateAnswered, StateActive, StateEnding} {
		if err := session.transitionTo(next); err != nil {
			t.Fatalf("expected transition to %s to succeed, got %v", next, err)
		}
	}

	if err := session.end(EndReasonCompleted); err != nil {
		t.Fatalf("expected end to succeed, got %v", err)
	}
	if got := session.State(); got != StateEnded {
		t.Fatalf("expected ended state, got %s", got)
	}
	if got := session.EndReason(); got != EndReasonCompleted {
		t.Fatalf("expected completed reason, got %s", got)
	}
}

func TestSessionRejectsRevisitingDepartedState(t *testing.T) {
	session := NewCallSession("+15550001111")

	if err := session.transitionTo(StateDialing); err != nil {
		t.Fatalf("expected transition to dialing to succeed, got %v", err)
	}
	if err := session.transitionTo(StateAnswered); err != nil {
		t.Fatalf("expected transition to answered to succeed, got %v", err)
	}

	if err := session.transitionTo(StateDialing); err == nil {
		t.Fatalf("expected revisiting dialing to be rejected")
	}
	if err := session.transitionTo(StateRinging); err == nil {
		t.Fatalf("expected skipping back to ringing to be rejected")
	}
	if got := session.State(); got != StateAnswered {
		t.Fatalf("expected rejected transitions to leave state untouched, got %s", got)
	}
}

func TestSessionTransferringMayFallBackToActive(t *testing.T) {
	session := NewCallSession("+15550001111")

	for _, next := range []State{StateDialing, StateAnswered, StateActive, StateTransferRequested, StateTransferring} {
		if err := session.transitionTo(next); err != nil {
			t.Fatalf("expected transition to %s to succeed, got %v", next, err)
		}
	}

	if err := session.transitionTo(StateActive); err != nil {
		t.Fatalf("expected transferring to fall back to active, got %v", err)
	}
}

func TestSessionEndRequiresEndingState(t *testing.T) {
	session := NewCallSession("+15550001111")

	if err := session.transitionTo(StateDialing); err != nil {
		t.Fatalf("expected transition to dialing to succeed, got %v", err)
	}
	if err := session.end(EndReasonCompleted); err == nil {
		t.Fatalf("expected end from dialing to be rejected")
	}
}

func TestSessionTerminalStateIsImmutable(t *testing.T) {
	session := NewCallSession("+15550001111")

	if !session.fail(EndReasonDialError) {
		t.Fatalf("expected fail to succeed from a live state")
	}
	if session.fail(EndReasonInternalFault) {
		t.Fatalf("expected second fail to be rejected")
	}
	if got := session.EndReason(); got != EndReasonDialError {
		t.Fatalf("expected first terminal reason to win, got %s", got)
	}

	if err := session.transitionTo(StateDialing); err == nil {
		t.Fatalf("expected transitions out of a terminal state to be rejected")
	}

	session.appendTurn(ConversationTurn{Speaker: SpeakerAgent, Text: "too late"})
	if turns := session.Snapshot().Turns; len(turns) != 0 {
		t.Fatalf("expected no turns after terminal state, got %d", len(turns))
	}
}

func TestSnapshotIsDetachedFromLiveSession(t *testing.T) {
	session := NewCallSession("+15550001111",
		WithTransferTo("+19995551212"),
		WithMetadata(map[string]string{"campaign": "q3"}),
	)
	session.appendTurn(ConversationTurn{Speaker: SpeakerCaller, Text: "hello"})

	snapshot := session.Snapshot()

	session.Metadata["campaign"] = "q4"
	session.appendTurn(ConversationTurn{Speaker: SpeakerAgent, Text: "hi"})

	if got := snapshot.Metadata["campaign"]; got != "q3" {
		t.Fatalf("expected snapshot metadata to be detached, got %q", got)
	}
	if got := len(snapshot.Turns); got != 1 {
		t.Fatalf("expected snapshot to keep one turn, got %d", got)
	}
	if snapshot.TransferTo != "+19995551212" {
		t.Fatalf("expected transfer target in snapshot, got %q", snapshot.TransferTo)
	}
}

func TestWithSessionIDKeepsGeneratedIDWhenEmpty(t *testing.T) {
	session := NewCallSession("+15550001111", WithSessionID(""))
	if session.ID == "" {
		t.Fatalf("expected a generated session id")
	}

	session = NewCallSession("+15550001111", WithSessionID("fixed"))
	if session.ID != "fixed" {
		t.Fatalf("expected explicit session id, got %q", session.ID)
	}
}
