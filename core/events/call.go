package events

const (
	// KindCallDialing identifies the start of the outbound leg.
	KindCallDialing Kind = "call.dialing"
	// KindCallRinging identifies far-end ringing.
	KindCallRinging Kind = "call.ringing"
	// KindCallAnswered identifies far-end pickup.
	KindCallAnswered Kind = "call.answered"
	// KindCallBranchDecided identifies the voicemail/human branch decision.
	KindCallBranchDecided Kind = "call.branch_decided"
	// KindCallEnding identifies the start of session teardown.
	KindCallEnding Kind = "call.ending"
	// KindCallEnded identifies a finished session with its terminal reason.
	KindCallEnded Kind = "call.ended"
	// KindCallFailed identifies a session that reached the failed state.
	KindCallFailed Kind = "call.failed"
)

// CallDialing marks the origination of the outbound leg.
type CallDialing struct {
	base
	SessionID string
	Number    string
}

// NewCallDialing creates a call dialing event.
func NewCallDialing(sessionID, number string) CallDialing {
	return CallDialing{base: newBase(KindCallDialing), SessionID: sessionID, Number: number}
}

// CallRinging marks far-end ringing reported by the media adapter.
type CallRinging struct {
	base
	SessionID string
}

// NewCallRinging creates a call ringing event.
func NewCallRinging(sessionID string) CallRinging {
	return CallRinging{base: newBase(KindCallRinging), SessionID: sessionID}
}

// CallAnswered marks far-end pickup.
type CallAnswered struct {
	base
	SessionID string
}

// NewCallAnswered creates a call answered event.
func NewCallAnswered(sessionID string) CallAnswered {
	return CallAnswered{base: newBase(KindCallAnswered), SessionID: sessionID}
}

// CallBranchDecided marks the voicemail/human classification outcome.
type CallBranchDecided struct {
	base
	SessionID string
	Verdict   string
}

// NewCallBranchDecided creates a branch decision event.
func NewCallBranchDecided(sessionID, verdict string) CallBranchDecided {
	return CallBranchDecided{base: newBase(KindCallBranchDecided), SessionID: sessionID, Verdict: verdict}
}

// CallEnding marks the start of teardown, before synthesis drain.
type CallEnding struct {
	base
	SessionID string
	Reason    string
}

// NewCallEnding creates a call ending event.
func NewCallEnding(sessionID, reason string) CallEnding {
	return CallEnding{base: newBase(KindCallEnding), SessionID: sessionID, Reason: reason}
}

// CallEnded marks a session that reached its terminal state.
type CallEnded struct {
	base
	SessionID string
	Reason    string
}

// NewCallEnded creates a call ended event.
func NewCallEnded(sessionID, reason string) CallEnded {
	return CallEnded{base: newBase(KindCallEnded), SessionID: sessionID, Reason: reason}
}

// CallFailed marks an unrecoverable session failure.
type CallFailed struct {
	base
	SessionID string
	Reason    string
	Error     string
}

// NewCallFailed creates a call failed event.
func NewCallFailed(sessionID, reason, err string) CallFailed {
	return CallFailed{base: newBase(KindCallFailed), SessionID: sessionID, Reason: reason, Error: err}
}
