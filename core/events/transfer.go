package events

const (
	// KindTransferDialing identifies origination of the operator leg.
	KindTransferDialing Kind = "transfer.dialing"
	// KindTransferBridged identifies a confirmed bridge of both legs.
	KindTransferBridged Kind = "transfer.bridged"
	// KindTransferFailed identifies an unreachable operator.
	KindTransferFailed Kind = "transfer.failed"
	// KindTransferAbandoned identifies a transfer cut short by teardown.
	KindTransferAbandoned Kind = "transfer.abandoned"
)

// TransferDialing marks the start of an operator leg dial.
type TransferDialing struct {
	base
	SessionID string
	Target    string
}

// NewTransferDialing creates a transfer dialing event.
func NewTransferDialing(sessionID, target string) TransferDialing {
	return TransferDialing{base: newBase(KindTransferDialing), SessionID: sessionID, Target: target}
}

// TransferBridged marks both legs bridged.
type TransferBridged struct {
	base
	SessionID string
	Target    string
}

// NewTransferBridged creates a transfer bridged event.
func NewTransferBridged(sessionID, target string) TransferBridged {
	return TransferBridged{base: newBase(KindTransferBridged), SessionID: sessionID, Target: target}
}

// TransferFailed marks an operator leg that never bridged.
type TransferFailed struct {
	base
	SessionID string
	Target    string
	Error     string
}

// NewTransferFailed creates a transfer failed event.
func NewTransferFailed(sessionID, target, err string) TransferFailed {
	return TransferFailed{base: newBase(KindTransferFailed), SessionID: sessionID, Target: target, Error: err}
}

// TransferAbandoned marks a transfer attempt cancelled by session teardown.
type TransferAbandoned struct {
	base
	SessionID string
	Target    string
}

// NewTransferAbandoned creates a transfer abandoned event.
func NewTransferAbandoned(sessionID, target string) TransferAbandoned {
	return TransferAbandoned{base: newBase(KindTransferAbandoned), SessionID: sessionID, Target: target}
}
