package events

const (
	// KindToolCallStarted identifies a structured action request picked up
	// for execution.
	KindToolCallStarted Kind = "tool_call.started"
	// KindToolCallCompleted identifies an action whose result was handed
	// back to the conversation engine.
	KindToolCallCompleted Kind = "tool_call.completed"
	// KindToolCallFailed identifies an action that produced a failure the
	// model is asked to relay.
	KindToolCallFailed Kind = "tool_call.failed"
)

// ToolCallStarted marks a call control function entering execution.
type ToolCallStarted struct {
	base
	ID        string
	Name      string
	Arguments string
}

// NewToolCallStarted creates a tool call started event.
func NewToolCallStarted(id, name, arguments string) ToolCallStarted {
	return ToolCallStarted{base: newBase(KindToolCallStarted), ID: id, Name: name, Arguments: arguments}
}

// ToolCallCompleted carries the text result returned to the model.
type ToolCallCompleted struct {
	base
	ID     string
	Name   string
	Result string
}

// NewToolCallCompleted creates a tool call completed event.
func NewToolCallCompleted(id, name, result string) ToolCallCompleted {
	return ToolCallCompleted{base: newBase(KindToolCallCompleted), ID: id, Name: name, Result: result}
}

// ToolCallFailed marks an action failure. The session continues; the
// failure text is relayed by the model, not raised as a fault.
type ToolCallFailed struct {
	base
	ID    string
	Name  string
	Error string
}

// NewToolCallFailed creates a tool call failed event.
func NewToolCallFailed(id, name, err string) ToolCallFailed {
	return ToolCallFailed{base: newBase(KindToolCallFailed), ID: id, Name: name, Error: err}
}
