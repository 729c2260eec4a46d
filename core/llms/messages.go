package llms

// Response is a single response from an LLM.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Turn is a single exchange unit in the conversation: what the user said and
// everything the assistant produced in reaction to it.
type Turn struct {
	Role TurnRole

	// Content is the content of the turn. In a user turn it is the prompt,
	// in an assistant turn it is the response.
	Content   string
	ToolCalls []ToolCall

	Cancelled bool
}

// ToolCall is a structured action requested by the model mid-conversation,
// together with the result it was answered with.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
	Response  string
}

// TurnRole describes who the turn content is attributed to.
type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)

// MessageRole describes who a wire-level message is from.
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)
