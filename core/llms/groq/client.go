package groq

import (
	"github.com/invopop/jsonschema"
	"github.com/outdial/outdial-core/core/llms"
)

const (
	url = "https://api.groq.com/openai/v1/chat/completions"

	endMessage  = "[DONE]"
	chunkPrefix = "data:"

	defaultModel = "llama-3.3-70b-versatile"
)

// Client is a chat-completions client against the Groq OpenAI-compatible API.
// It is stateless and safe to share across concurrent call sessions.
type Client struct {
	apiKey string
	model  string
}

type ClientOption func(*Client)

// WithModel overrides the default chat model.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{apiKey: apiKey, model: defaultModel}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Wire format for tool definitions.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

func toTools(tools []llms.Tool) []Tool {
	if tools == nil {
		return nil
	}

	wireTools := make([]Tool, 0, len(tools))
	for _, tool := range tools {
		wireTools = append(wireTools, Tool{
			Type: "function",
			Function: ToolFunction{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}
	return wireTools
}
