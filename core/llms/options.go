package llms

// PromptOptions carries everything a provider needs beyond the prompt itself.
type PromptOptions struct {
	Instructions    string
	Turns           []Turn
	Tools           []Tool
	Stream          func(chunk string)
	ForcedToolsCall bool
}

type PromptOption func(*PromptOptions)

// WithInstructions sets the system instructions for the call.
func WithInstructions(instructions string) PromptOption {
	return func(o *PromptOptions) {
		o.Instructions = instructions
	}
}

// WithTurns supplies prior conversation turns as model context.
func WithTurns(turns ...Turn) PromptOption {
	return func(o *PromptOptions) {
		o.Turns = append(o.Turns, turns...)
	}
}

// WithTools exposes tools to the model for this call.
func WithTools(tools ...Tool) PromptOption {
	return func(o *PromptOptions) {
		o.Tools = append(o.Tools, tools...)
	}
}

// WithForcedTools exposes tools and requires the model to call one of them.
func WithForcedTools(tools ...Tool) PromptOption {
	return func(o *PromptOptions) {
		o.Tools = append(o.Tools, tools...)
		o.ForcedToolsCall = true
	}
}

// WithStream registers a callback invoked for each streamed content chunk.
func WithStream(stream func(chunk string)) PromptOption {
	return func(o *PromptOptions) {
		o.Stream = stream
	}
}
