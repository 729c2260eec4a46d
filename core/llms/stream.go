package llms

import "context"

// Stream is a lazily-consumed model response stream.
type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

type StreamToolCallChunk interface {
	StreamChunk
	ToolCall() ToolCall
}

type StreamUsageChunk interface {
	StreamChunk
	Usage() Usage
}

// Usage reports token accounting for one model call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int

	// TotalTime is the provider-reported wall time, where available.
	//
	// Note: This might be just an approximation.
	TotalTime float64
}
