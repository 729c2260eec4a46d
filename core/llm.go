package orchestration

import (
	"context"
	"fmt"
	"strings"

	"github.com/outdial/outdial-core/core/events"
	"github.com/outdial/outdial-core/core/llms"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// llm wraps the configured conversation engine. It owns the tool loop: a
// model response that requests tool calls is answered and re-prompted until
// the model produces plain content.
type llm struct {
	client LLMWithStream
	tools  []llms.Tool

	emitEvent eventEmitter

	// dispatchUnknown answers tool calls whose name is outside the configured
	// tool set, so a hallucinated function degrades into a recoverable
	// conversation result instead of a fault.
	dispatchUnknown func(ctx context.Context, call llms.ToolCall) string
}

func (runtime *llm) set(client LLMWithStream) {
	if runtime != nil {
		runtime.client = client
	}
}

func (runtime *llm) setTools(tools ...llms.Tool) {
	if runtime == nil {
		return
	}
	runtime.tools = append([]llms.Tool(nil), tools...)
}

func (runtime *llm) isConfigured() bool {
	return runtime != nil && runtime.client != nil
}

// generate produces one assistant turn for the given conversation. onChunk
// receives streamed content; cancelled is polled between chunks so a barge-in
// abandons the stream promptly. A cancelled generation returns the partial
// turn with Cancelled set.
func (runtime *llm) generate(
	ctx context.Context,
	instructions string,
	conversation []llms.Turn,
	onChunk func(string),
	cancelled func() bool,
) (*llms.Turn, error) {
	if !runtime.isConfigured() {
		return nil, fmt.Errorf("no llm client configured")
	}

	span := trace.SpanFromContext(ctx)
	turn := llms.Turn{Role: llms.TurnRoleAssistant}

	for {
		stream := runtime.client.PromptWithStream(ctx, nil,
			llms.WithInstructions(instructions),
			llms.WithTurns(append(conversation, turn)...),
			llms.WithTools(runtime.tools...),
		)

		var message strings.Builder
		message.WriteString(turn.Content)
		toolCalls := []llms.ToolCall{}
		for chunk, err := range stream.Chunks(ctx) {
			if err != nil {
				err = fmt.Errorf("failed to stream llm response: %w", err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}

			if cancelled != nil && cancelled() {
				turn.Content = message.String()
				turn.Cancelled = true
				return &turn, nil
			}

			switch chunk := chunk.(type) {
			case llms.StreamContentChunk:
				message.WriteString(chunk.Content())
				if onChunk != nil {
					onChunk(chunk.Content())
				}
			case llms.StreamToolCallChunk:
				toolCalls = append(toolCalls, chunk.ToolCall())
			}
		}
		turn.Content = message.String()

		if len(toolCalls) == 0 {
			return &turn, nil
		}

		// Tool calls are answered in emission order before the model is
		// prompted again.
		for _, toolCall := range toolCalls {
			toolCall.Response = runtime.callTool(ctx, toolCall)
			turn.ToolCalls = append(turn.ToolCalls, toolCall)
		}
	}
}

// callTool resolves a tool call to its textual result. Execution failures are
// returned to the model as data, never as session faults.
func (runtime *llm) callTool(ctx context.Context, call llms.ToolCall) string {
	ctx, span := tracer.Start(ctx, "call tool "+call.Name)
	defer span.End()

	for _, tool := range runtime.tools {
		if tool.Function.Name != call.Name {
			continue
		}

		runtime.emit(events.NewToolCallStarted(call.ID, call.Name, call.Arguments))
		response, err := tool.Execute(call.Arguments)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			runtime.emit(events.NewToolCallFailed(call.ID, call.Name, err.Error()))
			return fmt.Sprintf("The %s action failed: %v. Apologize and continue without it.", call.Name, err)
		}
		runtime.emit(events.NewToolCallCompleted(call.ID, call.Name, response))
		return response
	}

	if runtime.dispatchUnknown != nil {
		return runtime.dispatchUnknown(ctx, call)
	}
	return fmt.Sprintf("Unsupported function %q.", call.Name)
}

func (runtime *llm) emit(event events.Event) {
	if runtime.emitEvent != nil {
		runtime.emitEvent(event)
	}
}
