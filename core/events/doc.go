// Package events defines the typed call session event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - call.*: session lifecycle (dialing, answer, branch decision, teardown)
//   - transfer.*: transfer attempt lifecycle on the operator leg
//   - user_input.*: caller speech activity and transcription
//   - assistant_response.*: generated response text stream
//   - assistant_speech.*: synthesized speech and playback boundaries
//   - tool_call.*: structured actions requested by the conversation engine
//
// Events are emitted in session order. The telemetry sink consumes them
// asynchronously; emitters never block on a slow consumer.
package events
