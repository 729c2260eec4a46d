package llms

import "github.com/outdial/outdial-core/core/audio"

// RealtimeCallbacks receive a realtime session's decoded event stream. Unset
// callbacks are ignored.
type RealtimeCallbacks struct {
	// OnAudio receives synthesized audio frames.
	OnAudio func(audio []byte)
	// OnAudioDone fires when the model finished speaking one response.
	OnAudioDone func()
	// OnUserTranscript receives the finalized transcript of caller speech.
	OnUserTranscript func(transcript string)
	// OnAssistantTranscript receives the finalized transcript of model speech.
	OnAssistantTranscript func(transcript string)
	// OnSpeechStarted fires when the model's VAD detects caller speech.
	OnSpeechStarted func()
	// OnSpeechStopped fires when the model's VAD detects end of caller speech.
	OnSpeechStopped func()
	// OnToolCall receives completed function call requests.
	OnToolCall func(call ToolCall)
	// OnError receives stream-level failures; the session is closed afterwards.
	OnError func(err error)
}

// RealtimeSession is one live speech-to-speech conversation.
type RealtimeSession interface {
	// Configure applies instructions, tools and audio format to the session.
	Configure(instructions string, tools []Tool, encoding audio.EncodingInfo) error
	// SendAudio appends one caller audio frame to the model's input buffer.
	SendAudio(frame []byte) error
	// SendToolResult reports a tool call result and asks for a spoken response.
	SendToolResult(callID, output string) error
	// CancelResponse interrupts in-flight synthesis.
	CancelResponse() error
	// Say requests a spoken response with explicit instructions, bypassing
	// turn detection.
	Say(instructions string) error
	Close() error
}
