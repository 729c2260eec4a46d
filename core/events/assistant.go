package events

const (
	// KindAssistantResponseSegment identifies a streamed response text segment.
	KindAssistantResponseSegment Kind = "assistant_response.segment"
	// KindAssistantResponseFinal identifies the end of a response text stream.
	KindAssistantResponseFinal Kind = "assistant_response.final"
	// KindAssistantSpeechFrame identifies a synthesized audio frame.
	KindAssistantSpeechFrame Kind = "assistant_speech.frame"
	// KindAssistantPlaybackEnded identifies completed playback of a response.
	KindAssistantPlaybackEnded Kind = "assistant_speech.playback_ended"
	// KindAssistantPlaybackCancelled identifies playback cut short by barge-in.
	KindAssistantPlaybackCancelled Kind = "assistant_speech.playback_cancelled"
)

// AssistantResponseSegment carries an append-only response text segment.
type AssistantResponseSegment struct {
	base
	Segment string
}

// NewAssistantResponseSegment creates a response segment event.
func NewAssistantResponseSegment(segment string) AssistantResponseSegment {
	return AssistantResponseSegment{base: newBase(KindAssistantResponseSegment), Segment: segment}
}

// AssistantResponseFinal marks the end of the response text stream with the
// assembled text.
type AssistantResponseFinal struct {
	base
	Response string
}

// NewAssistantResponseFinal creates a response final event.
func NewAssistantResponseFinal(response string) AssistantResponseFinal {
	return AssistantResponseFinal{base: newBase(KindAssistantResponseFinal), Response: response}
}

// AssistantSpeechFrame carries one synthesized audio frame on its way to the
// media channel.
type AssistantSpeechFrame struct {
	base
	Audio []byte
}

// NewAssistantSpeechFrame creates a speech frame event.
func NewAssistantSpeechFrame(audio []byte) AssistantSpeechFrame {
	return AssistantSpeechFrame{base: newBase(KindAssistantSpeechFrame), Audio: audio}
}

// AssistantPlaybackEnded marks playback completion for the current response.
type AssistantPlaybackEnded struct {
	base
	Transcript string
}

// NewAssistantPlaybackEnded creates a playback ended event.
func NewAssistantPlaybackEnded(transcript string) AssistantPlaybackEnded {
	return AssistantPlaybackEnded{base: newBase(KindAssistantPlaybackEnded), Transcript: transcript}
}

// AssistantPlaybackCancelled marks playback interrupted by caller speech.
// Audio already handed to the media channel is not retracted.
type AssistantPlaybackCancelled struct {
	base
	Transcript string
}

// NewAssistantPlaybackCancelled creates a playback cancelled event.
func NewAssistantPlaybackCancelled(transcript string) AssistantPlaybackCancelled {
	return AssistantPlaybackCancelled{base: newBase(KindAssistantPlaybackCancelled), Transcript: transcript}
}
