package events

const (
	// KindUserSpeechStarted identifies start of caller speech activity.
	KindUserSpeechStarted Kind = "user_input.speech_started"
	// KindUserSpeechEnded identifies end of caller speech activity.
	KindUserSpeechEnded Kind = "user_input.speech_ended"
	// KindUserTranscriptInterim identifies a mutable interim transcript snapshot.
	KindUserTranscriptInterim Kind = "user_input.transcript_interim"
	// KindUserTranscriptFinal identifies the terminal transcript for an utterance.
	KindUserTranscriptFinal Kind = "user_input.transcript_final"
)

// UserSpeechStarted marks detected caller voice activity. While agent
// playback is active this is the barge-in signal.
type UserSpeechStarted struct {
	base
}

// NewUserSpeechStarted creates a speech started event.
func NewUserSpeechStarted() UserSpeechStarted {
	return UserSpeechStarted{base: newBase(KindUserSpeechStarted)}
}

// UserSpeechEnded marks the end of caller voice activity.
type UserSpeechEnded struct {
	base
}

// NewUserSpeechEnded creates a speech ended event.
func NewUserSpeechEnded() UserSpeechEnded {
	return UserSpeechEnded{base: newBase(KindUserSpeechEnded)}
}

// UserTranscriptInterim carries a point-in-time interim transcript that may
// still change.
type UserTranscriptInterim struct {
	base
	Transcript string
}

// NewUserTranscriptInterim creates an interim transcript event.
func NewUserTranscriptInterim(transcript string) UserTranscriptInterim {
	return UserTranscriptInterim{base: newBase(KindUserTranscriptInterim), Transcript: transcript}
}

// UserTranscriptFinal carries the finalized transcript of one caller utterance.
type UserTranscriptFinal struct {
	base
	Transcript string
	Confidence float64
}

// NewUserTranscriptFinal creates a final transcript event.
func NewUserTranscriptFinal(transcript string, confidence float64) UserTranscriptFinal {
	return UserTranscriptFinal{base: newBase(KindUserTranscriptFinal), Transcript: transcript, Confidence: confidence}
}
