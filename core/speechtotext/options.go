package speechtotext

import "github.com/outdial/outdial-core/core/audio"

type TranscriptionOptions struct {
	InterimTranscriptionCallback func(transcript string)
	// TranscriptionCallback receives the finalized transcript of one caller
	// utterance together with the provider's confidence for it.
	TranscriptionCallback func(transcript string, confidence float64)

	SpeechStartedCallback func()
	SpeechEndedCallback   func()
	ErrorCallback         func(err error)

	// EndpointingMs is the trailing-silence threshold closing a caller turn.
	EndpointingMs int

	EncodingInfo audio.EncodingInfo
}

type TranscriptionOption func(*TranscriptionOptions)

func WithTranscriptionCallback(callback func(transcript string, confidence float64)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.TranscriptionCallback = callback
	}
}

func WithInterimTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.InterimTranscriptionCallback = callback
	}
}

func WithSpeechStartedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechStartedCallback = callback
	}
}

func WithSpeechEndedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechEndedCallback = callback
	}
}

func WithErrorCallback(callback func(err error)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.ErrorCallback = callback
	}
}

func WithEndpointingMs(endpointingMs int) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EndpointingMs = endpointingMs
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}
