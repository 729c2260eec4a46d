package orchestration

import (
	"context"
	"fmt"

	"github.com/outdial/outdial-core/core/audio"
	"github.com/outdial/outdial-core/core/speechtotext"
)

// speechToText normalizes optional client wiring: every method is safe to
// call with no client configured.
type speechToText struct {
	client SpeechToText
}

func (s *speechToText) set(client SpeechToText) {
	if s != nil {
		s.client = client
	}
}

func (s *speechToText) isConfigured() bool {
	return s != nil && s.client != nil
}

type speechToTextCallbacks struct {
	onSpeechStarted        func()
	onSpeechEnded          func()
	onInterimTranscription func(transcript string)
	onTranscription        func(transcript string, confidence float64)
	onError                func(err error)
}

func (s *speechToText) start(ctx context.Context, callbacks speechToTextCallbacks, encodingInfo audio.EncodingInfo) error {
	if !s.isConfigured() {
		return nil
	}

	sttOptions := []speechtotext.TranscriptionOption{
		speechtotext.WithEncodingInfo(encodingInfo),
	}
	if callbacks.onSpeechStarted != nil {
		sttOptions = append(sttOptions, speechtotext.WithSpeechStartedCallback(callbacks.onSpeechStarted))
	}
	if callbacks.onSpeechEnded != nil {
		sttOptions = append(sttOptions, speechtotext.WithSpeechEndedCallback(callbacks.onSpeechEnded))
	}
	if callbacks.onInterimTranscription != nil {
		sttOptions = append(sttOptions, speechtotext.WithInterimTranscriptionCallback(callbacks.onInterimTranscription))
	}
	if callbacks.onTranscription != nil {
		sttOptions = append(sttOptions, speechtotext.WithTranscriptionCallback(callbacks.onTranscription))
	}
	if callbacks.onError != nil {
		sttOptions = append(sttOptions, speechtotext.WithErrorCallback(callbacks.onError))
	}

	if err := s.client.Transcribe(ctx, sttOptions...); err != nil {
		return fmt.Errorf("failed to start transcribing: %w", err)
	}

	return nil
}

func (s *speechToText) SendAudio(audio []byte) error {
	if !s.isConfigured() {
		return nil
	}

	return s.client.SendAudio(audio)
}

func (s *speechToText) Close(ctx context.Context) error {
	if !s.isConfigured() {
		return nil
	}

	switch c := s.client.(type) {
	case interface{ Close(context.Context) error }:
		if err := c.Close(ctx); err != nil {
			return fmt.Errorf("failed to close speech-to-text client: %w", err)
		}
	case interface{ Close(context.Context) }:
		c.Close(ctx)
	case interface{ Close() error }:
		if err := c.Close(); err != nil {
			return fmt.Errorf("failed to close speech-to-text client: %w", err)
		}
	case interface{ Close() }:
		c.Close()
	}

	return nil
}
