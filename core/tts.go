package orchestration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/outdial/outdial-core/core/audio"
	"github.com/outdial/outdial-core/core/texttospeech"
)

// textToSpeech normalizes optional client wiring. One speech handle is opened
// per assistant utterance so barge-in can cancel synthesis without tearing
// down shared state.
type textToSpeech struct {
	client TextToSpeech
}

func (t *textToSpeech) set(client TextToSpeech) {
	if t != nil {
		t.client = client
	}
}

func (t *textToSpeech) isConfigured() bool {
	return t != nil && t.client != nil
}

// speechHandle tracks one utterance's synthesis from first text chunk to
// end-of-playback.
type speechHandle struct {
	generator texttospeech.SpeechGenerator

	done      chan struct{}
	doneOnce  sync.Once
	cancelled atomic.Bool
}

func (h *speechHandle) markDone() {
	h.doneOnce.Do(func() { close(h.done) })
}

// startUtterance opens a generator for one assistant response. onAudio
// receives synthesized frames, wire them straight to the call leg.
func (t *textToSpeech) startUtterance(ctx context.Context, encodingInfo audio.EncodingInfo, onAudio func([]byte)) (*speechHandle, error) {
	if !t.isConfigured() {
		return nil, fmt.Errorf("no text-to-speech client configured")
	}

	handle := &speechHandle{done: make(chan struct{})}

	generator, err := t.client.NewSpeechGenerator(ctx,
		texttospeech.WithSpeechAudioCallback(onAudio),
		texttospeech.WithSpeechEndedCallback(func(texttospeech.SpeechEndedReport) {
			handle.markDone()
		}),
		texttospeech.WithErrorCallback(func(error) {
			handle.cancelled.Store(true)
			handle.markDone()
		}),
		texttospeech.WithEncodingInfo(encodingInfo),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech generator: %w", err)
	}
	handle.generator = generator

	return handle, nil
}

func (h *speechHandle) SendText(text string) error {
	if h == nil {
		return nil
	}
	return h.generator.SendText(text)
}

// Finish signals that no more text is coming for this utterance.
func (h *speechHandle) Finish() error {
	if h == nil {
		return nil
	}
	return h.generator.EndOfText()
}

// Cancel stops synthesis immediately. Audio already handed to the leg is not
// retracted.
func (h *speechHandle) Cancel() {
	if h == nil || h.cancelled.Swap(true) {
		return
	}
	_ = h.generator.Cancel()
	h.markDone()
}

func (h *speechHandle) Cancelled() bool {
	return h != nil && h.cancelled.Load()
}

// Await blocks until all speech was generated, the handle was cancelled, the
// timeout elapsed or the context ended.
func (h *speechHandle) Await(ctx context.Context, timeout time.Duration) error {
	if h == nil {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("timed out waiting for speech generation")
	case <-ctx.Done():
		return ctx.Err()
	}
}
