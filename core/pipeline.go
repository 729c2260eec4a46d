package orchestration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/outdial/outdial-core/core/events"
	"github.com/outdial/outdial-core/core/llms"
	"github.com/outdial/outdial-core/core/media"
	"github.com/outdial/outdial-core/internal/utils"
)

// providerRetryBackoff is the pause before the single retry a failed
// provider call gets.
const providerRetryBackoff = 500 * time.Millisecond

type utterance struct {
	text        string
	confidence  float64
	startOffset time.Duration
	endOffset   time.Duration
}

// pipelinedConversation runs the STT -> LLM -> TTS mode: finalized caller
// utterances drive assistant turns, synthesized audio flows back to the leg.
type pipelinedConversation struct {
	o   *Orchestrator
	leg media.Leg

	conversation []llms.Turn

	// classifying routes transcripts to voicemail detection until the branch
	// decision is made.
	classifying atomic.Bool
	greeting    chan greetingUpdate
	utterances  chan utterance

	// bargedIn flags that the caller spoke over playback; it cancels the
	// in-flight generation and is cleared when the next response starts.
	bargedIn atomic.Bool

	speechMu     sync.Mutex
	activeSpeech *speechHandle

	speechStartedAt atomic.Int64

	fatal        chan error
	idle         *time.Timer
	lastActivity atomic.Int64
}

func (o *Orchestrator) runPipelined(ctx context.Context, leg media.Leg, answered media.SignalEvent) error {
	p := &pipelinedConversation{
		o:          o,
		leg:        leg,
		greeting:   make(chan greetingUpdate, 16),
		utterances: make(chan utterance, 4),
		fatal:      make(chan error, 1),
	}
	p.classifying.Store(true)
	p.idle = time.NewTimer(o.timeouts.Idle)
	defer p.idle.Stop()
	p.touchIdle()

	o.llm.setTools(append(callControlTools(ctx, o.dispatcher), o.extraTools...)...)

	if err := p.startTranscription(ctx); err != nil {
		return o.fault(EndReasonPipelineError, err)
	}
	// The stream must not outlive the session; late callbacks would land on
	// torn-down sinks.
	defer func() { _ = o.speechToText.Close(context.WithoutCancel(ctx)) }()

	go p.pumpInboundAudio()
	go p.watchSignals(ctx)

	verdict := o.voicemail.classify(ctx, answered.Headers, p.greeting)
	p.classifying.Store(false)

	next, err := o.branch(verdict)
	if err != nil {
		return err
	}

	if next == StateVoicemail {
		return p.leaveVoicemailMessage(ctx)
	}
	return p.converse(ctx)
}

// startTranscription opens the STT stream, retrying once with backoff.
func (p *pipelinedConversation) startTranscription(ctx context.Context) error {
	if !p.o.speechToText.isConfigured() {
		return nil
	}

	callbacks := speechToTextCallbacks{
		onSpeechStarted:        p.onSpeechStarted,
		onSpeechEnded:          p.onSpeechEnded,
		onInterimTranscription: p.onInterimTranscription,
		onTranscription:        p.onTranscription,
		onError: func(err error) {
			select {
			case p.fatal <- fmt.Errorf("transcription stream failed: %w", err):
			default:
			}
		},
	}

	err := p.o.speechToText.start(ctx, callbacks, p.leg.Encoding())
	if err == nil {
		return nil
	}
	time.Sleep(providerRetryBackoff)
	if err = p.o.speechToText.start(ctx, callbacks, p.leg.Encoding()); err != nil {
		return fmt.Errorf("failed to start transcription: %w", err)
	}
	return nil
}

func (p *pipelinedConversation) pumpInboundAudio() {
	for frame := range p.leg.Audio() {
		if err := p.o.speechToText.SendAudio(frame); err != nil {
			select {
			case p.fatal <- fmt.Errorf("failed to feed transcription: %w", err):
			default:
			}
			return
		}
	}
}

func (p *pipelinedConversation) watchSignals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case signal, ok := <-p.leg.Signals():
			if !ok {
				return
			}
			switch signal.Kind {
			case media.SignalEnded:
				p.o.requestEnd(EndReasonRemoteHangup)
				return
			case media.SignalFailed:
				select {
				case p.fatal <- fmt.Errorf("media leg failed: %s", signal.Reason):
				default:
				}
				return
			}
		}
	}
}

func (p *pipelinedConversation) onSpeechStarted() {
	p.touchIdle()
	p.speechStartedAt.Store(int64(p.o.session.sinceAnswered()))
	p.o.emitEvent(events.NewUserSpeechStarted())

	if p.classifying.Load() {
		return
	}

	// Barge-in: stop playback within this processing cycle and abandon the
	// in-flight generation. Audio already handed to the leg stays.
	p.bargedIn.Store(true)
	p.cancelActiveSpeech()
}

func (p *pipelinedConversation) onSpeechEnded() {
	p.touchIdle()
	p.o.emitEvent(events.NewUserSpeechEnded())

	if p.classifying.Load() {
		select {
		case p.greeting <- greetingUpdate{pause: true}:
		default:
		}
	}
}

func (p *pipelinedConversation) onInterimTranscription(transcript string) {
	p.touchIdle()
	p.o.emitEvent(events.NewUserTranscriptInterim(transcript))
}

func (p *pipelinedConversation) onTranscription(transcript string, confidence float64) {
	p.touchIdle()
	p.o.emitEvent(events.NewUserTranscriptFinal(transcript, confidence))

	if p.classifying.Load() {
		select {
		case p.greeting <- greetingUpdate{transcript: transcript}:
		default:
		}
		return
	}

	u := utterance{
		text:        transcript,
		confidence:  confidence,
		startOffset: time.Duration(p.speechStartedAt.Load()),
		endOffset:   p.o.session.sinceAnswered(),
	}
	select {
	case p.utterances <- u:
	default:
		// The turn queue is full; the caller is far ahead of the agent. Drop
		// the oldest pending utterance in favor of the newest.
		select {
		case <-p.utterances:
		default:
		}
		select {
		case p.utterances <- u:
		default:
		}
	}
}

// touchIdle records activity; the timer itself is owned by converse.
func (p *pipelinedConversation) touchIdle() {
	p.lastActivity.Store(time.Now().UnixNano())
}

func (p *pipelinedConversation) idleRemaining() time.Duration {
	last := time.Unix(0, p.lastActivity.Load())
	return p.o.timeouts.Idle - time.Since(last)
}

func (p *pipelinedConversation) setActiveSpeech(handle *speechHandle) {
	p.speechMu.Lock()
	p.activeSpeech = handle
	p.speechMu.Unlock()
}

func (p *pipelinedConversation) cancelActiveSpeech() {
	p.speechMu.Lock()
	handle := p.activeSpeech
	p.speechMu.Unlock()
	if handle != nil {
		handle.Cancel()
		p.o.emitEvent(events.NewAssistantPlaybackCancelled(""))
	}
}

// leaveVoicemailMessage speaks the prepared message and ends the session. No
// conversational turns happen on this branch.
func (p *pipelinedConversation) leaveVoicemailMessage(ctx context.Context) error {
	// A synthesis failure here means hanging up silently; the terminal
	// reason is the same either way.
	_ = p.speak(ctx, p.o.voicemailMessage)
	return p.o.finish(ctx, EndReasonVoicemailLeftMessage, nil)
}

// converse is the human-branch main loop.
func (p *pipelinedConversation) converse(ctx context.Context) error {
	if p.o.greeting != "" {
		if err := p.speak(ctx, p.o.greeting); err != nil {
			return p.o.fault(EndReasonPipelineError, err)
		}
		p.conversation = append(p.conversation, llms.Turn{Role: llms.TurnRoleAssistant, Content: p.o.greeting})
	}

	for {
		select {
		case <-ctx.Done():
			return p.o.finish(ctx, EndReasonCompleted, p.drain)

		case reason := <-p.o.endRequests:
			return p.o.finish(ctx, reason, p.drain)

		case err := <-p.fatal:
			return p.o.fault(EndReasonPipelineError, err)

		case <-p.idle.C:
			// Callbacks only record activity, so the expiry may be stale.
			if remaining := p.idleRemaining(); remaining > 0 {
				p.idle.Reset(remaining)
				continue
			}
			return p.o.finish(ctx, EndReasonIdleTimeout, p.drain)

		case u := <-p.utterances:
			if err := p.respond(ctx, u); err != nil {
				return p.o.fault(EndReasonPipelineError, err)
			}
			// A teardown requested mid-response is honored before the next
			// utterance.
			select {
			case reason := <-p.o.endRequests:
				return p.o.finish(ctx, reason, p.drain)
			default:
			}
		}
	}
}

// respond produces one assistant turn for a finalized caller utterance,
// retrying the provider chain once with backoff.
func (p *pipelinedConversation) respond(ctx context.Context, u utterance) error {
	p.o.session.appendTurn(ConversationTurn{
		Speaker:     SpeakerCaller,
		Text:        u.text,
		StartOffset: u.startOffset,
		EndOffset:   u.endOffset,
		Confidence:  utils.Ptr(u.confidence),
	})
	p.conversation = append(p.conversation, llms.Turn{Role: llms.TurnRoleUser, Content: u.text})
	p.bargedIn.Store(false)

	err := p.generateAndSpeak(ctx)
	if err == nil {
		return nil
	}

	time.Sleep(providerRetryBackoff)
	if err = p.generateAndSpeak(ctx); err != nil {
		return fmt.Errorf("assistant turn failed after retry: %w", err)
	}
	return nil
}

func (p *pipelinedConversation) generateAndSpeak(ctx context.Context) error {
	startOffset := p.o.session.sinceAnswered()

	speech, err := p.o.textToSpeech.startUtterance(ctx, p.leg.Encoding(), func(frame []byte) {
		p.o.emitEvent(events.NewAssistantSpeechFrame(frame))
		if err := p.leg.SendAudio(frame); err != nil {
			// The leg is going away; playback for this turn is over.
			p.cancelActiveSpeech()
		}
	})
	if err != nil {
		return err
	}
	p.setActiveSpeech(speech)
	defer p.setActiveSpeech(nil)

	turn, err := p.o.llm.generate(ctx, p.o.instructions, p.conversation, func(chunk string) {
		p.o.emitEvent(events.NewAssistantResponseSegment(chunk))
		_ = speech.SendText(chunk)
	}, p.bargedIn.Load)
	if err != nil {
		speech.Cancel()
		return err
	}

	if turn.Cancelled {
		speech.Cancel()
	} else {
		if err := speech.Finish(); err == nil {
			_ = speech.Await(ctx, p.o.timeouts.Idle)
		}
	}

	p.conversation = append(p.conversation, *turn)
	p.o.emitEvent(events.NewAssistantResponseFinal(turn.Content))
	if !speech.Cancelled() {
		p.o.emitEvent(events.NewAssistantPlaybackEnded(turn.Content))
	}
	if turn.Content != "" {
		p.o.session.appendTurn(ConversationTurn{
			Speaker:     SpeakerAgent,
			Text:        turn.Content,
			StartOffset: startOffset,
			EndOffset:   p.o.session.sinceAnswered(),
		})
	}
	return nil
}

// speak synthesizes a scripted line outside the model loop and waits for it
// to finish, recording it as an agent turn.
func (p *pipelinedConversation) speak(ctx context.Context, text string) error {
	startOffset := p.o.session.sinceAnswered()

	if !p.o.textToSpeech.isConfigured() {
		return fmt.Errorf("no text-to-speech client configured")
	}

	speech, err := p.o.textToSpeech.startUtterance(ctx, p.leg.Encoding(), func(frame []byte) {
		p.o.emitEvent(events.NewAssistantSpeechFrame(frame))
		_ = p.leg.SendAudio(frame)
	})
	if err != nil {
		return err
	}
	p.setActiveSpeech(speech)
	defer p.setActiveSpeech(nil)

	if err := speech.SendText(text); err != nil {
		return err
	}
	if err := speech.Finish(); err != nil {
		return err
	}
	if err := speech.Await(ctx, p.o.timeouts.Idle); err != nil {
		return err
	}

	p.o.emitEvent(events.NewAssistantPlaybackEnded(text))
	p.o.session.appendTurn(ConversationTurn{
		Speaker:     SpeakerAgent,
		Text:        text,
		StartOffset: startOffset,
		EndOffset:   p.o.session.sinceAnswered(),
	})
	return nil
}

// drain waits out any in-flight synthesis before the media channel closes.
func (p *pipelinedConversation) drain(ctx context.Context) {
	p.speechMu.Lock()
	handle := p.activeSpeech
	p.speechMu.Unlock()
	if handle == nil {
		return
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(p.o.timeouts.Drain)
	}
	_ = handle.Await(ctx, time.Until(deadline))
}
