package orchestration

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/outdial/outdial-core/core/events"
	"github.com/outdial/outdial-core/core/llms"
	"github.com/outdial/outdial-core/core/media"
	"github.com/outdial/outdial-core/internal/utils"
)

// functionDetectedAnsweringMachine lets the realtime model report an
// answering machine itself; realtime mode has no transcription stream of its
// own to feed the lexical detector.
const functionDetectedAnsweringMachine = "detected_answering_machine"

// realtimeConversation runs the speech-to-speech mode: audio flows directly
// between the leg and the model, the orchestrator only extracts transcripts
// and function calls.
type realtimeConversation struct {
	o       *Orchestrator
	leg     media.Leg
	ctx     context.Context
	session llms.RealtimeSession

	tools []llms.Tool

	fatal        chan error
	idle         *time.Timer
	lastActivity atomic.Int64

	voicemailDetected chan struct{}
}

func (o *Orchestrator) runRealtime(ctx context.Context, leg media.Leg, answered media.SignalEvent) error {
	r := &realtimeConversation{
		o:                 o,
		leg:               leg,
		ctx:               ctx,
		fatal:             make(chan error, 1),
		voicemailDetected: make(chan struct{}, 1),
	}
	r.tools = r.conversationTools(ctx)
	r.idle = time.NewTimer(o.timeouts.Idle)
	defer r.idle.Stop()
	r.touchIdle()

	// Signaling hints are the only pre-conversation evidence available in
	// realtime mode; greeting analysis is delegated to the model.
	verdict := classifyHeaders(answered.Headers)
	next, err := o.branch(verdict)
	if err != nil {
		return err
	}

	session, err := r.connect(ctx)
	if err != nil {
		return o.fault(EndReasonPipelineError, err)
	}
	r.session = session
	defer func() { _ = session.Close() }()

	go r.pumpInboundAudio()
	go r.watchSignals(ctx)

	if next == StateVoicemail {
		return r.leaveVoicemailMessage(ctx)
	}

	if err := session.Say(fmt.Sprintf("Greet the callee: %s", o.greeting)); err != nil {
		return o.fault(EndReasonPipelineError, fmt.Errorf("failed to request greeting: %w", err))
	}

	for {
		select {
		case <-ctx.Done():
			return o.finish(ctx, EndReasonCompleted, nil)
		case reason := <-o.endRequests:
			return o.finish(ctx, reason, nil)
		case <-r.voicemailDetected:
			return r.leaveVoicemailMessage(ctx)
		case err := <-r.fatal:
			return o.fault(EndReasonPipelineError, err)
		case <-r.idle.C:
			// Callbacks only record activity, so the expiry may be stale.
			if remaining := r.idleRemaining(); remaining > 0 {
				r.idle.Reset(remaining)
				continue
			}
			return o.finish(ctx, EndReasonIdleTimeout, nil)
		}
	}
}

// conversationTools is the full tool set offered to the model: call control,
// caller-supplied extras, and the answering-machine report.
func (r *realtimeConversation) conversationTools(ctx context.Context) []llms.Tool {
	tools := append(callControlTools(ctx, r.o.dispatcher), r.o.extraTools...)
	return append(tools, llms.NewTool(functionDetectedAnsweringMachine,
		"Call this when you realize you are talking to voicemail or an answering machine.",
		func(struct{}) (string, error) {
			select {
			case r.voicemailDetected <- struct{}{}:
			default:
			}
			return "Understood. The prepared voicemail message will be left.", nil
		},
	))
}

// connect opens and configures the realtime session, retrying once.
func (r *realtimeConversation) connect(ctx context.Context) (llms.RealtimeSession, error) {
	session, err := r.tryConnect(ctx)
	if err == nil {
		return session, nil
	}
	time.Sleep(providerRetryBackoff)
	if session, err = r.tryConnect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect realtime session: %w", err)
	}
	return session, nil
}

func (r *realtimeConversation) tryConnect(ctx context.Context) (llms.RealtimeSession, error) {
	session, err := r.o.realtimeLLM.Connect(ctx, llms.RealtimeCallbacks{
		OnAudio:               r.onAudio,
		OnUserTranscript:      r.onUserTranscript,
		OnAssistantTranscript: r.onAssistantTranscript,
		OnSpeechStarted:       r.onSpeechStarted,
		OnSpeechStopped:       func() { r.o.emitEvent(events.NewUserSpeechEnded()) },
		OnToolCall:            r.onToolCall,
		OnError: func(err error) {
			select {
			case r.fatal <- fmt.Errorf("realtime session failed: %w", err):
			default:
			}
		},
	})
	if err != nil {
		return nil, err
	}

	if err := session.Configure(r.o.instructions, r.tools, r.leg.Encoding()); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to configure realtime session: %w", err)
	}
	return session, nil
}

func (r *realtimeConversation) pumpInboundAudio() {
	for frame := range r.leg.Audio() {
		if err := r.session.SendAudio(frame); err != nil {
			select {
			case r.fatal <- fmt.Errorf("failed to feed realtime session: %w", err):
			default:
			}
			return
		}
	}
}

func (r *realtimeConversation) watchSignals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case signal, ok := <-r.leg.Signals():
			if !ok {
				return
			}
			switch signal.Kind {
			case media.SignalEnded:
				r.o.requestEnd(EndReasonRemoteHangup)
				return
			case media.SignalFailed:
				select {
				case r.fatal <- fmt.Errorf("media leg failed: %s", signal.Reason):
				default:
				}
				return
			}
		}
	}
}

func (r *realtimeConversation) onAudio(frame []byte) {
	r.o.emitEvent(events.NewAssistantSpeechFrame(frame))
	_ = r.leg.SendAudio(frame)
}

func (r *realtimeConversation) onUserTranscript(transcript string) {
	r.touchIdle()
	r.o.emitEvent(events.NewUserTranscriptFinal(transcript, 0))
	offset := r.o.session.sinceAnswered()
	r.o.session.appendTurn(ConversationTurn{
		Speaker:     SpeakerCaller,
		Text:        transcript,
		StartOffset: offset,
		EndOffset:   offset,
		Confidence:  utils.Ptr(0.0),
	})
}

func (r *realtimeConversation) onAssistantTranscript(transcript string) {
	r.touchIdle()
	r.o.emitEvent(events.NewAssistantResponseFinal(transcript))
	offset := r.o.session.sinceAnswered()
	r.o.session.appendTurn(ConversationTurn{
		Speaker:     SpeakerAgent,
		Text:        transcript,
		StartOffset: offset,
		EndOffset:   offset,
	})
}

// onSpeechStarted is the realtime barge-in path: the model's VAD heard the
// caller, so in-flight synthesis is cancelled model-side.
func (r *realtimeConversation) onSpeechStarted() {
	r.touchIdle()
	r.o.emitEvent(events.NewUserSpeechStarted())
	_ = r.session.CancelResponse()
}

// onToolCall answers function calls in emission order on the session socket.
func (r *realtimeConversation) onToolCall(call llms.ToolCall) {
	r.touchIdle()
	result := r.resolveToolCall(call)
	if err := r.session.SendToolResult(call.ID, result); err != nil {
		select {
		case r.fatal <- fmt.Errorf("failed to send tool result: %w", err):
		default:
		}
	}
}

// resolveToolCall executes against the configured tool set; names outside it
// fall through to the dispatcher, which answers unknown functions gracefully.
func (r *realtimeConversation) resolveToolCall(call llms.ToolCall) string {
	for _, tool := range r.tools {
		if tool.Function.Name != call.Name {
			continue
		}
		r.o.emitEvent(events.NewToolCallStarted(call.ID, call.Name, call.Arguments))
		result, err := tool.Execute(call.Arguments)
		if err != nil {
			r.o.emitEvent(events.NewToolCallFailed(call.ID, call.Name, err.Error()))
			return fmt.Sprintf("The %s action failed: %v. Apologize and continue without it.", call.Name, err)
		}
		r.o.emitEvent(events.NewToolCallCompleted(call.ID, call.Name, result))
		return result
	}
	return r.o.dispatcher.dispatch(r.ctx, call)
}

// touchIdle records activity; the timer itself is owned by the select loop.
func (r *realtimeConversation) touchIdle() {
	r.lastActivity.Store(time.Now().UnixNano())
}

func (r *realtimeConversation) idleRemaining() time.Duration {
	last := time.Unix(0, r.lastActivity.Load())
	return r.o.timeouts.Idle - time.Since(last)
}

// leaveVoicemailMessage asks the model to speak the prepared message, allows
// it time to play out, then ends the session.
func (r *realtimeConversation) leaveVoicemailMessage(ctx context.Context) error {
	if err := r.session.Say(fmt.Sprintf("Leave this voicemail message, read it verbatim: %s", r.o.voicemailMessage)); err == nil {
		select {
		case <-time.After(r.o.timeouts.Drain):
		case <-ctx.Done():
		}
	}
	return r.o.finish(ctx, EndReasonVoicemailLeftMessage, nil)
}
