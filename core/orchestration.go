package orchestration

import (
	"context"
	"fmt"

	"github.com/outdial/outdial-core/core/events"
	"github.com/outdial/outdial-core/core/llms"
	"github.com/outdial/outdial-core/core/media"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Orchestrator owns one call session's lifecycle: it sequences dialing,
// voicemail detection, the speech pipeline, function-triggered side effects,
// transfer and termination. Create one per session, call Run exactly once.
type Orchestrator struct {
	session *CallSession
	adapter media.Adapter

	llm          llm
	speechToText speechToText
	textToSpeech textToSpeech
	realtimeLLM  RealtimeLLM
	scheduler    Scheduler
	voicemail    voicemailDetector

	dispatcher   *dispatcher
	transfers    *transferCoordinator
	bridgePolicy BridgePolicy

	timeouts         Timeouts
	instructions     string
	greeting         string
	voicemailMessage string
	extraTools       []llms.Tool

	eventConsumer func(events.Event)
	sink          *telemetrySink
	emitEvent     eventEmitter

	leg media.Leg

	// endRequests carries the first graceful-teardown request; later requests
	// are ignored because the first reason wins.
	endRequests chan EndReason
}

// NewOrchestrator wires a session to its collaborators. The media adapter is
// mandatory; everything else degrades gracefully when absent.
func NewOrchestrator(session *CallSession, adapter media.Adapter, opts ...OrchestratorOption) (*Orchestrator, error) {
	if session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if adapter == nil {
		return nil, fmt.Errorf("media adapter is required")
	}

	o := &Orchestrator{
		session:      session,
		adapter:      adapter,
		timeouts:     DefaultTimeouts(),
		bridgePolicy: BridgePolicyHandOff,
		greeting:     "Hello! This is the scheduling assistant calling.",
		voicemailMessage: "Hello, this is the scheduling assistant. Sorry we missed you," +
			" we will try to reach you again later. Goodbye.",
		instructions: "You are a polite scheduling assistant on an outbound phone call." +
			" Keep responses short and conversational.",
		emitEvent:   noopEventEmitter,
		endRequests: make(chan EndReason, 1),
	}

	for _, opt := range opts {
		opt(o)
	}
	o.timeouts = o.timeouts.withDefaults()

	if o.eventConsumer != nil {
		o.sink = newTelemetrySink(o.eventConsumer)
		o.emitEvent = o.sink.Emit
	}

	o.voicemail.budget = o.timeouts.VoicemailClassification
	o.transfers = newTransferCoordinator(adapter, o.timeouts.Transfer, o.emitEvent)

	o.dispatcher = newDispatcher(session, o.emitEvent)
	o.dispatcher.scheduler = o.scheduler
	o.dispatcher.transfers = o.transfers
	o.dispatcher.bridgePolicy = o.bridgePolicy
	o.dispatcher.originalLeg = func() media.Leg { return o.leg }
	o.dispatcher.requestEnd = o.requestEnd

	o.llm.emitEvent = o.emitEvent
	o.llm.dispatchUnknown = o.dispatcher.dispatch

	return o, nil
}

// Session exposes the session for snapshotting; mutation stays internal.
func (o *Orchestrator) Session() *CallSession { return o.session }

// requestEnd asks for graceful teardown. The first reason wins; a session
// already past Active ignores the request.
func (o *Orchestrator) requestEnd(reason EndReason) {
	select {
	case o.endRequests <- reason:
	default:
	}
}

// EndCall requests graceful termination from outside the conversation, e.g.
// an operator console.
func (o *Orchestrator) EndCall() { o.requestEnd(EndReasonCompleted) }

// Run drives the session from dialing to a terminal state. It blocks until
// the session is Ended or Failed and returns the error that caused a
// failure, nil otherwise. Call it at most once.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "call session")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", o.session.ID))

	err := o.run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if o.sink != nil {
		o.sink.Close()
	}
	return err
}

func (o *Orchestrator) run(ctx context.Context) error {
	leg, err := o.dial(ctx)
	if err != nil {
		return err
	}
	o.leg = leg
	defer func() { _ = leg.Close(context.WithoutCancel(ctx)) }()

	answered, err := o.awaitAnswer(ctx, leg)
	if err != nil {
		return err
	}
	o.emitEvent(events.NewCallAnswered(o.session.ID))

	if o.realtimeLLM != nil {
		return o.runRealtime(ctx, leg, answered)
	}
	return o.runPipelined(ctx, leg, answered)
}

func (o *Orchestrator) dial(ctx context.Context) (media.Leg, error) {
	if err := o.session.transitionTo(StateDialing); err != nil {
		return nil, o.fault(EndReasonInternalFault, err)
	}
	o.emitEvent(events.NewCallDialing(o.session.ID, o.session.PhoneNumber))
	logger.InfoContext(ctx, "dialing", "session_id", o.session.ID, "number", o.session.PhoneNumber)

	leg, err := o.adapter.Dial(ctx, o.session.PhoneNumber)
	if err != nil {
		return nil, o.fault(EndReasonDialError, fmt.Errorf("failed to originate leg: %w", err))
	}
	return leg, nil
}

// awaitAnswer consumes signaling until the callee picks up. It returns the
// answer signal so its headers can feed voicemail detection.
func (o *Orchestrator) awaitAnswer(ctx context.Context, leg media.Leg) (media.SignalEvent, error) {
	answerCtx, cancel := context.WithTimeout(ctx, o.timeouts.Answer)
	defer cancel()

	for {
		select {
		case <-answerCtx.Done():
			return media.SignalEvent{}, o.fault(EndReasonNoAnswer, fmt.Errorf("no answer within %s", o.timeouts.Answer))

		case signal, ok := <-leg.Signals():
			if !ok {
				return media.SignalEvent{}, o.fault(EndReasonDialError, fmt.Errorf("signaling closed before answer"))
			}
			switch signal.Kind {
			case media.SignalRinging:
				if err := o.session.transitionTo(StateRinging); err != nil {
					return media.SignalEvent{}, o.fault(EndReasonInternalFault, err)
				}
				o.emitEvent(events.NewCallRinging(o.session.ID))

			case media.SignalAnswered:
				if err := o.session.transitionTo(StateAnswered); err != nil {
					return media.SignalEvent{}, o.fault(EndReasonInternalFault, err)
				}
				return signal, nil

			case media.SignalEnded:
				return media.SignalEvent{}, o.fault(EndReasonNoAnswer, fmt.Errorf("callee hung up before answering: %s", signal.Reason))

			case media.SignalFailed:
				return media.SignalEvent{}, o.fault(EndReasonDialError, fmt.Errorf("leg failed: %s", signal.Reason))
			}
		}
	}
}

// branch decides voicemail vs human and moves the session accordingly.
func (o *Orchestrator) branch(verdict VoicemailVerdict) (State, error) {
	// Undetermined resolves to human: availability over precision.
	next := StateActive
	if verdict == VerdictVoicemail {
		next = StateVoicemail
	}

	if err := o.session.transitionTo(next); err != nil {
		return next, o.fault(EndReasonInternalFault, err)
	}
	o.emitEvent(events.NewCallBranchDecided(o.session.ID, string(verdict)))
	return next, nil
}

// finish performs the graceful Ending -> Ended path. drain flushes in-flight
// synthesis and may be nil.
func (o *Orchestrator) finish(ctx context.Context, reason EndReason, drain func(context.Context)) error {
	if err := o.session.transitionTo(StateEnding); err != nil {
		return o.fault(EndReasonInternalFault, err)
	}
	o.emitEvent(events.NewCallEnding(o.session.ID, string(reason)))

	if drain != nil {
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeouts.Drain)
		drain(drainCtx)
		cancel()
	}

	if err := o.session.end(reason); err != nil {
		return o.fault(EndReasonInternalFault, err)
	}
	o.emitEvent(events.NewCallEnded(o.session.ID, string(reason)))
	logger.InfoContext(ctx, "call ended", "session_id", o.session.ID, "reason", string(reason))
	return nil
}

// fault drives the session to Failed and records the cause. The called party
// never observes the fault itself.
func (o *Orchestrator) fault(reason EndReason, err error) error {
	if o.session.fail(reason) {
		o.emitEvent(events.NewCallFailed(o.session.ID, string(reason), err.Error()))
		logger.Error("call failed", "session_id", o.session.ID, "reason", string(reason), "error", err)
	}
	return err
}
