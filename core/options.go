package orchestration

import (
	"context"
	"time"

	"github.com/outdial/outdial-core/core/events"
	"github.com/outdial/outdial-core/core/llms"
	"github.com/outdial/outdial-core/core/scheduling"
	"github.com/outdial/outdial-core/core/speechtotext"
	"github.com/outdial/outdial-core/core/texttospeech"
)

// Timeouts bound every suspension point of a session. Zero values fall back
// to the defaults, these are tuning parameters and should come from
// configuration.
type Timeouts struct {
	// Answer is how long to wait for the called party to pick up.
	Answer time.Duration
	// VoicemailClassification is the budget for deciding human vs voicemail
	// after pickup. Expiry resolves to the human branch.
	VoicemailClassification time.Duration
	// Idle ends the call when neither party has produced speech for this
	// long.
	Idle time.Duration
	// Transfer bounds dialing and bridging the operator leg.
	Transfer time.Duration
	// Drain bounds flushing in-flight synthesis while ending.
	Drain time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Answer:                  30 * time.Second,
		VoicemailClassification: 5 * time.Second,
		Idle:                    30 * time.Second,
		Transfer:                30 * time.Second,
		Drain:                   5 * time.Second,
	}
}

// withDefaults fills zero fields so partially specified configuration stays
// usable.
func (t Timeouts) withDefaults() Timeouts {
	defaults := DefaultTimeouts()
	if t.Answer <= 0 {
		t.Answer = defaults.Answer
	}
	if t.VoicemailClassification <= 0 {
		t.VoicemailClassification = defaults.VoicemailClassification
	}
	if t.Idle <= 0 {
		t.Idle = defaults.Idle
	}
	if t.Transfer <= 0 {
		t.Transfer = defaults.Transfer
	}
	if t.Drain <= 0 {
		t.Drain = defaults.Drain
	}
	return t
}

type OrchestratorOption func(*Orchestrator)

// LLMWithStream is the conversation engine contract for pipelined mode.
type LLMWithStream interface {
	PromptWithStream(ctx context.Context, prompt *string, opts ...llms.PromptOption) llms.Stream
}

func WithStreamingLLM(client LLMWithStream) OrchestratorOption {
	return func(o *Orchestrator) { o.llm.set(client) }
}

// RealtimeLLM is the speech-to-speech contract for realtime mode. When set,
// it replaces the STT, streaming LLM and TTS clients.
type RealtimeLLM interface {
	Connect(ctx context.Context, callbacks llms.RealtimeCallbacks) (llms.RealtimeSession, error)
}

func WithRealtimeLLM(client RealtimeLLM) OrchestratorOption {
	return func(o *Orchestrator) { o.realtimeLLM = client }
}

type SpeechToText interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
}

func WithSpeechToTextClient(client SpeechToText) OrchestratorOption {
	return func(o *Orchestrator) { o.speechToText.set(client) }
}

type TextToSpeech interface {
	NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error)
}

func WithTextToSpeechClient(client TextToSpeech) OrchestratorOption {
	return func(o *Orchestrator) { o.textToSpeech.set(client) }
}

// Scheduler answers availability lookups and books appointments. It matches
// [scheduling.Client].
type Scheduler interface {
	LookupAvailability(ctx context.Context, dateHint string) ([]scheduling.Slot, error)
	ConfirmAppointment(ctx context.Context, phoneNumber string, slot scheduling.Slot) (*scheduling.Confirmation, error)
}

func WithScheduler(client Scheduler) OrchestratorOption {
	return func(o *Orchestrator) { o.scheduler = client }
}

// GreetingClassifier resolves greetings the lexical heuristic could not.
type GreetingClassifier interface {
	ClassifyGreeting(ctx context.Context, greeting string) (VoicemailVerdict, error)
}

func WithGreetingClassifier(classifier GreetingClassifier) OrchestratorOption {
	return func(o *Orchestrator) { o.voicemail.classifier = classifier }
}

func WithTimeouts(timeouts Timeouts) OrchestratorOption {
	return func(o *Orchestrator) { o.timeouts = timeouts.withDefaults() }
}

// WithInstructions sets the system prompt driving the conversation engine.
func WithInstructions(instructions string) OrchestratorOption {
	return func(o *Orchestrator) { o.instructions = instructions }
}

// WithGreeting sets the line the agent speaks as soon as the human branch
// starts.
func WithGreeting(greeting string) OrchestratorOption {
	return func(o *Orchestrator) { o.greeting = greeting }
}

// WithVoicemailMessage sets the message left when an answering machine picks
// up.
func WithVoicemailMessage(message string) OrchestratorOption {
	return func(o *Orchestrator) { o.voicemailMessage = message }
}

func WithBridgePolicy(policy BridgePolicy) OrchestratorOption {
	return func(o *Orchestrator) { o.bridgePolicy = policy }
}

// WithTools appends extra tools to the built-in call control set.
func WithTools(tools ...llms.Tool) OrchestratorOption {
	return func(o *Orchestrator) { o.extraTools = append(o.extraTools, tools...) }
}

// WithEventConsumer registers a telemetry consumer for session lifecycle,
// transcript and tool events. Delivery is asynchronous and lossy under
// backpressure.
func WithEventConsumer(consume func(events.Event)) OrchestratorOption {
	return func(o *Orchestrator) { o.eventConsumer = consume }
}
