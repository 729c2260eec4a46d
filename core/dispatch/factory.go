package dispatch

import (
	"fmt"

	orchestration "github.com/outdial/outdial-core/core"
	"github.com/outdial/outdial-core/core/llms/groq"
	"github.com/outdial/outdial-core/core/llms/openai"
	"github.com/outdial/outdial-core/core/media/roomgateway"
	"github.com/outdial/outdial-core/core/scheduling"
	sttdeepgram "github.com/outdial/outdial-core/core/speechtotext/deepgram"
	ttsdeepgram "github.com/outdial/outdial-core/core/texttospeech/deepgram"
)

// orchestratorFactory builds one orchestrator per accepted call request.
type orchestratorFactory func(session *orchestration.CallSession) (*orchestration.Orchestrator, error)

// newOrchestratorFactory wires provider clients from configuration. Stateless
// clients (adapter, LLM, TTS, scheduling) are shared across sessions; the
// transcription client holds per-stream state and is created per call.
func newOrchestratorFactory(config *Config) (orchestratorFactory, error) {
	var gatewayOpts []roomgateway.ClientOption
	if config.Gateway.AuthToken != "" {
		gatewayOpts = append(gatewayOpts, roomgateway.WithAuthToken(config.Gateway.AuthToken))
	}
	adapter := roomgateway.NewClient(config.Gateway.URL, gatewayOpts...)

	shared := []orchestration.OrchestratorOption{
		orchestration.WithTimeouts(config.orchestratorTimeouts()),
		orchestration.WithBridgePolicy(orchestration.BridgePolicy(config.BridgePolicy)),
	}

	if config.Scheduling.BaseURL != "" {
		var schedulingOpts []scheduling.ClientOption
		if config.Scheduling.APIKey != "" {
			schedulingOpts = append(schedulingOpts, scheduling.WithAPIKey(config.Scheduling.APIKey))
		}
		scheduler, err := scheduling.NewClient(config.Scheduling.BaseURL, schedulingOpts...)
		if err != nil {
			return nil, fmt.Errorf("building scheduling client: %w", err)
		}
		shared = append(shared, orchestration.WithScheduler(scheduler))
	}

	if config.Prompts.Instructions != "" {
		shared = append(shared, orchestration.WithInstructions(config.Prompts.Instructions))
	}
	if config.Prompts.Greeting != "" {
		shared = append(shared, orchestration.WithGreeting(config.Prompts.Greeting))
	}
	if config.Prompts.VoicemailMessage != "" {
		shared = append(shared, orchestration.WithVoicemailMessage(config.Prompts.VoicemailMessage))
	}

	perCall, err := modeOptions(config)
	if err != nil {
		return nil, err
	}

	return func(session *orchestration.CallSession) (*orchestration.Orchestrator, error) {
		opts := make([]orchestration.OrchestratorOption, 0, len(shared)+4)
		opts = append(opts, shared...)
		opts = append(opts, perCall()...)
		return orchestration.NewOrchestrator(session, adapter, opts...)
	}, nil
}

// modeOptions returns the per-session provider options for the configured
// conversation mode.
func modeOptions(config *Config) (func() []orchestration.OrchestratorOption, error) {
	switch config.Mode {
	case ModeRealtime:
		var realtimeOpts []openai.RealtimeClientOption
		if config.Providers.RealtimeModel != "" {
			realtimeOpts = append(realtimeOpts, openai.WithRealtimeModel(config.Providers.RealtimeModel))
		}
		realtime := openai.NewRealtimeClient(config.Providers.OpenAIAPIKey, realtimeOpts...)
		return func() []orchestration.OrchestratorOption {
			return []orchestration.OrchestratorOption{orchestration.WithRealtimeLLM(realtime)}
		}, nil

	case ModePipelined:
		var groqOpts []groq.ClientOption
		if config.Providers.GroqModel != "" {
			groqOpts = append(groqOpts, groq.WithModel(config.Providers.GroqModel))
		}
		llm := groq.NewClient(config.Providers.GroqAPIKey, groqOpts...)
		classifier := newGreetingClassifier(llm)

		var sttOpts []sttdeepgram.ClientOption
		if config.Providers.DeepgramAPIKey != "" {
			sttOpts = append(sttOpts, sttdeepgram.WithAPIKey(config.Providers.DeepgramAPIKey))
		}

		var ttsOpts []ttsdeepgram.TextToSpeechClientOption
		if config.Providers.DeepgramAPIKey != "" {
			ttsOpts = append(ttsOpts, ttsdeepgram.WithAPIKey(config.Providers.DeepgramAPIKey))
		}
		if config.Providers.Voice != "" {
			ttsOpts = append(ttsOpts, ttsdeepgram.WithVoice(ttsdeepgram.Voice(config.Providers.Voice)))
		}
		textToSpeech, err := ttsdeepgram.NewTextToSpeechClient(ttsOpts...)
		if err != nil {
			return nil, fmt.Errorf("building text to speech client: %w", err)
		}

		return func() []orchestration.OrchestratorOption {
			return []orchestration.OrchestratorOption{
				orchestration.WithStreamingLLM(llm),
				orchestration.WithSpeechToTextClient(sttdeepgram.NewTranscriptionClient(sttOpts...)),
				orchestration.WithTextToSpeechClient(textToSpeech),
				orchestration.WithGreetingClassifier(classifier),
			}
		}, nil

	default:
		return nil, fmt.Errorf("unknown mode %q", config.Mode)
	}
}
