// Package dispatch exposes the call orchestration library as an HTTP
// service: POST /call originates a session, GET /call/{id} reports on it.
package dispatch

import (
	"fmt"
	"os"
	"time"

	orchestration "github.com/outdial/outdial-core/core"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	// ModePipelined runs the STT -> LLM -> TTS pipeline.
	ModePipelined Mode = "pipelined"
	// ModeRealtime runs a single speech-to-speech model session.
	ModeRealtime Mode = "realtime"
)

// Duration is a time.Duration that unmarshals from YAML scalars like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the dispatch service configuration, loaded from YAML. API keys
// left empty fall back to the provider clients' environment variables.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	Mode       Mode   `yaml:"mode"`

	Gateway struct {
		URL       string `yaml:"url"`
		AuthToken string `yaml:"auth_token"`
	} `yaml:"gateway"`

	Scheduling struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"scheduling"`

	Providers struct {
		DeepgramAPIKey string `yaml:"deepgram_api_key"`
		GroqAPIKey     string `yaml:"groq_api_key"`
		GroqModel      string `yaml:"groq_model"`
		OpenAIAPIKey   string `yaml:"openai_api_key"`
		RealtimeModel  string `yaml:"realtime_model"`
		Voice          string `yaml:"voice"`
	} `yaml:"providers"`

	// BridgePolicy is "hand_off" or "stay_on_call".
	BridgePolicy string `yaml:"bridge_policy"`

	Timeouts struct {
		Answer                  Duration `yaml:"answer"`
		VoicemailClassification Duration `yaml:"voicemail_classification"`
		Idle                    Duration `yaml:"idle"`
		Transfer                Duration `yaml:"transfer"`
		Drain                   Duration `yaml:"drain"`
	} `yaml:"timeouts"`

	Prompts struct {
		Instructions     string `yaml:"instructions"`
		Greeting         string `yaml:"greeting"`
		VoicemailMessage string `yaml:"voicemail_message"`
	} `yaml:"prompts"`
}

const defaultListenAddr = ":8080"

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var config Config
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.Mode == "" {
		c.Mode = ModePipelined
	}
	if c.BridgePolicy == "" {
		c.BridgePolicy = string(orchestration.BridgePolicyHandOff)
	}
}

func (c *Config) validate() error {
	if c.Mode != ModePipelined && c.Mode != ModeRealtime {
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	switch orchestration.BridgePolicy(c.BridgePolicy) {
	case orchestration.BridgePolicyHandOff, orchestration.BridgePolicyStayOnCall:
	default:
		return fmt.Errorf("unknown bridge_policy %q", c.BridgePolicy)
	}
	return nil
}

// orchestratorTimeouts maps config overrides onto the library defaults.
func (c *Config) orchestratorTimeouts() orchestration.Timeouts {
	timeouts := orchestration.DefaultTimeouts()
	if c.Timeouts.Answer > 0 {
		timeouts.Answer = time.Duration(c.Timeouts.Answer)
	}
	if c.Timeouts.VoicemailClassification > 0 {
		timeouts.VoicemailClassification = time.Duration(c.Timeouts.VoicemailClassification)
	}
	if c.Timeouts.Idle > 0 {
		timeouts.Idle = time.Duration(c.Timeouts.Idle)
	}
	if c.Timeouts.Transfer > 0 {
		timeouts.Transfer = time.Duration(c.Timeouts.Transfer)
	}
	if c.Timeouts.Drain > 0 {
		timeouts.Drain = time.Duration(c.Timeouts.Drain)
	}
	return timeouts
}
