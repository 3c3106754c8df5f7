// Package config holds VoxBridge's configuration surface (spec §6):
// the provider listen endpoint, the external bot URL, the audio
// codec/rate defaults, and the optional built-in AI pipeline. Loading
// is intentionally minimal — the CLI and its loader apparatus are an
// external collaborator per spec.md's Non-goals, but the data shape
// itself is carried as ambient stack.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Bot      BotConfig      `yaml:"bot"`
	Audio    AudioConfig    `yaml:"audio"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ProviderConfig selects which telephony wire protocol the listen
// endpoint speaks and where it listens.
type ProviderConfig struct {
	Type       string `yaml:"type"`
	ListenHost string `yaml:"listen_host"`
	ListenPort int    `yaml:"listen_port"`
	ListenPath string `yaml:"listen_path"`
}

// BotConfig describes the external voice-bot WebSocket the bridge
// dials when pipeline mode is disabled.
type BotConfig struct {
	URL        string `yaml:"url"`
	Codec      string `yaml:"codec"`
	SampleRate int    `yaml:"sample_rate"`
}

// AudioConfig carries the default input/output codec and sample rate
// used where a provider's handshake does not pin these itself.
type AudioConfig struct {
	InputCodec  string `yaml:"input_codec"`
	OutputCodec string `yaml:"output_codec"`
	SampleRate  int    `yaml:"sample_rate"`
}

// PipelineConfig enables and tunes the built-in STT->LLM->TTS AI
// pipeline (spec §4.7, §6).
type PipelineConfig struct {
	Enabled bool `yaml:"enabled"`

	STT ProviderRef `yaml:"stt"`
	LLM ProviderRef `yaml:"llm"`
	TTS ProviderRef `yaml:"tts"`

	SystemPrompt   string       `yaml:"system_prompt"`
	FirstMessage   string       `yaml:"first_message"`
	Tools          []ToolConfig `yaml:"tools"`
	EndCallPhrases []string     `yaml:"end_call_phrases"`

	LLMTemperature         float64          `yaml:"llm_temperature"`
	LLMMaxTokens           int              `yaml:"llm_max_tokens"`
	SilenceThresholdMs     int              `yaml:"silence_threshold_ms"`
	InterruptionEnabled    bool             `yaml:"interruption_enabled"`
	MaxCallDurationSeconds int              `yaml:"max_call_duration_seconds"`
	EscalationEnabled      bool             `yaml:"escalation_enabled"`
	EscalationConfig       EscalationConfig `yaml:"escalation_config"`
}

// ProviderRef names a pluggable STT/LLM/TTS provider implementation
// plus its opaque provider-specific configuration. VoxBridge's core
// does not ship vendor SDKs (spec.md's Non-goals); Config carries
// unstructured provider settings, the provider itself is wired by the
// embedding application per spec.md §1's "pluggable provider
// implementations behind an interface".
type ProviderRef struct {
	Provider string         `yaml:"provider"`
	Config   map[string]any `yaml:"config"`
}

// ToolConfig describes one LLM-callable tool.
type ToolConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Parameters  map[string]any `yaml:"parameters"`
}

// EscalationConfig tunes the pipeline's human-handoff detector.
type EscalationConfig struct {
	KeywordTriggers           []string `yaml:"keyword_triggers"`
	MaxTurnsBeforeEscalation  int      `yaml:"max_turns_before_escalation"`
	RepeatedQuestionThreshold int      `yaml:"repeated_question_threshold"`
	TransferNumber            string   `yaml:"transfer_number"`
	TransferMessage           string   `yaml:"transfer_message"`
}

// SilenceThreshold converts SilenceThresholdMs to a time.Duration,
// using the pipeline package's own default when unset.
func (p PipelineConfig) SilenceThreshold() time.Duration {
	if p.SilenceThresholdMs <= 0 {
		return 0
	}
	return time.Duration(p.SilenceThresholdMs) * time.Millisecond
}

// MaxCallDuration converts MaxCallDurationSeconds to a time.Duration.
func (p PipelineConfig) MaxCallDuration() time.Duration {
	if p.MaxCallDurationSeconds <= 0 {
		return 0
	}
	return time.Duration(p.MaxCallDurationSeconds) * time.Second
}

// Load reads and validates the YAML configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("voxbridge: config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("voxbridge: config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, rejecting unrecognised keys per
// spec §6 via yaml.v3's KnownFields strict-decoding mode.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("voxbridge: config: decode yaml: %w", err)
	}
	return cfg, Validate(cfg)
}

// Validate checks cross-field invariants spec §6 implies but a plain
// struct decode cannot enforce.
func Validate(cfg *Config) error {
	if cfg.Provider.Type == "" {
		return fmt.Errorf("voxbridge: config: provider.type is required")
	}
	if !cfg.Pipeline.Enabled && cfg.Bot.URL == "" {
		return fmt.Errorf("voxbridge: config: bot.url is required when pipeline.enabled is false")
	}
	if cfg.Pipeline.Enabled {
		if cfg.Pipeline.STT.Provider == "" {
			return fmt.Errorf("voxbridge: config: pipeline.stt.provider is required when pipeline.enabled is true")
		}
		if cfg.Pipeline.LLM.Provider == "" {
			return fmt.Errorf("voxbridge: config: pipeline.llm.provider is required when pipeline.enabled is true")
		}
		if cfg.Pipeline.TTS.Provider == "" {
			return fmt.Errorf("voxbridge: config: pipeline.tts.provider is required when pipeline.enabled is true")
		}
	}
	return nil
}
