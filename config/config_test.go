package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
provider:
  type: twilio
  listen_host: "0.0.0.0"
  listen_port: 8080
  listen_path: /media-stream
bot:
  url: wss://bot.example.com/ws
  codec: pcm16
  sample_rate: 16000
audio:
  input_codec: mulaw
  output_codec: mulaw
  sample_rate: 8000
pipeline:
  enabled: false
`

func TestLoadFromReaderValidConfig(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Provider.Type != "twilio" {
		t.Errorf("Provider.Type = %q, want twilio", cfg.Provider.Type)
	}
	if cfg.Bot.URL != "wss://bot.example.com/ws" {
		t.Errorf("Bot.URL = %q, want the configured URL", cfg.Bot.URL)
	}
	if cfg.Audio.SampleRate != 8000 {
		t.Errorf("Audio.SampleRate = %d, want 8000", cfg.Audio.SampleRate)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	bad := validYAML + "\nnot_a_real_key: true\n"
	if _, err := LoadFromReader(strings.NewReader(bad)); err == nil {
		t.Fatal("LoadFromReader() with an unknown top-level key returned nil error, want an error")
	}
}

func TestLoadFromReaderRejectsUnknownNestedFields(t *testing.T) {
	bad := `
provider:
  type: twilio
  made_up_field: 1
bot:
  url: wss://bot.example.com/ws
`
	if _, err := LoadFromReader(strings.NewReader(bad)); err == nil {
		t.Fatal("LoadFromReader() with an unknown nested key returned nil error, want an error")
	}
}

func TestLoadFromReaderRequiresProviderType(t *testing.T) {
	bad := `
bot:
  url: wss://bot.example.com/ws
`
	if _, err := LoadFromReader(strings.NewReader(bad)); err == nil {
		t.Fatal("LoadFromReader() without provider.type returned nil error, want an error")
	}
}

func TestLoadFromReaderRequiresBotURLWhenPipelineDisabled(t *testing.T) {
	bad := `
provider:
  type: twilio
pipeline:
  enabled: false
`
	if _, err := LoadFromReader(strings.NewReader(bad)); err == nil {
		t.Fatal("LoadFromReader() without bot.url and pipeline disabled returned nil error, want an error")
	}
}

func TestLoadFromReaderPipelineEnabledRequiresProviders(t *testing.T) {
	bad := `
provider:
  type: twilio
pipeline:
  enabled: true
`
	if _, err := LoadFromReader(strings.NewReader(bad)); err == nil {
		t.Fatal("LoadFromReader() with pipeline enabled but no stt/llm/tts returned nil error, want an error")
	}
}

func TestLoadFromReaderPipelineEnabledValid(t *testing.T) {
	good := `
provider:
  type: genesys
pipeline:
  enabled: true
  stt:
    provider: deepgram
  llm:
    provider: openai
  tts:
    provider: elevenlabs
  silence_threshold_ms: 500
  max_call_duration_seconds: 120
`
	cfg, err := LoadFromReader(strings.NewReader(good))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Pipeline.SilenceThreshold() != 500*time.Millisecond {
		t.Errorf("Pipeline.SilenceThreshold() = %v, want 500ms", cfg.Pipeline.SilenceThreshold())
	}
	if cfg.Pipeline.MaxCallDuration() != 120*time.Second {
		t.Errorf("Pipeline.MaxCallDuration() = %v, want 120s", cfg.Pipeline.MaxCallDuration())
	}
}

func TestPipelineConfigDurationsZeroWhenUnset(t *testing.T) {
	p := PipelineConfig{}
	if p.SilenceThreshold() != 0 {
		t.Errorf("SilenceThreshold() = %v, want 0", p.SilenceThreshold())
	}
	if p.MaxCallDuration() != 0 {
		t.Errorf("MaxCallDuration() = %v, want 0", p.MaxCallDuration())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/voxbridge.yaml"); err == nil {
		t.Fatal("Load() with a missing file returned nil error, want an error")
	}
}
