package pipeline

import (
	"context"
	"fmt"
)

// FixtureSTT is a deterministic STT provider for tests and as a wiring
// example: it never does real recognition, it simply replays results
// fed to it via Feed. Grounded in
// MrWong99-glyphoxa/pkg/provider/stt/mock's test-double shape.
type FixtureSTT struct {
	resultsCh  chan STTResult
	sampleRate int
	codec      string
}

// NewFixtureSTT builds a fixture STT provider.
func NewFixtureSTT(sampleRate int, codec string) *FixtureSTT {
	return &FixtureSTT{resultsCh: make(chan STTResult, 32), sampleRate: sampleRate, codec: codec}
}

func (f *FixtureSTT) Connect(ctx context.Context) error { return nil }

func (f *FixtureSTT) SendAudio(chunk []byte) error { return nil }

func (f *FixtureSTT) Results() <-chan STTResult { return f.resultsCh }

func (f *FixtureSTT) Close() error {
	close(f.resultsCh)
	return nil
}

func (f *FixtureSTT) SampleRate() int { return f.sampleRate }

func (f *FixtureSTT) Codec() string { return f.codec }

// Feed injects a result as if it had been recognized, for tests driving
// the turn detector / orchestrator end to end.
func (f *FixtureSTT) Feed(r STTResult) { f.resultsCh <- r }

// FixtureLLM is a deterministic LLM provider: it echoes the last user
// message back as a single-chunk completion, with no tool calls.
type FixtureLLM struct {
	// Respond, when set, overrides the default echo behavior.
	Respond func(messages []Message) []LLMChunk
}

func NewFixtureLLM() *FixtureLLM { return &FixtureLLM{} }

func (f *FixtureLLM) Generate(ctx context.Context, messages []Message, tools []ToolDefinition, temperature float64, maxTokens int) (<-chan LLMChunk, error) {
	ch := make(chan LLMChunk, 8)
	chunks := f.defaultResponse(messages)
	if f.Respond != nil {
		chunks = f.Respond(messages)
	}
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (f *FixtureLLM) defaultResponse(messages []Message) []LLMChunk {
	last := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			last = messages[i].Content
			break
		}
	}
	return []LLMChunk{
		{Text: fmt.Sprintf("You said: %s.", last)},
		{IsFinal: true},
	}
}

// FixtureTTS is a deterministic TTS provider: it synthesizes one
// fixed-size silent chunk per call to Synthesize.
type FixtureTTS struct {
	SampleRate int
}

func NewFixtureTTS(sampleRate int) *FixtureTTS { return &FixtureTTS{SampleRate: sampleRate} }

func (f *FixtureTTS) Connect(ctx context.Context) error { return nil }

func (f *FixtureTTS) Synthesize(ctx context.Context, text string) (<-chan TTSChunk, error) {
	ch := make(chan TTSChunk, 2)
	go func() {
		defer close(ch)
		silence := make([]byte, 320) // 20ms at 8kHz mono pcm16
		select {
		case ch <- TTSChunk{Audio: silence, SampleRate: f.SampleRate}:
		case <-ctx.Done():
			return
		}
		select {
		case ch <- TTSChunk{IsFinal: true, SampleRate: f.SampleRate}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

func (f *FixtureTTS) Flush(ctx context.Context) error { return nil }

func (f *FixtureTTS) Close() error { return nil }
