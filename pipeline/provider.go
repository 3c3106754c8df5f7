package pipeline

import "context"

// STT is the speech-to-text provider contract (spec §4.7). Results()
// streams both interim and final results; the caller distinguishes them
// via STTResult.IsFinal.
type STT interface {
	Connect(ctx context.Context) error
	SendAudio(chunk []byte) error
	Results() <-chan STTResult
	Close() error
	SampleRate() int
	Codec() string
}

// LLM is the large-language-model provider contract. Generate streams
// LLMChunks; tool-call argument fragments accumulate across chunks by
// ToolCallID (spec §4.7).
type LLM interface {
	Generate(ctx context.Context, messages []Message, tools []ToolDefinition, temperature float64, maxTokens int) (<-chan LLMChunk, error)
}

// TTS is the text-to-speech provider contract.
type TTS interface {
	Connect(ctx context.Context) error
	Synthesize(ctx context.Context, text string) (<-chan TTSChunk, error)
	Flush(ctx context.Context) error
	Close() error
}

// ToolExecutor invokes a tool by name with its accumulated JSON
// arguments and returns a JSON-serializable result.
type ToolExecutor func(ctx context.Context, call ToolCall) (any, error)
