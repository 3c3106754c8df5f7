// Package pipeline implements the built-in STT->LLM->TTS voice-bot
// alternative to an external bot WebSocket (spec §4.7). Provider
// interfaces are grounded in MrWong99-glyphoxa/pkg/provider/{stt,llm,tts}'s
// channel-streaming shape; turn detection, escalation, and context
// trimming follow original_source/voxbridge/pipeline/*.py's literal
// thresholds, expressed as a Go state machine rather than asyncio tasks.
package pipeline

// Message is one entry in the conversation sent to the LLM.
type Message struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolCall is a single function invocation the LLM requested.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // accumulated JSON fragment
}

// ToolDefinition describes a callable tool offered to the LLM.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// STTResult is one partial or final transcription result.
type STTResult struct {
	Text       string
	IsFinal    bool
	Confidence float64
	Words      []string
}

// LLMChunk is one fragment of a streaming completion.
type LLMChunk struct {
	Text          string
	ToolCallID    string
	ToolName      string
	ToolArguments string
	IsFinal       bool
	InputTokens   int
	OutputTokens  int
}

// TTSChunk is one fragment of synthesized audio.
type TTSChunk struct {
	Audio      []byte
	SampleRate int
	IsFinal    bool
}
