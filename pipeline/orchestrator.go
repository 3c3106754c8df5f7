package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ttsIdleTimeout and flushIdleTimeout match spec §5's "per-sentence
// 5-second idle timeout" and "flush... 3-second idle timeout".
const (
	ttsIdleTimeout    = 5 * time.Second
	flushIdleTimeout  = 3 * time.Second
	defaultMaxCallDur = 1800 * time.Second
)

// defaultEndCallPhrases matches
// original_source/voxbridge/pipeline/orchestrator.py's PipelineConfig
// default.
var defaultEndCallPhrases = []string{"goodbye", "bye bye", "end the call", "hang up"}

// Config configures a PipelineOrchestrator (spec §4.7, §6's
// pipeline.* configuration surface).
type Config struct {
	SystemPrompt    string
	FirstMessage    string
	Tools           []ToolDefinition
	EndCallPhrases  []string

	EscalationEnabled bool
	Escalation        EscalationConfig

	MaxCallDuration      time.Duration
	LLMTemperature       float64
	LLMMaxTokens         int
	SilenceThreshold     time.Duration
	InterruptionEnabled  bool
}

// DefaultConfig matches PipelineConfig's Python defaults.
func DefaultConfig() Config {
	return Config{
		SystemPrompt:        "You are a helpful AI assistant on a phone call. Be concise and conversational.",
		EndCallPhrases:      append([]string(nil), defaultEndCallPhrases...),
		EscalationEnabled:   true,
		MaxCallDuration:     defaultMaxCallDur,
		LLMTemperature:      0.7,
		LLMMaxTokens:        512,
		SilenceThreshold:    700 * time.Millisecond,
		InterruptionEnabled: true,
	}
}

// AudioOutputFunc sends synthesized audio back toward the provider.
type AudioOutputFunc func(ctx context.Context, audio []byte) error

// EscalationFunc is invoked when the escalation detector fires.
type EscalationFunc func(result EscalationResult)

// CallEndFunc is invoked when the pipeline decides the call should
// end (max duration, caller goodbye, or escalation handoff).
type CallEndFunc func(reason string)

// TranscriptFunc is invoked with each user/assistant turn of text,
// for callers that want a transcript feed independent of the
// conversation context.
type TranscriptFunc func(role, text string)

// PipelineOrchestrator drives one call's STT -> LLM -> TTS loop (spec
// §4.7). One instance exists per call using pipeline mode.
type PipelineOrchestrator struct {
	cfg Config

	stt STT
	llm LLM
	tts TTS

	turnDetector *TurnDetector
	context      *ConversationContext
	escalation   *EscalationDetector

	sttBreaker *CircuitBreaker
	llmBreaker *CircuitBreaker
	ttsBreaker *CircuitBreaker

	toolExecutor ToolExecutor
	audioOutput  AudioOutputFunc
	onEscalation EscalationFunc
	onCallEnd    CallEndFunc
	onTranscript TranscriptFunc

	logger *slog.Logger

	mu               sync.Mutex
	running          bool
	isSpeaking       bool
	sentenceBuffer   string
	generationCancel context.CancelFunc
	generationDone   chan struct{}
	startTime        time.Time

	runCtx    context.Context
	runCancel context.CancelFunc
	sttDone   chan struct{}
}

// NewPipelineOrchestrator builds an orchestrator wired to concrete
// STT/LLM/TTS provider instances. Zero-value SystemPrompt,
// EndCallPhrases, MaxCallDuration, LLMTemperature, LLMMaxTokens and
// SilenceThreshold fall back to DefaultConfig's values; FirstMessage,
// Tools, Escalation, EscalationEnabled and InterruptionEnabled are
// taken from cfg as given, zero values included.
func NewPipelineOrchestrator(cfg Config, stt STT, llm LLM, tts TTS, logger *slog.Logger) *PipelineOrchestrator {
	d := DefaultConfig()
	if cfg.SystemPrompt != "" {
		d.SystemPrompt = cfg.SystemPrompt
	}
	d.FirstMessage = cfg.FirstMessage
	d.Tools = cfg.Tools
	if len(cfg.EndCallPhrases) > 0 {
		d.EndCallPhrases = cfg.EndCallPhrases
	}
	d.EscalationEnabled = cfg.EscalationEnabled
	d.Escalation = cfg.Escalation
	d.Escalation.Enabled = cfg.EscalationEnabled
	if cfg.MaxCallDuration > 0 {
		d.MaxCallDuration = cfg.MaxCallDuration
	}
	if cfg.LLMTemperature > 0 {
		d.LLMTemperature = cfg.LLMTemperature
	}
	if cfg.LLMMaxTokens > 0 {
		d.LLMMaxTokens = cfg.LLMMaxTokens
	}
	if cfg.SilenceThreshold > 0 {
		d.SilenceThreshold = cfg.SilenceThreshold
	}
	d.InterruptionEnabled = cfg.InterruptionEnabled

	if logger == nil {
		logger = slog.Default()
	}

	return &PipelineOrchestrator{
		cfg:          d,
		stt:          stt,
		llm:          llm,
		tts:          tts,
		turnDetector: NewTurnDetector(TurnDetectorConfig{SilenceThreshold: d.SilenceThreshold}),
		context:      NewConversationContext(d.SystemPrompt, d.FirstMessage, d.Tools),
		escalation:   NewEscalationDetector(d.Escalation),
		sttBreaker:   NewCircuitBreaker(CircuitBreakerConfig{Name: "stt"}),
		llmBreaker:   NewCircuitBreaker(CircuitBreakerConfig{Name: "llm"}),
		ttsBreaker:   NewCircuitBreaker(CircuitBreakerConfig{Name: "tts"}),
		logger:       logger,
	}
}

func (p *PipelineOrchestrator) SetAudioOutputCallback(fn AudioOutputFunc) { p.audioOutput = fn }
func (p *PipelineOrchestrator) SetToolExecutor(fn ToolExecutor)           { p.toolExecutor = fn }
func (p *PipelineOrchestrator) SetEscalationCallback(fn EscalationFunc)   { p.onEscalation = fn }
func (p *PipelineOrchestrator) SetCallEndCallback(fn CallEndFunc)         { p.onCallEnd = fn }
func (p *PipelineOrchestrator) SetTranscriptCallback(fn TranscriptFunc)   { p.onTranscript = fn }

// Context exposes the conversation context, e.g. for transcript
// export once the call ends.
func (p *PipelineOrchestrator) Context() *ConversationContext { return p.context }

// Start connects the STT and TTS providers, arms the turn detector,
// and launches the STT result listener. If configured, the first
// message is synthesized immediately as the agent's greeting.
func (p *PipelineOrchestrator) Start(ctx context.Context) error {
	p.mu.Lock()
	p.startTime = time.Now()
	p.runCtx, p.runCancel = context.WithCancel(ctx)
	p.sttDone = make(chan struct{})
	runCtx := p.runCtx
	p.mu.Unlock()

	if err := p.sttBreaker.Execute(func() error { return p.stt.Connect(runCtx) }); err != nil {
		return err
	}
	if err := p.tts.Connect(runCtx); err != nil {
		return err
	}

	p.turnDetector.SetTurnEndCallback(p.onTurnEnd)

	p.mu.Lock()
	p.running = true
	p.mu.Unlock()

	go p.sttListener(runCtx)

	if p.cfg.FirstMessage != "" {
		p.synthesizeAndSend(runCtx, p.cfg.FirstMessage)
		if p.onTranscript != nil {
			p.onTranscript("assistant", p.cfg.FirstMessage)
		}
	}

	p.logger.Info("pipeline started")
	return nil
}

// Stop cancels any in-flight generation and the STT listener, and
// closes the STT and TTS providers. Idempotent.
func (p *PipelineOrchestrator) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.generationCancel
	p.generationCancel = nil
	runCancel := p.runCancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if runCancel != nil {
		runCancel()
	}

	p.stt.Close()
	p.tts.Close()
	p.logger.Info("pipeline stopped", slog.Duration("duration", p.Duration()), slog.Int("tokens", p.context.TotalTokens()))
}

// FeedAudio forwards one inbound PCM16 chunk from the provider to the
// STT provider.
func (p *PipelineOrchestrator) FeedAudio(chunk []byte) error {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		return nil
	}
	return p.stt.SendAudio(chunk)
}

// HandleBargeIn cancels in-flight generation and resets the turn
// detector for fresh input, per spec §4.6.3 step 4 ("the bot is
// expected to cancel TTS").
func (p *PipelineOrchestrator) HandleBargeIn() {
	p.mu.Lock()
	p.isSpeaking = false
	cancel := p.generationCancel
	p.generationCancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.turnDetector.Reset()
	p.mu.Lock()
	p.sentenceBuffer = ""
	p.mu.Unlock()
}

// HandleDTMF checks the digit against the escalation detector, and
// otherwise records it in the conversation as context.
func (p *PipelineOrchestrator) HandleDTMF(digit string) {
	if result := p.escalation.CheckDTMF(digit); result.ShouldEscalate {
		p.handleEscalation(result)
		return
	}
	p.context.AddUserMessage("[DTMF tone pressed: " + digit + "]")
}

// IsRunning reports whether Start has been called and Stop has not.
func (p *PipelineOrchestrator) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// IsSpeaking reports whether TTS audio is currently being produced.
func (p *PipelineOrchestrator) IsSpeaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isSpeaking
}

// Duration reports elapsed pipeline runtime.
func (p *PipelineOrchestrator) Duration() time.Duration {
	p.mu.Lock()
	start := p.startTime
	p.mu.Unlock()
	if start.IsZero() {
		return 0
	}
	return time.Since(start)
}

// sttListener is the background task that feeds STT results into the
// turn detector and watches the max-call-duration ceiling.
func (p *PipelineOrchestrator) sttListener(ctx context.Context) {
	defer close(p.sttDone)
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-p.stt.Results():
			if !ok {
				return
			}
			p.turnDetector.OnSTTResult(result)

			if p.Duration() > p.cfg.MaxCallDuration {
				p.logger.Warn("pipeline max call duration reached")
				p.endCall("max_duration")
				return
			}
		}
	}
}

// onTurnEnd is the TurnDetector callback: it commits the transcript
// to the conversation, checks escalation and end-call phrases, and
// otherwise starts a new (cancelling any prior) generation task.
func (p *PipelineOrchestrator) onTurnEnd(transcript string) {
	if !p.IsRunning() {
		return
	}

	p.context.AddUserMessage(transcript)
	if p.onTranscript != nil {
		p.onTranscript("user", transcript)
	}

	if result := p.escalation.CheckUserMessage(transcript); result.ShouldEscalate {
		p.handleEscalation(result)
		return
	}

	lower := strings.ToLower(transcript)
	for _, phrase := range p.cfg.EndCallPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			goodbye := "The caller said: '" + transcript + "'. Say a brief, polite goodbye and end the conversation."
			p.context.ReplaceLastUserMessage(goodbye)
			p.runGeneration()
			p.waitForGeneration()
			p.endCall("caller_goodbye")
			return
		}
	}

	p.runGeneration()
}

// runGeneration cancels any in-flight generation and starts a fresh
// one, tracked so barge-in or a new turn can cancel it within one
// suspension point (spec §5).
func (p *PipelineOrchestrator) runGeneration() {
	p.mu.Lock()
	if p.generationCancel != nil {
		p.generationCancel()
	}
	genCtx, cancel := context.WithCancel(p.runCtx)
	done := make(chan struct{})
	p.generationCancel = cancel
	p.generationDone = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		p.generateAndSpeak(genCtx)
	}()
}

func (p *PipelineOrchestrator) waitForGeneration() {
	p.mu.Lock()
	done := p.generationDone
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// pendingToolCall accumulates one tool call's name and JSON argument
// fragments across streamed LLMChunks, keyed by ToolCallID.
type pendingToolCall struct {
	name string
	args strings.Builder
}

// generateAndSpeak streams one LLM completion, flushing complete
// sentences to TTS as they appear in the buffer, and dispatches any
// tool calls the LLM requests once the stream completes (spec §4.7
// step 3).
func (p *PipelineOrchestrator) generateAndSpeak(ctx context.Context) {
	p.mu.Lock()
	p.isSpeaking = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.isSpeaking = false
		p.sentenceBuffer = ""
		p.mu.Unlock()
	}()

	messages := p.context.Messages()
	var ch <-chan LLMChunk
	err := p.llmBreaker.Execute(func() error {
		var genErr error
		ch, genErr = p.llm.Generate(ctx, messages, p.cfg.Tools, p.cfg.LLMTemperature, p.cfg.LLMMaxTokens)
		return genErr
	})
	if err != nil {
		p.logger.Error("llm generation error", slog.Any("error", err))
		p.synthesizeAndSend(ctx, "I'm sorry, I had a brief issue. Could you repeat that?")
		return
	}

	var fullResponse strings.Builder
	pending := map[string]*pendingToolCall{}
	var toolOrder []string

readLoop:
	for {
		select {
		case <-ctx.Done():
			if fullResponse.Len() > 0 {
				p.context.AddAssistantMessage(fullResponse.String() + " [interrupted]")
			}
			return
		case chunk, ok := <-ch:
			if !ok {
				break readLoop
			}
			if chunk.Text != "" {
				fullResponse.WriteString(chunk.Text)
				p.mu.Lock()
				p.sentenceBuffer += chunk.Text
				buffered := p.sentenceBuffer
				p.mu.Unlock()

				sentences := extractSentences(buffered)
				if len(sentences) > 1 {
					for _, s := range sentences[:len(sentences)-1] {
						p.synthesizeAndSend(ctx, s)
					}
					p.mu.Lock()
					p.sentenceBuffer = sentences[len(sentences)-1]
					p.mu.Unlock()
				}
			}

			if chunk.ToolCallID != "" {
				tc, exists := pending[chunk.ToolCallID]
				if !exists {
					tc = &pendingToolCall{}
					pending[chunk.ToolCallID] = tc
					toolOrder = append(toolOrder, chunk.ToolCallID)
				}
				if chunk.ToolName != "" {
					tc.name = chunk.ToolName
				}
				if chunk.ToolArguments != "" {
					tc.args.WriteString(chunk.ToolArguments)
				}
			}

			if chunk.IsFinal {
				p.context.UpdateTokenUsage(chunk.InputTokens, chunk.OutputTokens)
			}
		}
	}

	p.mu.Lock()
	remainder := strings.TrimSpace(p.sentenceBuffer)
	p.sentenceBuffer = ""
	speaking := p.isSpeaking
	p.mu.Unlock()
	if remainder != "" && speaking {
		p.synthesizeAndSend(ctx, remainder)
	}

	if ctx.Err() != nil {
		return
	}

	if len(toolOrder) > 0 {
		p.handleToolCalls(ctx, fullResponse.String(), toolOrder, pending)
		return
	}

	if fullResponse.Len() > 0 {
		p.context.AddAssistantMessage(fullResponse.String())
		if p.onTranscript != nil {
			p.onTranscript("assistant", fullResponse.String())
		}
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, flushIdleTimeout)
	flushErr := p.tts.Flush(flushCtx)
	flushCancel()
	if flushErr != nil {
		p.logger.Warn("tts flush error", slog.Any("error", flushErr))
	}
}

// handleToolCalls executes every accumulated tool call, appends
// results to the conversation, and recursively re-enters generation
// so the LLM can use the tool output (spec §4.7 step 3).
func (p *PipelineOrchestrator) handleToolCalls(ctx context.Context, assistantText string, order []string, pending map[string]*pendingToolCall) {
	calls := make([]ToolCall, 0, len(order))
	for _, id := range order {
		tc := pending[id]
		calls = append(calls, ToolCall{ID: id, Name: tc.name, Arguments: tc.args.String()})
	}
	p.context.AddAssistantToolCalls(assistantText, calls)

	if strings.TrimSpace(assistantText) != "" {
		p.synthesizeAndSend(ctx, assistantText)
	}

	for _, tc := range calls {
		p.logger.Info("executing tool", slog.String("name", tc.Name))
		var result any
		var err error
		if p.toolExecutor != nil {
			result, err = p.toolExecutor(ctx, tc)
		} else {
			result, err = "tool execution not configured", nil
		}
		if err != nil {
			p.context.AddToolResult(tc.ID, tc.Name, "Error: "+err.Error())
			continue
		}
		p.context.AddToolResult(tc.ID, tc.Name, result)
	}

	if p.IsRunning() && ctx.Err() == nil {
		p.generateAndSpeak(ctx)
	}
}

// synthesizeAndSend synthesizes text and streams the resulting audio
// chunks out through the configured AudioOutputFunc, abandoning the
// sentence if no chunk arrives within ttsIdleTimeout (spec §5).
func (p *PipelineOrchestrator) synthesizeAndSend(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" || p.audioOutput == nil {
		return
	}

	var ch <-chan TTSChunk
	err := p.ttsBreaker.Execute(func() error {
		var synErr error
		ch, synErr = p.tts.Synthesize(ctx, text)
		return synErr
	})
	if err != nil {
		p.logger.Error("tts synthesis error", slog.Any("error", err))
		return
	}

	timer := time.NewTimer(ttsIdleTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.logger.Warn("tts sentence abandoned: idle timeout")
			return
		case chunk, ok := <-ch:
			if !ok {
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(ttsIdleTimeout)
			if len(chunk.Audio) > 0 {
				if err := p.audioOutput(ctx, chunk.Audio); err != nil {
					return
				}
			}
			if chunk.IsFinal {
				return
			}
		}
	}
}

func (p *PipelineOrchestrator) handleEscalation(result EscalationResult) {
	p.logger.Info("pipeline escalation", slog.String("reason", result.Reason), slog.String("trigger", string(result.Trigger)))
	p.synthesizeAndSend(p.runCtx, p.escalation.TransferMessage())
	if p.onEscalation != nil {
		p.onEscalation(result)
	}
	p.endCall("escalated")
}

func (p *PipelineOrchestrator) endCall(reason string) {
	p.logger.Info("pipeline ending call", slog.String("reason", reason))
	if p.onCallEnd != nil {
		p.onCallEnd(reason)
	}
}

// extractSentences splits text at every sentence-ending punctuation
// mark (. ! ? : ;) immediately followed by whitespace, matching
// original_source/voxbridge/pipeline/orchestrator.py's
// `_extract_sentences` regex split. The final element may be an
// incomplete trailing fragment.
func extractSentences(text string) []string {
	if text == "" {
		return nil
	}
	const enders = ".!?;:"
	runes := []rune(text)
	var result []string
	start := 0
	i := 0
	for i < len(runes) {
		if strings.ContainsRune(enders, runes[i]) && i+1 < len(runes) && isSpace(runes[i+1]) {
			result = append(result, string(runes[start:i+1]))
			j := i + 1
			for j < len(runes) && isSpace(runes[j]) {
				j++
			}
			start = j
			i = j
			continue
		}
		i++
	}
	result = append(result, string(runes[start:]))
	return result
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}
