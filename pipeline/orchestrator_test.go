package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"
)

type transcriptLog struct {
	mu  sync.Mutex
	log []string
}

func (l *transcriptLog) record(role, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = append(l.log, role+":"+text)
}

func (l *transcriptLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.log))
	copy(out, l.log)
	return out
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func newTestOrchestrator(t *testing.T) (*PipelineOrchestrator, *FixtureSTT, *FixtureTTS, *transcriptLog) {
	t.Helper()
	stt := NewFixtureSTT(8000, "pcm16")
	tts := NewFixtureTTS(8000)
	llm := NewFixtureLLM()

	cfg := DefaultConfig()
	cfg.SilenceThreshold = 20 * time.Millisecond

	orch := NewPipelineOrchestrator(cfg, stt, llm, tts, nil)

	var audioMu sync.Mutex
	var audioChunks int
	orch.SetAudioOutputCallback(func(ctx context.Context, audio []byte) error {
		audioMu.Lock()
		audioChunks++
		audioMu.Unlock()
		return nil
	})

	transcripts := &transcriptLog{}
	orch.SetTranscriptCallback(transcripts.record)

	return orch, stt, tts, transcripts
}

func TestPipelineOrchestratorRoundTrip(t *testing.T) {
	orch, stt, _, transcripts := newTestOrchestrator(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer orch.Stop()

	stt.Feed(STTResult{Text: "what is my balance", IsFinal: true})

	waitForCondition(t, time.Second, func() bool {
		log := transcripts.snapshot()
		for _, l := range log {
			if l == "assistant:You said: what is my balance." {
				return true
			}
		}
		return false
	})
}

func TestPipelineOrchestratorEscalationEndsCall(t *testing.T) {
	orch, stt, _, _ := newTestOrchestrator(t)

	var endMu sync.Mutex
	var endReason string
	orch.SetCallEndCallback(func(reason string) {
		endMu.Lock()
		endReason = reason
		endMu.Unlock()
	})

	var escalated bool
	orch.SetEscalationCallback(func(result EscalationResult) {
		escalated = true
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer orch.Stop()

	stt.Feed(STTResult{Text: "let me speak to a human agent", IsFinal: true})

	waitForCondition(t, time.Second, func() bool {
		endMu.Lock()
		defer endMu.Unlock()
		return endReason == "escalated"
	})
	if !escalated {
		t.Error("escalation callback was never invoked")
	}
}

func TestPipelineOrchestratorHandleDTMFZeroEscalates(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator(t)

	var endMu sync.Mutex
	var ended bool
	orch.SetCallEndCallback(func(reason string) {
		endMu.Lock()
		ended = reason == "escalated"
		endMu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer orch.Stop()

	orch.HandleDTMF("0")

	waitForCondition(t, time.Second, func() bool {
		endMu.Lock()
		defer endMu.Unlock()
		return ended
	})
}

func TestPipelineOrchestratorGreetingIsSynthesized(t *testing.T) {
	stt := NewFixtureSTT(8000, "pcm16")
	tts := NewFixtureTTS(8000)
	llm := NewFixtureLLM()

	cfg := DefaultConfig()
	cfg.FirstMessage = "Thanks for calling, how can I help?"

	orch := NewPipelineOrchestrator(cfg, stt, llm, tts, nil)

	var mu sync.Mutex
	var chunks int
	orch.SetAudioOutputCallback(func(ctx context.Context, audio []byte) error {
		mu.Lock()
		chunks++
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer orch.Stop()

	waitForCondition(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return chunks > 0
	})
}

func TestPipelineOrchestratorIsRunningLifecycle(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator(t)
	if orch.IsRunning() {
		t.Fatal("IsRunning() = true before Start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !orch.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}

	orch.Stop()
	if orch.IsRunning() {
		t.Fatal("IsRunning() = true after Stop")
	}
}
