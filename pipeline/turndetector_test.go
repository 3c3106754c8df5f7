package pipeline

import (
	"sync"
	"testing"
	"time"
)

func waitForTurn(t *testing.T, ch <-chan string, timeout time.Duration) string {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(timeout):
		t.Fatal("timed out waiting for turn-end callback")
		return ""
	}
}

func TestTurnDetectorEmitsOnceAfterSilence(t *testing.T) {
	cfg := DefaultTurnDetectorConfig()
	cfg.SilenceThreshold = 30 * time.Millisecond
	cfg.MinTurnLength = 1
	d := NewTurnDetector(cfg)

	turns := make(chan string, 4)
	d.SetTurnEndCallback(func(transcript string) { turns <- transcript })

	d.OnSTTResult(STTResult{Text: "hello", IsFinal: true})
	d.OnSTTResult(STTResult{Text: "there", IsFinal: true})

	got := waitForTurn(t, turns, time.Second)
	if got != "hello there" {
		t.Errorf("turn transcript = %q, want %q", got, "hello there")
	}

	select {
	case extra := <-turns:
		t.Fatalf("turn callback fired a second time with %q", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTurnDetectorSuppressesShortTurns(t *testing.T) {
	cfg := DefaultTurnDetectorConfig()
	cfg.SilenceThreshold = 20 * time.Millisecond
	cfg.MinTurnLength = 10
	d := NewTurnDetector(cfg)

	var mu sync.Mutex
	fired := false
	d.SetTurnEndCallback(func(transcript string) {
		mu.Lock()
		fired = true
		mu.Unlock()
	})

	d.OnSTTResult(STTResult{Text: "hi", IsFinal: true})
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired {
		t.Error("turn callback fired for a transcript shorter than MinTurnLength")
	}
}

func TestTurnDetectorResetDiscardsPendingTranscript(t *testing.T) {
	cfg := DefaultTurnDetectorConfig()
	cfg.SilenceThreshold = 30 * time.Millisecond
	cfg.MinTurnLength = 1
	d := NewTurnDetector(cfg)

	turns := make(chan string, 4)
	d.SetTurnEndCallback(func(transcript string) { turns <- transcript })

	d.OnSTTResult(STTResult{Text: "abandoned", IsFinal: true})
	d.Reset()

	select {
	case got := <-turns:
		t.Fatalf("turn callback fired with %q after Reset", got)
	case <-time.After(150 * time.Millisecond):
	}

	if state := d.State(); state != TurnIdle {
		t.Errorf("State() after Reset = %v, want TurnIdle", state)
	}
}

func TestTurnDetectorEmptyFinalClosesImmediately(t *testing.T) {
	cfg := DefaultTurnDetectorConfig()
	cfg.MinTurnLength = 1
	d := NewTurnDetector(cfg)

	turns := make(chan string, 4)
	d.SetTurnEndCallback(func(transcript string) { turns <- transcript })

	d.OnSTTResult(STTResult{Text: "done talking", IsFinal: true})
	d.OnSTTResult(STTResult{Text: "", IsFinal: true})

	got := waitForTurn(t, turns, time.Second)
	if got != "done talking" {
		t.Errorf("turn transcript = %q, want %q", got, "done talking")
	}
}

func TestTurnDetectorIsSpeaking(t *testing.T) {
	d := NewTurnDetector(TurnDetectorConfig{SilenceThreshold: time.Hour})
	if d.IsSpeaking() {
		t.Fatal("IsSpeaking() = true before any input")
	}
	d.OnSTTResult(STTResult{Text: "partial", IsFinal: false})
	if !d.IsSpeaking() {
		t.Error("IsSpeaking() = false after an interim result, want true")
	}
}
