package pipeline

import (
	"strings"
	"sync"
	"time"
)

// TurnState is the turn detector's state machine position, spec §4.7.
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnSpeaking
	TurnAwaitingSilence
	TurnClosed
)

func (s TurnState) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnSpeaking:
		return "speaking"
	case TurnAwaitingSilence:
		return "awaiting_silence"
	case TurnClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TurnDetectorConfig configures turn-boundary detection.
type TurnDetectorConfig struct {
	// SilenceThreshold is how long the caller must be quiet after the
	// last final STT result before a turn closes (default 700ms).
	SilenceThreshold time.Duration
	// MinTurnLength suppresses turns shorter than this many characters
	// (default 2).
	MinTurnLength int
	// MaxTurnDuration forces a turn closed regardless of silence
	// (default 30s).
	MaxTurnDuration time.Duration
	// EndpointingMode "stt" starts the silence timer on each STT final
	// result. Any other value starts no silence timer; a turn then
	// closes only on an empty final result or MaxTurnDuration.
	EndpointingMode string
}

// DefaultTurnDetectorConfig matches
// original_source/voxbridge/pipeline/turn_detector.py's dataclass
// defaults.
func DefaultTurnDetectorConfig() TurnDetectorConfig {
	return TurnDetectorConfig{
		SilenceThreshold: 700 * time.Millisecond,
		MinTurnLength:    2,
		MaxTurnDuration:  30 * time.Second,
		EndpointingMode:  "stt",
	}
}

// TurnDetector combines STT final results with a silence timer to
// decide when the caller has finished a conversational turn (spec
// §4.7, §8). It is safe for concurrent use: OnSTTResult may run on a
// listener goroutine while the silence timer fires on its own.
type TurnDetector struct {
	cfg TurnDetectorConfig

	onTurnEnd func(transcript string)

	mu               sync.Mutex
	state            TurnState
	transcript       string
	interim          string
	lastSpeechTime   time.Time
	turnStart        time.Time
	silenceTimer     *time.Timer
	silenceGen       int
	turnEnded        bool
}

// NewTurnDetector builds a detector. Zero-value fields in cfg fall
// back to DefaultTurnDetectorConfig's values.
func NewTurnDetector(cfg TurnDetectorConfig) *TurnDetector {
	d := DefaultTurnDetectorConfig()
	if cfg.SilenceThreshold > 0 {
		d.SilenceThreshold = cfg.SilenceThreshold
	}
	if cfg.MinTurnLength > 0 {
		d.MinTurnLength = cfg.MinTurnLength
	}
	if cfg.MaxTurnDuration > 0 {
		d.MaxTurnDuration = cfg.MaxTurnDuration
	}
	if cfg.EndpointingMode != "" {
		d.EndpointingMode = cfg.EndpointingMode
	}
	return &TurnDetector{cfg: d, state: TurnIdle}
}

// SetTurnEndCallback installs the function invoked with the complete
// turn transcript when a turn closes.
func (t *TurnDetector) SetTurnEndCallback(fn func(transcript string)) {
	t.mu.Lock()
	t.onTurnEnd = fn
	t.mu.Unlock()
}

// OnSTTResult feeds one interim or final STT result into the
// detector, per spec §4.7's state table.
func (t *TurnDetector) OnSTTResult(r STTResult) {
	now := time.Now()

	t.mu.Lock()
	if r.Text == "" && r.IsFinal {
		// Empty final = utterance-end signal from the STT provider.
		hasText := strings.TrimSpace(t.transcript) != ""
		t.mu.Unlock()
		if hasText {
			t.endTurn()
		}
		return
	}

	if r.Text != "" {
		t.lastSpeechTime = now
		if t.state == TurnIdle {
			t.state = TurnSpeaking
			t.turnStart = now
			t.turnEnded = false
		}

		if r.IsFinal {
			if t.transcript != "" {
				t.transcript += " " + r.Text
			} else {
				t.transcript = r.Text
			}
			t.interim = ""
			if t.cfg.EndpointingMode == "stt" {
				t.startSilenceTimerLocked()
			}
		} else {
			t.interim = r.Text
		}
	}

	forceEnd := t.state == TurnSpeaking && !t.turnStart.IsZero() && now.Sub(t.turnStart) >= t.cfg.MaxTurnDuration
	t.mu.Unlock()

	if forceEnd {
		t.endTurn()
	}
}

// startSilenceTimerLocked (re)arms the silence timer. Must be called
// with t.mu held. A monotonically increasing generation counter
// invalidates any timer callback scheduled before a reset or a fresh
// restart, replacing asyncio.Task.cancel()'s semantics.
func (t *TurnDetector) startSilenceTimerLocked() {
	if t.silenceTimer != nil {
		t.silenceTimer.Stop()
	}
	t.silenceGen++
	gen := t.silenceGen
	t.state = TurnAwaitingSilence
	t.silenceTimer = time.AfterFunc(t.cfg.SilenceThreshold, func() {
		t.fireSilenceTimer(gen)
	})
}

func (t *TurnDetector) fireSilenceTimer(gen int) {
	t.mu.Lock()
	if gen != t.silenceGen {
		t.mu.Unlock()
		return
	}
	elapsed := time.Since(t.lastSpeechTime)
	ready := elapsed >= time.Duration(float64(t.cfg.SilenceThreshold)*0.8)
	t.mu.Unlock()
	if ready {
		t.endTurn()
	}
}

// endTurn closes the current turn, resets the detector, and invokes the
// callback with the turn's transcript. A further call before new speech
// finds an empty transcript and does not invoke the callback.
func (t *TurnDetector) endTurn() {
	t.mu.Lock()
	if t.turnEnded {
		t.mu.Unlock()
		return
	}
	t.turnEnded = true
	t.state = TurnClosed

	transcript := t.transcript
	if t.interim != "" {
		if transcript != "" {
			transcript += " " + t.interim
		} else {
			transcript = t.interim
		}
	}
	transcript = strings.TrimSpace(transcript)
	cb := t.onTurnEnd
	minLen := t.cfg.MinTurnLength
	t.resetLocked()
	t.mu.Unlock()

	if len(transcript) < minLen {
		return
	}
	if cb != nil {
		cb(transcript)
	}
}

// Reset clears accumulated transcript and silence-timer state for a
// fresh turn, without invoking the callback.
func (t *TurnDetector) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

// resetLocked must be called with t.mu held.
func (t *TurnDetector) resetLocked() {
	t.transcript = ""
	t.interim = ""
	t.state = TurnIdle
	t.turnEnded = false
	if t.silenceTimer != nil {
		t.silenceTimer.Stop()
		t.silenceTimer = nil
	}
	t.silenceGen++
}

// Cancel resets detector state on an external interruption (barge-in).
func (t *TurnDetector) Cancel() {
	t.Reset()
}

// CurrentText returns the transcript accumulated so far in this turn,
// including any interim (unconfirmed) tail.
func (t *TurnDetector) CurrentText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	text := t.transcript
	if t.interim != "" {
		if text != "" {
			text += " " + t.interim
		} else {
			text = t.interim
		}
	}
	return strings.TrimSpace(text)
}

// State returns the detector's current TurnState.
func (t *TurnDetector) State() TurnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsSpeaking reports whether the caller is mid-turn.
func (t *TurnDetector) IsSpeaking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == TurnSpeaking || t.state == TurnAwaitingSilence
}
