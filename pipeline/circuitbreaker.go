package pipeline

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by CircuitBreaker.Execute when the
// breaker is open and its reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("voxbridge: pipeline provider circuit is open")

// CircuitState is a CircuitBreaker's current operating mode.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes a CircuitBreaker.
type CircuitBreakerConfig struct {
	// Name labels the breaker in log output (e.g. "stt", "llm", "tts").
	Name string
	// MaxFailures consecutive failures before the breaker opens.
	MaxFailures int
	// ResetTimeout is how long the breaker stays open before probing
	// again in the half-open state.
	ResetTimeout time.Duration
	// HalfOpenMax bounds the number of probe calls allowed while
	// half-open.
	HalfOpenMax int
}

// CircuitBreaker wraps calls to an upstream STT/LLM/TTS provider so
// repeated failures stop hammering a downed dependency, giving spec
// §7's "attempts to continue on transient errors... and aborts on
// repeated failures" concrete, testable semantics. Adapted from
// MrWong99-glyphoxa/internal/resilience/circuitbreaker.go's classic
// three-state breaker. Safe for concurrent use.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu              sync.Mutex
	state           CircuitState
	consecutiveFail int
	lastFailure     time.Time
	halfOpenCalls   int
	halfOpenFails   int
}

// NewCircuitBreaker builds a breaker, filling zero-value config
// fields with defaults (5 failures, 30s reset, 3 half-open probes).
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		state:        CircuitClosed,
	}
}

// Execute runs fn if the breaker permits it, returning ErrCircuitOpen
// without calling fn when the breaker is open and the reset timeout
// has not elapsed.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case CircuitOpen:
		if time.Since(cb.lastFailure) >= cb.resetTimeout {
			cb.state = CircuitHalfOpen
			cb.halfOpenCalls = 0
			cb.halfOpenFails = 0
			slog.Info("pipeline circuit breaker transitioning to half-open", slog.String("name", cb.name))
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	case CircuitHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMax {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}

	inHalfOpen := cb.state == CircuitHalfOpen
	if inHalfOpen {
		cb.halfOpenCalls++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.recordFailure(inHalfOpen)
	} else {
		cb.recordSuccess(inHalfOpen)
	}
	return err
}

// recordFailure must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(inHalfOpen bool) {
	cb.lastFailure = time.Now()
	if inHalfOpen {
		cb.halfOpenFails++
		cb.state = CircuitOpen
		cb.consecutiveFail = cb.maxFailures
		slog.Warn("pipeline circuit breaker re-opened from half-open", slog.String("name", cb.name))
		return
	}
	cb.consecutiveFail++
	if cb.consecutiveFail >= cb.maxFailures {
		cb.state = CircuitOpen
		slog.Warn("pipeline circuit breaker opened", slog.String("name", cb.name), slog.Int("consecutive_failures", cb.consecutiveFail))
	}
}

// recordSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(inHalfOpen bool) {
	if inHalfOpen {
		successes := cb.halfOpenCalls - cb.halfOpenFails
		if successes >= cb.halfOpenMax {
			cb.state = CircuitClosed
			cb.consecutiveFail = 0
			cb.halfOpenCalls = 0
			cb.halfOpenFails = 0
			slog.Info("pipeline circuit breaker closed after successful probes", slog.String("name", cb.name))
		}
		return
	}
	cb.consecutiveFail = 0
}

// State reports the breaker's current state, reflecting an elapsed
// reset timeout as half-open even though the actual transition only
// happens on the next Execute call.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && time.Since(cb.lastFailure) >= cb.resetTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to closed, clearing failure counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.consecutiveFail = 0
	cb.halfOpenCalls = 0
	cb.halfOpenFails = 0
}
