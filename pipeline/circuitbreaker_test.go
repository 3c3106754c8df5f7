package pipeline

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	if err := cb.Execute(func() error { return errBoom }); err != errBoom {
		t.Fatalf("first failure returned %v, want errBoom", err)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("State() = %v after 1 failure, want CircuitClosed", cb.State())
	}

	if err := cb.Execute(func() error { return errBoom }); err != errBoom {
		t.Fatalf("second failure returned %v, want errBoom", err)
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("State() = %v after MaxFailures failures, want CircuitOpen", cb.State())
	}

	if err := cb.Execute(func() error { return nil }); err != ErrCircuitOpen {
		t.Errorf("Execute while open = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerResetsFailureCountOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	cb.Execute(func() error { return errBoom })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errBoom })

	if cb.State() != CircuitClosed {
		t.Fatalf("State() = %v, want CircuitClosed (a success should reset the streak)", cb.State())
	}
}

func TestCircuitBreakerHalfOpenClosesAfterProbeSuccesses(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 2})

	cb.Execute(func() error { return errBoom })
	if cb.State() != CircuitOpen {
		t.Fatalf("State() = %v, want CircuitOpen", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe call returned %v, want nil", err)
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("second probe call returned %v, want nil", err)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("State() = %v after HalfOpenMax successful probes, want CircuitClosed", cb.State())
	}
}

func TestCircuitBreakerHalfOpenReopensOnProbeFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})
	cb.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	cb.Execute(func() error { return errBoom })
	if cb.State() != CircuitOpen {
		t.Fatalf("State() after a failed probe = %v, want CircuitOpen", cb.State())
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	cb.Execute(func() error { return errBoom })
	if cb.State() != CircuitOpen {
		t.Fatalf("State() = %v, want CircuitOpen", cb.State())
	}
	cb.Reset()
	if cb.State() != CircuitClosed {
		t.Fatalf("State() after Reset = %v, want CircuitClosed", cb.State())
	}
}
