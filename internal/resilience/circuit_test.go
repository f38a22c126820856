package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func failingFn(_ context.Context) error {
	return errors.New("provider down")
}

func okFn(_ context.Context) error {
	return nil
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), failingFn)
	}

	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	err := cb.Execute(context.Background(), okFn)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsCounter(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	_ = cb.Execute(context.Background(), failingFn)
	_ = cb.Execute(context.Background(), failingFn)
	_ = cb.Execute(context.Background(), okFn)
	_ = cb.Execute(context.Background(), failingFn)
	_ = cb.Execute(context.Background(), failingFn)

	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after interleaved success, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	cb.nowFunc = func() time.Time { return now }

	_ = cb.Execute(context.Background(), failingFn)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	// Advance past the reset timeout; probe succeeds and circuit closes.
	now = now.Add(11 * time.Second)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}
	if err := cb.Execute(context.Background(), okFn); err != nil {
		t.Fatalf("probe should pass: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	cb.nowFunc = func() time.Time { return now }

	_ = cb.Execute(context.Background(), failingFn)
	now = now.Add(11 * time.Second)
	_ = cb.Execute(context.Background(), failingFn)

	if cb.State() != CircuitOpen {
		t.Errorf("expected reopened circuit, got %s", cb.State())
	}
}

func TestExecuteVal_PassesValue(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	val, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) {
		return "hello", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "hello" {
		t.Errorf("expected hello, got %q", val)
	}
}

func TestProviderBreakers_PerProviderIsolation(t *testing.T) {
	pb := NewProviderBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	_ = pb.Get("openai").Execute(context.Background(), failingFn)

	if pb.Get("openai").State() != CircuitOpen {
		t.Error("openai breaker should be open")
	}
	if pb.Get("anthropic").State() != CircuitClosed {
		t.Error("anthropic breaker should be unaffected")
	}

	states := pb.States()
	if len(states) != 2 {
		t.Errorf("expected 2 breakers, got %d", len(states))
	}
}
