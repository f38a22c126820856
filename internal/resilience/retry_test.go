package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestDoVal_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), DefaultRetryConfig(), func(_ context.Context) (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoVal_SuccessAfterRetry(t *testing.T) {
	var calls int
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
	}

	val, err := DoVal(context.Background(), cfg, func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("temporary"), 503)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "ok" {
		t.Errorf("expected ok, got %q", val)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	var calls int
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
	}

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("always fails"), 500)
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NonTransientError_NoRetry(t *testing.T) {
	var calls int
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
	}

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return errors.New("permanent error: bad request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call (no retry for non-transient), got %d", calls)
	}
}

func TestDo_ContextCancelled_StopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	cfg := RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		Multiplier:     2.0,
	}

	err := Do(ctx, cfg, func(_ context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return NewTransientError(errors.New("fail"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	// Should stop after cancel (2 calls max).
	if calls > 3 {
		t.Errorf("expected retries to stop after cancel, got %d calls", calls)
	}
}

func TestDoVal_HonorsRetryAfterHint(t *testing.T) {
	var calls int
	var firstRetryAt time.Time
	start := time.Now()
	cfg := RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     1.0,
		JitterFraction: 0,
	}

	_, err := DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		calls++
		if calls == 2 {
			firstRetryAt = time.Now()
			return 7, nil
		}
		return 0, NewRateLimitError(errors.New("rate limited"), 50*time.Millisecond)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := firstRetryAt.Sub(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected backoff floored to retry-after hint, retried after %v", elapsed)
	}
}

func TestDoVal_OnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		OnRetry: func(attempt int, _ error) {
			attempts = append(attempts, attempt)
		},
	}

	_, _ = DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		return 0, NewTransientError(errors.New("fail"), 503)
	})
	if len(attempts) != 2 {
		t.Fatalf("expected 2 retry callbacks, got %d", len(attempts))
	}
	if attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("unexpected attempt numbers: %v", attempts)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if d := ParseRetryAfter("", now); d != 0 {
		t.Errorf("empty header: expected 0, got %v", d)
	}
	if d := ParseRetryAfter("30", now); d != 30*time.Second {
		t.Errorf("delta seconds: expected 30s, got %v", d)
	}
	if d := ParseRetryAfter("-5", now); d != 0 {
		t.Errorf("negative delta: expected 0, got %v", d)
	}
	if d := ParseRetryAfter("garbage", now); d != 0 {
		t.Errorf("malformed: expected 0, got %v", d)
	}
	httpDate := now.Add(90 * time.Second).Format(http.TimeFormat)
	if d := ParseRetryAfter(httpDate, now); d != 90*time.Second {
		t.Errorf("http date: expected 90s, got %v", d)
	}
	if d := ParseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now); d != 0 {
		t.Errorf("past http date: expected 0, got %v", d)
	}
}
