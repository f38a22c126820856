package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_TransientError(t *testing.T) {
	err := NewTransientError(errors.New("server error"), 503)
	if !IsTransient(err) {
		t.Error("TransientError should be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	inner := NewTransientError(errors.New("rate limited"), 429)
	wrapped := fmt.Errorf("calling provider: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("wrapped TransientError should be transient")
	}
}

func TestIsTransient_PlainError(t *testing.T) {
	if IsTransient(errors.New("invalid request")) {
		t.Error("plain error should not be transient")
	}
}

func TestIsTransient_StringPatterns(t *testing.T) {
	cases := []string{
		"read tcp: connection reset by peer",
		"write: broken pipe",
		"dial tcp: i/o timeout",
		"Get \"https://api\": tls handshake timeout",
	}
	for _, msg := range cases {
		if !IsTransient(errors.New(msg)) {
			t.Errorf("expected transient: %q", msg)
		}
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	transient := []int{408, 429, 500, 502, 503, 504}
	for _, code := range transient {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d transient", code)
		}
	}
	permanent := []int{200, 201, 400, 401, 403, 404, 422}
	for _, code := range permanent {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d not transient", code)
		}
	}
}

func TestRetryAfterHint(t *testing.T) {
	if d := RetryAfterHint(errors.New("plain")); d != 0 {
		t.Errorf("plain error: expected 0, got %v", d)
	}

	err := NewRateLimitError(errors.New("429"), 12*time.Second)
	if d := RetryAfterHint(err); d != 12*time.Second {
		t.Errorf("expected 12s, got %v", d)
	}

	wrapped := fmt.Errorf("openai: %w", err)
	if d := RetryAfterHint(wrapped); d != 12*time.Second {
		t.Errorf("wrapped: expected 12s, got %v", d)
	}
}
