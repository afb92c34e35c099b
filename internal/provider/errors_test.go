package provider

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyAuthWordingWins(t *testing.T) {
	e := Classify(429, errors.New("unauthorized: check your API key"))
	if e.Code != ErrAuth {
		t.Fatalf("expected auth wording to classify as ErrAuth even with a 429 status, got %q", e.Code)
	}
	if e.Retryable {
		t.Fatal("expected auth errors to be non-retryable")
	}
}

func TestClassifyAuthStatusCodes(t *testing.T) {
	for _, code := range []int{401, 403} {
		e := Classify(code, errors.New("denied"))
		if e.Code != ErrAuth {
			t.Fatalf("status %d: expected ErrAuth, got %q", code, e.Code)
		}
	}
}

func TestClassifyRateLimit(t *testing.T) {
	e := Classify(429, errors.New("slow down"))
	if e.Code != ErrRateLimited || !e.Retryable {
		t.Fatalf("expected retryable ErrRateLimited for 429, got %q retryable=%v", e.Code, e.Retryable)
	}
	e2 := Classify(0, errors.New("Rate Limit exceeded"))
	if e2.Code != ErrRateLimited {
		t.Fatalf("expected rate-limit wording to classify as ErrRateLimited, got %q", e2.Code)
	}
}

func TestClassifyTimeout(t *testing.T) {
	e := Classify(0, errors.New("ETIMEDOUT waiting for response"))
	if e.Code != ErrTimeout || !e.Retryable {
		t.Fatalf("expected retryable ErrTimeout, got %q retryable=%v", e.Code, e.Retryable)
	}
}

func TestClassifyTransport(t *testing.T) {
	e := Classify(0, errors.New("ECONNRESET by peer"))
	if e.Code != ErrTransport || !e.Retryable {
		t.Fatalf("expected retryable ErrTransport, got %q retryable=%v", e.Code, e.Retryable)
	}
}

func TestClassifyServerErrorIsInternalRetryable(t *testing.T) {
	e := Classify(503, errors.New("service unavailable"))
	if e.Code != ErrInternal || !e.Retryable {
		t.Fatalf("expected retryable ErrInternal for 5xx, got %q retryable=%v", e.Code, e.Retryable)
	}
}

func TestClassifyFallsBackToInternal(t *testing.T) {
	e := Classify(0, errors.New("something odd happened"))
	if e.Code != ErrInternal || e.Retryable {
		t.Fatalf("expected non-retryable ErrInternal fallback, got %q retryable=%v", e.Code, e.Retryable)
	}
}

func TestErrorUnwrapAndAsError(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := fmt.Errorf("invoke failed: %w", NewError(ErrTimeout, "timeout", "timed out", cause))

	pe, ok := AsError(wrapped)
	if !ok {
		t.Fatal("expected AsError to unwrap the provider error")
	}
	if pe.Code != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %q", pe.Code)
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("expected the provider error to unwrap through to its cause")
	}
}

func TestAsErrorFalseForUnrelatedError(t *testing.T) {
	_, ok := AsError(errors.New("plain error"))
	if ok {
		t.Fatal("expected AsError to report false for a non-provider error")
	}
}
