package google

import (
	"context"
	"testing"

	"github.com/hansjm10/alphred/internal/provider"
)

func TestNameIsGoogle(t *testing.T) {
	a := New("key", "")
	if a.Name() != "google" {
		t.Fatalf("expected name=google, got %q", a.Name())
	}
}

func TestInvokeRejectsMissingAPIKey(t *testing.T) {
	a := New("", "")
	err := a.Invoke(context.Background(), provider.InvokeRequest{Prompt: "hi"}, func(provider.Event) error { return nil })
	if err == nil {
		t.Fatal("expected an error for a missing API key")
	}
	pe, ok := provider.AsError(err)
	if !ok || pe.Code != provider.ErrInvalidConfig {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
