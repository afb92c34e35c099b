package phaserunner

import (
	"context"
	"errors"
	"testing"

	"github.com/hansjm10/alphred/internal/model"
	"github.com/hansjm10/alphred/internal/provider"
	"github.com/hansjm10/alphred/internal/provider/mock"
)

func TestRunAggregatesIncrementalUsageAndExtractsDecision(t *testing.T) {
	script := []provider.Event{
		{Type: provider.EventSystem, Content: "start"},
		{Type: provider.EventUsage, Metadata: map[string]any{"input_tokens": 10, "output_tokens": 5}},
		{Type: provider.EventUsage, Metadata: map[string]any{"input_tokens": 3, "output_tokens": 2}},
		{
			Type:    provider.EventResult,
			Content: "looks good",
			Metadata: map[string]any{
				"routingDecision":       string(model.DecisionApproved),
				"routingDecisionSource": "agent_explicit",
			},
		},
	}
	a := mock.New("mock", script, nil)

	var observed int
	res, err := Run(context.Background(), a, provider.InvokeRequest{}, func(ev provider.Event) error {
		observed++
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if observed != len(script) {
		t.Fatalf("expected onEvent called once per event (%d), got %d", len(script), observed)
	}
	if res.TokensUsed != 20 {
		t.Fatalf("expected incremental sum 10+5+3+2=20, got %d", res.TokensUsed)
	}
	if res.ResultContent != "looks good" {
		t.Fatalf("expected result content, got %q", res.ResultContent)
	}
	if !res.HasDecision || res.DecisionType != model.DecisionApproved {
		t.Fatalf("expected DecisionApproved, got hasDecision=%v type=%q", res.HasDecision, res.DecisionType)
	}
	if res.DecisionSource != "agent_explicit" {
		t.Fatalf("expected explicit decision source to override default, got %q", res.DecisionSource)
	}
}

func TestRunPrefersCumulativeTotalOverIncrementalSum(t *testing.T) {
	script := []provider.Event{
		{Type: provider.EventUsage, Metadata: map[string]any{"input_tokens": 10, "output_tokens": 5, "total_tokens": 100}},
		{Type: provider.EventResult, Content: "done"},
	}
	a := mock.New("mock", script, nil)
	res, err := Run(context.Background(), a, provider.InvokeRequest{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TokensUsed != 100 {
		t.Fatalf("expected cumulative total 100 to win, got %d", res.TokensUsed)
	}
}

func TestRunDefaultsDecisionSourceWhenUnspecified(t *testing.T) {
	script := []provider.Event{
		{Type: provider.EventResult, Content: "done", Metadata: map[string]any{"routingDecision": string(model.DecisionApproved)}},
	}
	a := mock.New("mock", script, nil)
	res, err := Run(context.Background(), a, provider.InvokeRequest{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.DecisionSource != "result_content_contract_fallback" {
		t.Fatalf("expected the default decision source fallback, got %q", res.DecisionSource)
	}
}

func TestRunMissingResultEventIsAnError(t *testing.T) {
	a := mock.New("mock", []provider.Event{{Type: provider.EventSystem, Content: "start"}}, nil)
	_, err := Run(context.Background(), a, provider.InvokeRequest{}, nil)
	if err == nil {
		t.Fatal("expected an error when the stream never produces a result event")
	}
	var pre *PhaseRunError
	if !errors.As(err, &pre) {
		t.Fatalf("expected a *PhaseRunError, got %T", err)
	}
	pe, ok := provider.AsError(pre.Cause)
	if !ok || pe.Code != provider.ErrMissingResult {
		t.Fatalf("expected ErrMissingResult cause, got %v", pre.Cause)
	}
}

func TestRunPropagatesAdapterError(t *testing.T) {
	wantErr := provider.NewError(provider.ErrTimeout, "timeout", "boom", nil)
	a := mock.New("mock", []provider.Event{{Type: provider.EventSystem, Content: "start"}}, wantErr)
	_, err := Run(context.Background(), a, provider.InvokeRequest{}, nil)
	var pre *PhaseRunError
	if !errors.As(err, &pre) {
		t.Fatalf("expected a *PhaseRunError, got %T", err)
	}
	if !errors.Is(pre, wantErr) {
		t.Fatalf("expected PhaseRunError to wrap the adapter's error, got %v", pre.Cause)
	}
}

func TestRunStopsOnEventCallbackError(t *testing.T) {
	script := []provider.Event{
		{Type: provider.EventSystem, Content: "start"},
		{Type: provider.EventResult, Content: "done"},
	}
	a := mock.New("mock", script, nil)
	boom := errors.New("diagnostics write failed")
	_, err := Run(context.Background(), a, provider.InvokeRequest{}, func(ev provider.Event) error {
		return boom
	})
	var pre *PhaseRunError
	if !errors.As(err, &pre) {
		t.Fatalf("expected a *PhaseRunError, got %T", err)
	}
	if !errors.Is(pre, boom) {
		t.Fatalf("expected the callback error to propagate as the cause, got %v", pre.Cause)
	}
}
