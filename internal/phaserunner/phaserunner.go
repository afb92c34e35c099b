// Package phaserunner is the phase runner (C6): consumes one node's
// provider event stream, aggregating usage and extracting the routing
// decision.
package phaserunner

import (
	"context"
	"fmt"

	"github.com/hansjm10/alphred/internal/model"
	"github.com/hansjm10/alphred/internal/provider"
)

// PhaseRunError is returned when the provider stream errors or never
// produces a result event.
type PhaseRunError struct {
	Events     []provider.Event
	TokensUsed int
	Cause      error
}

func (e *PhaseRunError) Error() string {
	return fmt.Sprintf("phase run failed after %d events (tokens=%d): %v", len(e.Events), e.TokensUsed, e.Cause)
}

func (e *PhaseRunError) Unwrap() error { return e.Cause }

// Result is the outcome of a successful phase run.
type Result struct {
	Events                []provider.Event
	ResultContent         string
	TokensUsed            int
	DecisionType          model.DecisionType
	DecisionSource        string
	HasDecision           bool
}

// Run streams adapter.Invoke(req), calling onEvent for every event
// (used by the diagnostics recorder) before the event is otherwise
// processed, and aggregates usage per spec §4.6.
func Run(ctx context.Context, adapter provider.Adapter, req provider.InvokeRequest, onEvent func(provider.Event) error) (*Result, error) {
	var events []provider.Event
	var incrementalSum int
	var cumulativeMax int
	var haveCumulative bool
	var resultEvent *provider.Event

	emit := func(ev provider.Event) error {
		events = append(events, ev)
		if onEvent != nil {
			if err := onEvent(ev); err != nil {
				return err
			}
		}
		switch ev.Type {
		case provider.EventUsage:
			usage := provider.NormalizeUsage(ev.Metadata)
			if usage.InputTokens != nil || usage.OutputTokens != nil {
				if usage.InputTokens != nil {
					incrementalSum += *usage.InputTokens
				}
				if usage.OutputTokens != nil {
					incrementalSum += *usage.OutputTokens
				}
			}
			if usage.TotalTokens != nil {
				haveCumulative = true
				if *usage.TotalTokens > cumulativeMax {
					cumulativeMax = *usage.TotalTokens
				}
			}
		case provider.EventResult:
			e := ev
			resultEvent = &e
		}
		return nil
	}

	err := adapter.Invoke(ctx, req, emit)

	tokensUsed := incrementalSum
	if haveCumulative && cumulativeMax > tokensUsed {
		tokensUsed = cumulativeMax
	}

	if err != nil {
		return nil, &PhaseRunError{Events: events, TokensUsed: tokensUsed, Cause: err}
	}
	if resultEvent == nil {
		return nil, &PhaseRunError{
			Events:     events,
			TokensUsed: tokensUsed,
			Cause:      provider.NewError(provider.ErrMissingResult, "missing_result", "provider stream ended without a result event", nil),
		}
	}

	res := &Result{Events: events, ResultContent: resultEvent.Content, TokensUsed: tokensUsed}
	if resultEvent.Metadata != nil {
		if raw, ok := resultEvent.Metadata["routingDecision"].(string); ok && raw != "" {
			res.DecisionType = model.DecisionType(raw)
			res.HasDecision = true
			res.DecisionSource = "provider_result_metadata"
			if src, ok := resultEvent.Metadata["routingDecisionSource"].(string); ok && src != "" {
				res.DecisionSource = src
			}
		}
	}
	return res, nil
}
