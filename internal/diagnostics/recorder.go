package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hansjm10/alphred/internal/model"
	"github.com/hansjm10/alphred/internal/provider"
	"github.com/hansjm10/alphred/internal/store"
)

// Budgets (design parameters; not schema-enforced, spec §4.8).
const (
	MaxEventContentChars  = 2_000
	MaxDiagnosticChars    = 16_000
	MaxMetadataDepth      = 4
	MaxMetadataArrayItems = 20
)

// Recorder persists sanitized stream events and builds per-attempt
// diagnostics payloads.
type Recorder struct {
	db *store.DB
}

// New builds a Recorder over db.
func New(db *store.DB) *Recorder {
	return &Recorder{db: db}
}

// RecordEvent sanitizes and persists one provider event as a
// run_node_stream_events row, returning the sanitized preview so
// callers (the phase runner's onEvent hook, or a failure-artifact
// scan) can reuse it without re-sanitizing.
func (r *Recorder) RecordEvent(ctx context.Context, runID, runNodeID int64, attempt int, ev provider.Event) (string, error) {
	preview, redacted := Sanitize(ev.Content)
	preview, truncated := headTail(preview, MaxEventContentChars)

	metaRedacted := false
	meta := ev.Metadata
	if meta != nil {
		prunedMeta, mredacted := pruneAndSanitizeMetadata(meta, 0)
		meta = prunedMeta
		metaRedacted = mredacted
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		metaJSON = []byte("{}")
	}

	var deltaTokens, cumulativeTokens *int
	if ev.Type == provider.EventUsage {
		usage := provider.NormalizeUsage(ev.Metadata)
		deltaTokens = sumTokens(usage)
		cumulativeTokens = usage.TotalTokens
	}

	_, err = r.db.InsertStreamEvent(ctx, store.NewStreamEvent{
		RunID:            runID,
		RunNodeID:        runNodeID,
		Attempt:          attempt,
		EventType:        model.StreamEventType(ev.Type),
		ContentPreview:   preview,
		Metadata:         string(metaJSON),
		DeltaTokens:      deltaTokens,
		CumulativeTokens: cumulativeTokens,
		Redacted:         redacted || metaRedacted,
		Truncated:        truncated,
	})
	if err != nil {
		return preview, fmt.Errorf("record stream event for run_node %d attempt %d: %w", runNodeID, attempt, err)
	}
	return preview, nil
}

func sumTokens(u provider.Usage) *int {
	if u.InputTokens == nil && u.OutputTokens == nil {
		return nil
	}
	s := 0
	if u.InputTokens != nil {
		s += *u.InputTokens
	}
	if u.OutputTokens != nil {
		s += *u.OutputTokens
	}
	return &s
}

// Payload is the bounded JSON document persisted once per attempt.
type Payload struct {
	NodeKey              string         `json:"node_key"`
	Attempt              int            `json:"attempt"`
	EventTypeCounts      map[string]int `json:"event_type_counts"`
	ToolEvents           int            `json:"tool_events"`
	TokensUsed           int            `json:"tokens_used"`
	RoutingDecision      string         `json:"routing_decision,omitempty"`
	FailedCommandOutputs []string       `json:"failed_command_outputs,omitempty"`
}

// BuildAndRecord assembles the RunNodeDiagnosticsPayload for one
// attempt from its already-persisted stream events, enforces
// MaxDiagnosticChars (trimming failedCommandOutputs head-first, then
// dropping oldest events retaining the first N), and inserts the
// run_node_diagnostics row.
func (r *Recorder) BuildAndRecord(ctx context.Context, runID, runNodeID int64, attempt int, node model.RunNode, tokensUsed int, decision model.DecisionType, failedCommandOutputs []string) error {
	events, err := r.db.EventsForAttempt(ctx, runNodeID, attempt)
	if err != nil {
		return fmt.Errorf("events for run_node %d attempt %d: %w", runNodeID, attempt, err)
	}

	payload := Payload{
		NodeKey:              node.NodeKey,
		Attempt:              attempt,
		EventTypeCounts:      map[string]int{},
		TokensUsed:           tokensUsed,
		RoutingDecision:      string(decision),
		FailedCommandOutputs: failedCommandOutputs,
	}
	for _, e := range events {
		payload.EventTypeCounts[string(e.EventType)]++
		if e.EventType == model.StreamEventToolUse || e.EventType == model.StreamEventToolResult {
			payload.ToolEvents++
		}
	}

	truncated := false
	redacted := false
	for _, e := range events {
		if e.Redacted {
			redacted = true
		}
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal diagnostics payload: %w", err)
	}
	for len(b) > MaxDiagnosticChars && len(payload.FailedCommandOutputs) > 0 {
		truncated = true
		trimmed, _ := headTail(payload.FailedCommandOutputs[0], len(payload.FailedCommandOutputs[0])/2)
		payload.FailedCommandOutputs[0] = trimmed
		if len(payload.FailedCommandOutputs[0]) < 32 {
			payload.FailedCommandOutputs = payload.FailedCommandOutputs[1:]
		}
		b, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal diagnostics payload: %w", err)
		}
	}
	// If still over budget, drop oldest events from the count (retain
	// the first N by reducing ToolEvents/EventTypeCounts is not
	// reversible per-event, so this stage instead caps the payload at
	// the byte limit directly — a hard truncation of the serialized form.
	if len(b) > MaxDiagnosticChars {
		truncated = true
		b = b[:MaxDiagnosticChars]
	}

	_, err = r.db.InsertDiagnostics(ctx, store.NewDiagnostics{
		RunID:       runID,
		RunNodeID:   runNodeID,
		Attempt:     attempt,
		EventCount:  len(events),
		Redacted:    redacted,
		Truncated:   truncated,
		PayloadJSON: string(b),
	})
	if err != nil {
		return fmt.Errorf("insert diagnostics for run_node %d attempt %d: %w", runNodeID, attempt, err)
	}
	return nil
}

func headTail(s string, limit int) (string, bool) {
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s, false
	}
	half := limit / 2
	return string(r[:half]) + "...[truncated]..." + string(r[len(r)-(limit-half):]), true
}

func pruneAndSanitizeMetadata(m map[string]any, depth int) (map[string]any, bool) {
	redacted := false
	out := make(map[string]any, len(m))
	for k, v := range m {
		pv, r := pruneValue(v, depth+1)
		if r {
			redacted = true
		}
		out[k] = pv
	}
	return out, redacted
}

func pruneValue(v any, depth int) (any, bool) {
	if depth > MaxMetadataDepth {
		return "[pruned]", false
	}
	switch t := v.(type) {
	case string:
		sanitized, redacted := Sanitize(t)
		return sanitized, redacted
	case map[string]any:
		return pruneAndSanitizeMetadata(t, depth)
	case []any:
		redacted := false
		n := len(t)
		if n > MaxMetadataArrayItems {
			n = MaxMetadataArrayItems
		}
		out := make([]any, n)
		for i := 0; i < n; i++ {
			pv, r := pruneValue(t[i], depth+1)
			if r {
				redacted = true
			}
			out[i] = pv
		}
		return out, redacted
	default:
		return v, false
	}
}
