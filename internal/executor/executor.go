// Package executor is the run loop (C7): it drives a workflow run node
// by node — claim, assemble context, invoke the provider, persist the
// outcome, and route — until the run reaches a terminal status, a
// lifecycle control intervenes, or the iteration bound is hit.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hansjm10/alphred/internal/contextbuilder"
	"github.com/hansjm10/alphred/internal/diagnostics"
	"github.com/hansjm10/alphred/internal/joins"
	"github.com/hansjm10/alphred/internal/model"
	"github.com/hansjm10/alphred/internal/phaserunner"
	"github.com/hansjm10/alphred/internal/provider"
	"github.com/hansjm10/alphred/internal/selector"
	"github.com/hansjm10/alphred/internal/store"
	"github.com/hansjm10/alphred/internal/telemetry"
)

// MaxControlPreconditionRetries bounds how many times a lifecycle
// control helper retries a guarded transition that races the
// executor's own progress (spec §5).
const MaxControlPreconditionRetries = 5

// OnRunTerminal is invoked exactly once per run, the moment it
// transitions from a non-terminal to a terminal status.
type OnRunTerminal func(ctx context.Context, runID int64, status model.RunStatus)

// Executor owns one step loop over the store; it holds no per-run
// state, so a single Executor safely drives many runs (sequentially
// within a run, concurrently across runs — spec §5).
type Executor struct {
	db       *store.DB
	sel      *selector.Selector
	ctxb     *contextbuilder.Builder
	registry *provider.Registry
	diag     *diagnostics.Recorder
	joins    *joins.Coordinator
	metrics  *telemetry.Metrics
	emitter  telemetry.Emitter
	onTerm   OnRunTerminal
}

// Option configures an Executor at construction time.
type Option func(*Executor)

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *telemetry.Metrics) Option { return func(e *Executor) { e.metrics = m } }

// WithEmitter attaches an observability event sink.
func WithEmitter(em telemetry.Emitter) Option { return func(e *Executor) { e.emitter = em } }

// WithOnRunTerminal registers the run-terminal callback.
func WithOnRunTerminal(f OnRunTerminal) Option { return func(e *Executor) { e.onTerm = f } }

// New builds an Executor over its collaborators.
func New(db *store.DB, sel *selector.Selector, ctxb *contextbuilder.Builder, registry *provider.Registry, diag *diagnostics.Recorder, jc *joins.Coordinator, opts ...Option) *Executor {
	e := &Executor{db: db, sel: sel, ctxb: ctxb, registry: registry, diag: diag, joins: jc, emitter: telemetry.NewNullEmitter()}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Executor) emit(runID, runNodeID int64, nodeKey string, attempt int, msg string, meta map[string]any) {
	e.emitter.Emit(telemetry.Event{RunID: runID, RunNodeID: runNodeID, NodeKey: nodeKey, Attempt: attempt, Msg: msg, Meta: meta})
}

// ExecuteRun drives runID to a terminal status, or until a blocked
// verdict or the run's max_steps is reached.
func (e *Executor) ExecuteRun(ctx context.Context, runID int64) error {
	run, err := e.db.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if err := e.beginRunning(ctx, run); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		run, err = e.db.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if run.Status.IsTerminal() {
			return nil
		}
		if run.Status != model.RunStatusRunning {
			// paused, or some other non-terminal non-running state: stop
			// cooperatively at this boundary (spec §5).
			return nil
		}
		if run.StepCount >= run.MaxSteps {
			return e.failOnStepLimit(ctx, run)
		}
		if _, err := e.db.IncrementRunStepCount(ctx, runID); err != nil {
			return err
		}

		outcome, err := e.executeNextRunnableNode(ctx, runID)
		if err != nil {
			return err
		}
		switch outcome {
		case stepTerminal:
			return nil
		case stepBlocked:
			return nil
		case stepRetryClaim, stepProgressed:
			continue
		}
	}
}

type stepOutcome int

const (
	stepProgressed stepOutcome = iota
	stepBlocked
	stepTerminal
	stepRetryClaim
)

// beginRunning transitions a pending run to running. A paused run is
// left untouched — an externally requested pause is authoritative and
// the loop exits without mutating anything (spec §4.7).
func (e *Executor) beginRunning(ctx context.Context, run *model.WorkflowRun) error {
	if run.Status == model.RunStatusPaused || run.Status.IsTerminal() {
		return nil
	}
	if run.Status == model.RunStatusRunning {
		return nil
	}
	err := e.db.TransitionWorkflowRunStatus(ctx, run.ID, run.Status, model.RunStatusRunning)
	if err != nil && !errors.Is(err, model.ErrPrecondition) {
		return err
	}
	return nil
}

// executeNextRunnableNode performs one selection pass and, if a node
// is runnable, one full claim/assemble/invoke/persist/route step.
func (e *Executor) executeNextRunnableNode(ctx context.Context, runID int64) (stepOutcome, error) {
	sel, err := e.sel.Select(ctx, runID)
	if err != nil {
		return stepProgressed, err
	}

	switch sel.Verdict {
	case selector.VerdictNoRunnableSuccess:
		return e.completeRun(ctx, runID, model.RunStatusCompleted)
	case selector.VerdictNoRunnableFailure:
		return e.completeRun(ctx, runID, model.RunStatusFailed)
	case selector.VerdictBlocked:
		return stepBlocked, nil
	}

	node := *sel.Node
	e.emit(runID, node.ID, node.NodeKey, node.Attempt, "node_select", nil)

	if node.Status == model.RunNodeStatusPending {
		err := e.db.TransitionRunNodeStatus(ctx, node.ID, model.RunNodeStatusPending, model.RunNodeStatusRunning,
			store.RunNodeTransitionOptions{WorkflowRunID: runID, RequiredRunStatuses: []model.RunStatus{model.RunStatusPending, model.RunStatusRunning}})
		if err != nil {
			if errors.Is(err, model.ErrPrecondition) {
				return stepRetryClaim, nil
			}
			return stepProgressed, err
		}
		node.Status = model.RunNodeStatusRunning
	}

	return e.executeSingleNode(ctx, runID, node, sel.SelectedBy)
}

// executeSingleNode runs the claimed node's attempt to completion:
// assemble context, invoke its provider, persist the outcome, and
// route. The node must already be in `running` status.
func (e *Executor) executeSingleNode(ctx context.Context, runID int64, node model.RunNode, selectedEdgeID int64) (stepOutcome, error) {
	started := time.Now()

	assembled, err := e.ctxb.Build(ctx, runID, node, selectedEdgeID)
	if err != nil {
		return stepProgressed, fmt.Errorf("assemble context for run_node %d: %w", node.ID, err)
	}
	contextItems := make([]string, len(assembled.Envelopes))
	for i, env := range assembled.Envelopes {
		contextItems[i] = env.Content
	}

	adapter := e.registry.Get(node.Provider)
	if adapter == nil {
		return e.onFailure(ctx, runID, node, started, provider.NewError(provider.ErrInvalidConfig, "invalid_config", fmt.Sprintf("no provider registered for %q", node.Provider), nil), nil)
	}
	if err := e.registry.ValidateOptions(node.Provider, node.ExecutionPermissions); err != nil {
		return e.onFailure(ctx, runID, node, started, err, nil)
	}

	req := provider.InvokeRequest{
		Provider:             node.Provider,
		Model:                node.Model,
		Prompt:                node.Prompt,
		ContextItems:         contextItems,
		ExecutionPermissions: node.ExecutionPermissions,
	}

	var failedCommandOutputs []string
	onEvent := func(ev provider.Event) error {
		preview, rerr := e.diag.RecordEvent(ctx, runID, node.ID, node.Attempt, ev)
		if rerr != nil {
			return rerr
		}
		if ev.Type == provider.EventToolResult {
			if isCommandFailure(ev.Metadata) {
				failedCommandOutputs = append(failedCommandOutputs, preview)
			}
		}
		return nil
	}

	result, runErr := phaserunner.Run(ctx, adapter, req, onEvent)
	if runErr != nil {
		return e.onFailure(ctx, runID, node, started, runErr, failedCommandOutputs)
	}
	return e.onSuccess(ctx, runID, node, started, result, assembled, failedCommandOutputs)
}

func isCommandFailure(meta map[string]any) bool {
	if meta == nil {
		return false
	}
	if exitCode, ok := meta["exitCode"]; ok {
		switch v := exitCode.(type) {
		case int:
			return v != 0
		case float64:
			return v != 0
		}
	}
	if failed, ok := meta["failed"].(bool); ok {
		return failed
	}
	return false
}

func (e *Executor) onSuccess(ctx context.Context, runID int64, node model.RunNode, started time.Time, result *phaserunner.Result, assembled *contextbuilder.Assembled, failedCommandOutputs []string) (stepOutcome, error) {
	manifestJSON, _ := json.Marshal(assembled.Manifest)
	if _, err := e.db.InsertArtifact(ctx, model.PhaseArtifact{
		RunID: runID, RunNodeID: node.ID, Attempt: node.Attempt,
		ArtifactType: model.ArtifactTypeReport, ContentType: model.ContentTypeText,
		Content: result.ResultContent, Metadata: string(manifestJSON),
	}); err != nil {
		return stepProgressed, fmt.Errorf("persist report artifact for run_node %d: %w", node.ID, err)
	}

	decisionType := result.DecisionType
	decisionSource := result.DecisionSource
	if !result.HasDecision {
		decisionType = model.DecisionNoRoute
		decisionSource = "result_content_contract_fallback"
	}
	if _, err := e.db.InsertRoutingDecision(ctx, model.RoutingDecision{
		RunID: runID, RunNodeID: node.ID, Attempt: node.Attempt,
		DecisionType: decisionType, Source: decisionSource,
	}); err != nil {
		return stepProgressed, fmt.Errorf("persist routing decision for run_node %d: %w", node.ID, err)
	}

	if err := e.diag.BuildAndRecord(ctx, runID, node.ID, node.Attempt, node, result.TokensUsed, decisionType, failedCommandOutputs); err != nil {
		return stepProgressed, err
	}

	err := e.db.TransitionRunNodeStatus(ctx, node.ID, model.RunNodeStatusRunning, model.RunNodeStatusCompleted,
		store.RunNodeTransitionOptions{WorkflowRunID: runID})
	if err != nil {
		if errors.Is(err, model.ErrPrecondition) {
			return stepRetryClaim, nil
		}
		return stepProgressed, err
	}
	node.Status = model.RunNodeStatusCompleted

	e.metrics.ObserveStep(node.NodeKey, "completed", time.Since(started))
	e.metrics.AddTokens(node.NodeKey, node.Provider, result.TokensUsed)
	e.emit(runID, node.ID, node.NodeKey, node.Attempt, "node_completed", map[string]any{"decision": string(decisionType), "tokens": result.TokensUsed})

	if node.NodeRole == model.NodeRoleSpawner {
		if joinEdge := e.firstJoinEdge(ctx, node); joinEdge != 0 {
			if _, jerr := e.joins.OnSpawnerCompleted(ctx, runID, node, joinEdge); jerr != nil {
				return stepProgressed, jerr
			}
		}
	}

	if err := e.requeueCompletedEdgeTarget(ctx, runID, node, decisionType); err != nil {
		return stepProgressed, err
	}

	return stepProgressed, nil
}

// firstJoinEdge resolves the spawner's paired join node: the target of
// its one outgoing static success edge (the paired join is wired by
// the tree definition, not dynamically, per spec §4.9).
func (e *Executor) firstJoinEdge(ctx context.Context, node model.RunNode) int64 {
	edges, err := e.db.EdgesFrom(ctx, node.RunID, node.ID)
	if err != nil {
		return 0
	}
	for _, edge := range edges {
		if edge.RouteOn == model.RouteOnSuccess && edge.EdgeKind == model.EdgeKindStatic {
			return edge.TargetID
		}
	}
	return 0
}

// requeueCompletedEdgeTarget resolves the edge node routes through
// given decision and, if its target already holds a terminal
// `completed` status (a loop-back target revisited on retry), requeues
// it to `pending` so the selector picks it up again (spec §4.7 step 4).
func (e *Executor) requeueCompletedEdgeTarget(ctx context.Context, runID int64, node model.RunNode, decision model.DecisionType) error {
	edges, err := e.db.EdgesFrom(ctx, runID, node.ID)
	if err != nil {
		return fmt.Errorf("edges from run_node %d: %w", node.ID, err)
	}
	edge := selector.SelectEdge(edges, node, decision)
	if edge == nil {
		return nil
	}
	target, err := e.db.GetRunNode(ctx, edge.TargetID)
	if err != nil {
		return fmt.Errorf("get edge target %d: %w", edge.TargetID, err)
	}
	if target.Status != model.RunNodeStatusCompleted {
		return nil
	}
	err = e.db.TransitionRunNodeStatus(ctx, target.ID, model.RunNodeStatusCompleted, model.RunNodeStatusPending,
		store.RunNodeTransitionOptions{WorkflowRunID: runID})
	if err != nil && !errors.Is(err, model.ErrPrecondition) {
		return fmt.Errorf("requeue run_node %d: %w", target.ID, err)
	}
	return nil
}

func (e *Executor) onFailure(ctx context.Context, runID int64, node model.RunNode, started time.Time, cause error, failedCommandOutputs []string) (stepOutcome, error) {
	reason := cause.Error()
	tokensUsed := 0
	var perr *provider.Error
	if pr, ok := provider.AsError(cause); ok {
		perr = pr
	}
	if prerr, ok := asPhaseRunError(cause); ok {
		tokensUsed = prerr.TokensUsed
		if pr, ok := provider.AsError(prerr.Cause); ok {
			perr = pr
			reason = pr.Error()
		}
	}

	failurePayload, _ := json.Marshal(map[string]any{
		"failureReason": reason,
		"attempt":       node.Attempt,
		"maxRetries":    node.MaxRetries,
	})
	if _, err := e.db.InsertArtifact(ctx, model.PhaseArtifact{
		RunID: runID, RunNodeID: node.ID, Attempt: node.Attempt,
		ArtifactType: model.ArtifactTypeLog, ContentType: model.ContentTypeJSON,
		Content: string(failurePayload),
	}); err != nil {
		return stepProgressed, fmt.Errorf("persist failure artifact for run_node %d: %w", node.ID, err)
	}

	if err := e.diag.BuildAndRecord(ctx, runID, node.ID, node.Attempt, node, tokensUsed, model.DecisionType(""), failedCommandOutputs); err != nil {
		return stepProgressed, err
	}

	classification := "internal"
	if perr != nil {
		classification = perr.Classification
	}
	e.metrics.ObserveStep(node.NodeKey, "failed", time.Since(started))
	e.metrics.IncRetry(node.NodeKey, classification)
	e.emit(runID, node.ID, node.NodeKey, node.Attempt, "node_failed", map[string]any{"reason": reason, "classification": classification})

	if node.Attempt <= node.MaxRetries {
		err := e.db.TransitionRunNodeStatus(ctx, node.ID, model.RunNodeStatusRunning, model.RunNodeStatusFailed,
			store.RunNodeTransitionOptions{WorkflowRunID: runID})
		if err != nil && !errors.Is(err, model.ErrPrecondition) {
			return stepProgressed, err
		}
		retrySummary := fmt.Sprintf("attempt %d failed (%s): %s", node.Attempt, classification, reason)
		if _, err := e.db.InsertArtifact(ctx, model.PhaseArtifact{
			RunID: runID, RunNodeID: node.ID, Attempt: node.Attempt,
			ArtifactType: model.ArtifactTypeNote, ContentType: model.ContentTypeText,
			Content: retrySummary,
		}); err != nil {
			return stepProgressed, fmt.Errorf("persist retry summary artifact for run_node %d: %w", node.ID, err)
		}
		nextID, err := e.db.InsertRetryAttempt(ctx, node)
		if err != nil {
			return stepProgressed, fmt.Errorf("insert retry attempt for %s: %w", node.NodeKey, err)
		}
		if err := e.db.TransitionRunNodeStatus(ctx, nextID, model.RunNodeStatusPending, model.RunNodeStatusRunning,
			store.RunNodeTransitionOptions{WorkflowRunID: runID, RequiredRunStatuses: []model.RunStatus{model.RunStatusRunning}}); err != nil && !errors.Is(err, model.ErrPrecondition) {
			return stepProgressed, err
		}
		return stepProgressed, nil
	}

	err := e.db.TransitionRunNodeStatus(ctx, node.ID, model.RunNodeStatusRunning, model.RunNodeStatusFailed,
		store.RunNodeTransitionOptions{WorkflowRunID: runID})
	if err != nil && !errors.Is(err, model.ErrPrecondition) {
		return stepProgressed, err
	}
	return stepProgressed, nil
}

func asPhaseRunError(err error) (*phaserunner.PhaseRunError, bool) {
	var pe *phaserunner.PhaseRunError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func (e *Executor) completeRun(ctx context.Context, runID int64, status model.RunStatus) (stepOutcome, error) {
	run, err := e.db.GetRun(ctx, runID)
	if err != nil {
		return stepProgressed, err
	}
	err = e.db.TransitionWorkflowRunStatus(ctx, runID, run.Status, status)
	if err != nil {
		if errors.Is(err, model.ErrPrecondition) {
			return stepRetryClaim, nil
		}
		return stepProgressed, err
	}
	e.metrics.IncRunTerminal(string(status))
	e.emit(runID, 0, "", 0, "run_terminal", map[string]any{"status": string(status)})
	if e.onTerm != nil {
		e.onTerm(ctx, runID, status)
	}
	return stepTerminal, nil
}

func (e *Executor) failOnStepLimit(ctx context.Context, run *model.WorkflowRun) error {
	latest, err := e.db.LatestAttemptsByRun(ctx, run.ID)
	if err != nil {
		return err
	}
	var live *model.RunNode
	for i := range latest {
		if !latest[i].Status.IsTerminal() {
			live = &latest[i]
			break
		}
	}
	if live != nil {
		payload, _ := json.Marshal(map[string]any{"reason": "limit_exceeded", "max_steps": run.MaxSteps})
		_, _ = e.db.InsertArtifact(ctx, model.PhaseArtifact{
			RunID: run.ID, RunNodeID: live.ID, Attempt: live.Attempt,
			ArtifactType: model.ArtifactTypeLog, ContentType: model.ContentTypeJSON,
			Content: string(payload),
		})
		from := live.Status
		if from == model.RunNodeStatusPending || from == model.RunNodeStatusRunning {
			_ = e.db.TransitionRunNodeStatus(ctx, live.ID, from, model.RunNodeStatusFailed, store.RunNodeTransitionOptions{WorkflowRunID: run.ID})
		}
	}
	_, err = e.completeRun(ctx, run.ID, model.RunStatusFailed)
	return err
}
