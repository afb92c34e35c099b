package executor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hansjm10/alphred/internal/contextbuilder"
	"github.com/hansjm10/alphred/internal/diagnostics"
	"github.com/hansjm10/alphred/internal/joins"
	"github.com/hansjm10/alphred/internal/model"
	"github.com/hansjm10/alphred/internal/provider"
	"github.com/hansjm10/alphred/internal/provider/mock"
	"github.com/hansjm10/alphred/internal/selector"
	"github.com/hansjm10/alphred/internal/store"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alphred.db")
	db, err := store.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func resultEvent(content string, decision model.DecisionType) provider.Event {
	return provider.Event{
		Type:    provider.EventResult,
		Content: content,
		Metadata: map[string]any{
			"routingDecision": string(decision),
		},
	}
}

func newTestExecutor(db *store.DB, registry *provider.Registry) *Executor {
	return New(db, selector.New(db), contextbuilder.New(db), registry, diagnostics.New(db), joins.New(db))
}

// buildLinearRun materializes a two-node linear run (draft -> review,
// auto success edge) ready for the executor to drive.
func buildLinearRun(t *testing.T, db *store.DB) (runID, draftID, reviewID int64) {
	t.Helper()
	ctx := context.Background()

	tree, err := db.CreateDraftTree(ctx, "linear", "linear", []store.TreeNodeDef{
		{NodeKey: "draft", SequenceIndex: 0, NodeType: model.NodeTypeAgent, NodeRole: model.NodeRoleStandard, Provider: "mock"},
		{NodeKey: "review", SequenceIndex: 1, NodeType: model.NodeTypeAgent, NodeRole: model.NodeRoleStandard, Provider: "mock"},
	}, []store.TreeEdgeDef{
		{SourceKey: "draft", TargetKey: "review", RouteOn: model.RouteOnSuccess, Auto: true},
	})
	if err != nil {
		t.Fatalf("CreateDraftTree: %v", err)
	}
	if err := db.PublishTree(ctx, tree.ID); err != nil {
		t.Fatalf("PublishTree: %v", err)
	}
	run, err := db.CreateRun(ctx, tree.ID, 10)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	draftID, err = db.InsertRunNode(ctx, store.NewRunNode{RunID: run.ID, NodeKey: "draft", Attempt: 1, NodeType: model.NodeTypeAgent, NodeRole: model.NodeRoleStandard, Provider: "mock", SequenceIndex: 0})
	if err != nil {
		t.Fatalf("InsertRunNode(draft): %v", err)
	}
	reviewID, err = db.InsertRunNode(ctx, store.NewRunNode{RunID: run.ID, NodeKey: "review", Attempt: 1, NodeType: model.NodeTypeAgent, NodeRole: model.NodeRoleStandard, Provider: "mock", SequenceIndex: 1})
	if err != nil {
		t.Fatalf("InsertRunNode(review): %v", err)
	}
	if _, err := db.InsertRunNodeEdge(ctx, model.RunNodeEdge{RunID: run.ID, SourceID: draftID, TargetID: reviewID, RouteOn: model.RouteOnSuccess, Auto: true, EdgeKind: model.EdgeKindStatic}); err != nil {
		t.Fatalf("InsertRunNodeEdge: %v", err)
	}
	return run.ID, draftID, reviewID
}

func TestExecuteRunDrivesLinearRunToCompletion(t *testing.T) {
	db := openTestDB(t)
	registry := provider.NewRegistry()
	if err := registry.Register("mock", mock.New("mock", []provider.Event{
		resultEvent("draft content", model.DecisionApproved),
	}, nil), nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	runID, _, _ := buildLinearRun(t, db)
	exec := newTestExecutor(db, registry)

	if err := exec.ExecuteRun(context.Background(), runID); err != nil {
		t.Fatalf("ExecuteRun: %v", err)
	}

	run, err := db.GetRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != model.RunStatusCompleted {
		t.Fatalf("expected run completed, got %q", run.Status)
	}

	nodes, err := db.LatestAttemptsByRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("LatestAttemptsByRun: %v", err)
	}
	for _, n := range nodes {
		if n.Status != model.RunNodeStatusCompleted {
			t.Fatalf("expected node %s completed, got %q", n.NodeKey, n.Status)
		}
	}
}

func TestExecuteRunRetriesThenFails(t *testing.T) {
	db := openTestDB(t)
	registry := provider.NewRegistry()
	if err := registry.Register("mock", mock.New("mock", nil,
		provider.NewError(provider.ErrTimeout, "timeout", "simulated timeout", nil)), nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	tree, err := db.CreateDraftTree(ctx, "flaky", "flaky", []store.TreeNodeDef{
		{NodeKey: "draft", SequenceIndex: 0, NodeType: model.NodeTypeAgent, NodeRole: model.NodeRoleStandard, Provider: "mock", MaxRetries: 1},
	}, nil)
	if err != nil {
		t.Fatalf("CreateDraftTree: %v", err)
	}
	if err := db.PublishTree(ctx, tree.ID); err != nil {
		t.Fatalf("PublishTree: %v", err)
	}
	run, err := db.CreateRun(ctx, tree.ID, 10)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if _, err := db.InsertRunNode(ctx, store.NewRunNode{RunID: run.ID, NodeKey: "draft", Attempt: 1, NodeType: model.NodeTypeAgent, NodeRole: model.NodeRoleStandard, Provider: "mock", MaxRetries: 1}); err != nil {
		t.Fatalf("InsertRunNode: %v", err)
	}

	exec := newTestExecutor(db, registry)
	if err := exec.ExecuteRun(ctx, run.ID); err != nil {
		t.Fatalf("ExecuteRun: %v", err)
	}

	finalRun, err := db.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if finalRun.Status != model.RunStatusFailed {
		t.Fatalf("expected run failed after exhausting retries, got %q", finalRun.Status)
	}

	attempts, err := db.AllAttempts(ctx, run.ID, "draft")
	if err != nil {
		t.Fatalf("AllAttempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts (max_retries=1), got %d", len(attempts))
	}
}

func TestPauseBlocksExecuteRunAtNextBoundary(t *testing.T) {
	db := openTestDB(t)
	registry := provider.NewRegistry()
	if err := registry.Register("mock", mock.New("mock", []provider.Event{
		resultEvent("draft content", model.DecisionApproved),
	}, nil), nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	runID, _, _ := buildLinearRun(t, db)
	exec := newTestExecutor(db, registry)
	ctx := context.Background()

	// Move the run to running first so PauseRun's precondition holds,
	// then pause before ExecuteRun gets a chance to progress it.
	run, err := db.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if err := db.TransitionWorkflowRunStatus(ctx, runID, run.Status, model.RunStatusRunning); err != nil {
		t.Fatalf("TransitionWorkflowRunStatus: %v", err)
	}
	if err := exec.PauseRun(ctx, runID); err != nil {
		t.Fatalf("PauseRun: %v", err)
	}

	if err := exec.ExecuteRun(ctx, runID); err != nil {
		t.Fatalf("ExecuteRun: %v", err)
	}

	paused, err := db.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if paused.Status != model.RunStatusPaused {
		t.Fatalf("expected run to remain paused, got %q", paused.Status)
	}
}

func TestRetryRunRequeuesFailedNodes(t *testing.T) {
	db := openTestDB(t)
	registry := provider.NewRegistry()
	if err := registry.Register("mock", mock.New("mock", nil,
		provider.NewError(provider.ErrTimeout, "timeout", "simulated timeout", nil)), nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	tree, err := db.CreateDraftTree(ctx, "retry-control", "retry-control", []store.TreeNodeDef{
		{NodeKey: "draft", SequenceIndex: 0, NodeType: model.NodeTypeAgent, NodeRole: model.NodeRoleStandard, Provider: "mock"},
	}, nil)
	if err != nil {
		t.Fatalf("CreateDraftTree: %v", err)
	}
	if err := db.PublishTree(ctx, tree.ID); err != nil {
		t.Fatalf("PublishTree: %v", err)
	}
	run, err := db.CreateRun(ctx, tree.ID, 10)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if _, err := db.InsertRunNode(ctx, store.NewRunNode{RunID: run.ID, NodeKey: "draft", Attempt: 1, NodeType: model.NodeTypeAgent, NodeRole: model.NodeRoleStandard, Provider: "mock"}); err != nil {
		t.Fatalf("InsertRunNode: %v", err)
	}

	exec := newTestExecutor(db, registry)
	if err := exec.ExecuteRun(ctx, run.ID); err != nil {
		t.Fatalf("ExecuteRun: %v", err)
	}
	failed, err := db.GetRun(ctx, run.ID)
	if err != nil || failed.Status != model.RunStatusFailed {
		t.Fatalf("expected run failed before retry, got %+v, %v", failed, err)
	}

	if err := exec.RetryRun(ctx, run.ID, nil); err != nil {
		t.Fatalf("RetryRun: %v", err)
	}

	attempts, err := db.AllAttempts(ctx, run.ID, "draft")
	if err != nil || len(attempts) != 2 {
		t.Fatalf("expected a new attempt after RetryRun, got %+v, %v", attempts, err)
	}

	retried, err := db.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if retried.Status != model.RunStatusRunning {
		t.Fatalf("expected run running again after RetryRun, got %q", retried.Status)
	}
}
