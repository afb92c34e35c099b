package selector

import (
	"testing"

	"github.com/hansjm10/alphred/internal/model"
)

func TestSelectEdgeAutoSuccess(t *testing.T) {
	edges := []model.RunNodeEdge{
		{ID: 1, RouteOn: model.RouteOnSuccess, Auto: true, Priority: 0},
	}
	node := model.RunNode{Status: model.RunNodeStatusCompleted}
	got := SelectEdge(edges, node, model.DecisionApproved)
	if got == nil || got.ID != 1 {
		t.Fatalf("expected auto success edge 1, got %+v", got)
	}
}

func TestSelectEdgeGuardedSuccess(t *testing.T) {
	edges := []model.RunNodeEdge{
		{ID: 1, RouteOn: model.RouteOnSuccess, GuardField: "decision_type", GuardOp: model.OpEQ, GuardValue: "approved"},
		{ID: 2, RouteOn: model.RouteOnSuccess, GuardField: "decision_type", GuardOp: model.OpEQ, GuardValue: "changes_requested"},
	}
	node := model.RunNode{Status: model.RunNodeStatusCompleted}

	got := SelectEdge(edges, node, model.DecisionApproved)
	if got == nil || got.ID != 1 {
		t.Fatalf("expected edge 1 for approved decision, got %+v", got)
	}

	got = SelectEdge(edges, node, model.DecisionChangesRequested)
	if got == nil || got.ID != 2 {
		t.Fatalf("expected edge 2 for changes_requested decision, got %+v", got)
	}
}

func TestSelectEdgeFailureRequiresRetriesExhausted(t *testing.T) {
	edges := []model.RunNodeEdge{
		{ID: 1, RouteOn: model.RouteOnFailure, Priority: 0},
	}
	stillRetrying := model.RunNode{Status: model.RunNodeStatusFailed, Attempt: 1, MaxRetries: 2}
	if got := SelectEdge(edges, stillRetrying, ""); got != nil {
		t.Fatalf("failure edge should not fire while retries remain, got %+v", got)
	}

	exhausted := model.RunNode{Status: model.RunNodeStatusFailed, Attempt: 3, MaxRetries: 2}
	got := SelectEdge(edges, exhausted, "")
	if got == nil || got.ID != 1 {
		t.Fatalf("expected failure edge 1 once retries exhausted, got %+v", got)
	}
}

func TestSelectEdgeNoMatchReturnsNil(t *testing.T) {
	edges := []model.RunNodeEdge{
		{ID: 1, RouteOn: model.RouteOnSuccess, GuardField: "decision_type", GuardOp: model.OpEQ, GuardValue: "approved"},
	}
	node := model.RunNode{Status: model.RunNodeStatusCompleted}
	if got := SelectEdge(edges, node, model.DecisionBlocked); got != nil {
		t.Fatalf("expected no edge to match, got %+v", got)
	}
}

func TestSelectEdgeOrdersSuccessBeforeFailureRegardlessOfInputOrder(t *testing.T) {
	edges := []model.RunNodeEdge{
		{ID: 2, RouteOn: model.RouteOnFailure, Priority: 0},
		{ID: 1, RouteOn: model.RouteOnSuccess, Auto: true, Priority: 5},
	}
	node := model.RunNode{Status: model.RunNodeStatusCompleted}
	got := SelectEdge(edges, node, model.DecisionApproved)
	if got == nil || got.ID != 1 {
		t.Fatalf("expected success edge 1 to win even when listed second, got %+v", got)
	}
}
