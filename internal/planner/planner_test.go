package planner

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hansjm10/alphred/internal/model"
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

func TestCreateDraftAndPublishFromFile(t *testing.T) {
	db := openTestDB(t)
	p := New(db)
	ctx := context.Background()

	path := writeTreeFile(t, `
tree_key: review-flow
name: Review Flow
nodes:
  - key: draft
    type: agent
    provider: mock
  - key: review
    type: agent
    provider: mock
edges:
  - from: draft
    to: review
    route_on: success
    auto: true
`)
	treeID, err := p.CreateDraft(ctx, path)
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	if err := p.Publish(ctx, treeID); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	tree, err := db.GetLatestPublishedTree(ctx, "review-flow")
	if err != nil {
		t.Fatalf("GetLatestPublishedTree: %v", err)
	}
	if tree.ID != treeID {
		t.Fatalf("expected published tree id %d, got %d", treeID, tree.ID)
	}
}

func TestPublishRejectsNodeWithNoIncomingEdge(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tree, err := db.CreateDraftTree(ctx, "orphan-flow", "v1", []store.TreeNodeDef{
		{NodeKey: "draft", SequenceIndex: 0, NodeType: model.NodeTypeAgent, NodeRole: model.NodeRoleStandard, Provider: "mock"},
		{NodeKey: "orphan", SequenceIndex: 1, NodeType: model.NodeTypeAgent, NodeRole: model.NodeRoleStandard, Provider: "mock"},
	}, nil)
	if err != nil {
		t.Fatalf("CreateDraftTree: %v", err)
	}

	p := New(db)
	if err := p.Publish(ctx, tree.ID); err == nil {
		t.Fatal("expected publish to reject a non-entry node with no incoming edge")
	}
}

func TestPublishRejectsSpawnerWithoutJoin(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tree, err := db.CreateDraftTree(ctx, "lonely-spawner", "v1", []store.TreeNodeDef{
		{NodeKey: "spawn", SequenceIndex: 0, NodeType: model.NodeTypeAgent, NodeRole: model.NodeRoleSpawner, Provider: "mock"},
		{NodeKey: "other", SequenceIndex: 1, NodeType: model.NodeTypeAgent, NodeRole: model.NodeRoleStandard, Provider: "mock"},
	}, []store.TreeEdgeDef{
		{SourceKey: "spawn", TargetKey: "other", RouteOn: model.RouteOnSuccess, Auto: true},
	})
	if err != nil {
		t.Fatalf("CreateDraftTree: %v", err)
	}

	p := New(db)
	if err := p.Publish(ctx, tree.ID); err == nil {
		t.Fatal("expected publish to reject a spawner with no reachable join node")
	}
}

func TestMaterializeRunCopiesNodesAndEdges(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tree, err := db.CreateDraftTree(ctx, "materialize-flow", "v1", []store.TreeNodeDef{
		{NodeKey: "draft", SequenceIndex: 0, NodeType: model.NodeTypeAgent, NodeRole: model.NodeRoleStandard, Provider: "mock", MaxRetries: 2},
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

	p := New(db)
	run, err := p.MaterializeRun(ctx, "materialize-flow", 25)
	if err != nil {
		t.Fatalf("MaterializeRun: %v", err)
	}
	if run.MaxSteps != 25 {
		t.Fatalf("expected max_steps=25, got %d", run.MaxSteps)
	}

	nodes, err := db.LatestAttemptsByRun(ctx, run.ID)
	if err != nil || len(nodes) != 2 {
		t.Fatalf("LatestAttemptsByRun = %+v, %v", nodes, err)
	}
	var draft model.RunNode
	for _, n := range nodes {
		if n.NodeKey == "draft" {
			draft = n
		}
	}
	if draft.MaxRetries != 2 {
		t.Fatalf("expected draft max_retries copied as 2, got %d", draft.MaxRetries)
	}
	if draft.SequencePath != "0" {
		t.Fatalf("expected entry node sequence_path=\"0\", got %q", draft.SequencePath)
	}
}

func TestMaterializeRunUnknownTreeKeyFails(t *testing.T) {
	db := openTestDB(t)
	p := New(db)
	if _, err := p.MaterializeRun(context.Background(), "nonexistent", 10); err == nil {
		t.Fatal("expected an error for an unknown tree key")
	}
}
