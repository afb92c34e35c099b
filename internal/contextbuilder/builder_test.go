package contextbuilder

import (
	"context"
	"path/filepath"
	"strings"
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

func TestBuildIncludesUpstreamReportInSequenceOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tree, err := db.CreateDraftTree(ctx, "ctx-flow", "ctx-flow", []store.TreeNodeDef{
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

	draftID, err := db.InsertRunNode(ctx, store.NewRunNode{RunID: run.ID, NodeKey: "draft", Attempt: 1, NodeType: model.NodeTypeAgent, NodeRole: model.NodeRoleStandard, Provider: "mock", SequenceIndex: 0})
	if err != nil {
		t.Fatalf("InsertRunNode(draft): %v", err)
	}
	reviewID, err := db.InsertRunNode(ctx, store.NewRunNode{RunID: run.ID, NodeKey: "review", Attempt: 1, NodeType: model.NodeTypeAgent, NodeRole: model.NodeRoleStandard, Provider: "mock", SequenceIndex: 1})
	if err != nil {
		t.Fatalf("InsertRunNode(review): %v", err)
	}
	edgeID, err := db.InsertRunNodeEdge(ctx, model.RunNodeEdge{RunID: run.ID, SourceID: draftID, TargetID: reviewID, RouteOn: model.RouteOnSuccess, Auto: true, EdgeKind: model.EdgeKindStatic})
	if err != nil {
		t.Fatalf("InsertRunNodeEdge: %v", err)
	}

	if _, err := db.InsertArtifact(ctx, model.PhaseArtifact{
		RunID: run.ID, RunNodeID: draftID, Attempt: 1,
		ArtifactType: model.ArtifactTypeReport, ContentType: model.ContentTypeText, Content: "draft body",
	}); err != nil {
		t.Fatalf("InsertArtifact: %v", err)
	}

	review, err := db.GetRunNode(ctx, reviewID)
	if err != nil {
		t.Fatalf("GetRunNode: %v", err)
	}

	b := New(db)
	assembled, err := b.Build(ctx, run.ID, *review, edgeID)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var found bool
	for _, env := range assembled.Envelopes {
		if env.Kind == "upstream_report" && strings.Contains(env.Content, "draft body") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an upstream_report envelope containing the draft artifact, got %+v", assembled.Envelopes)
	}
	if len(assembled.Manifest) != 1 || !assembled.Manifest[0].Included {
		t.Fatalf("expected one included manifest entry, got %+v", assembled.Manifest)
	}
	if assembled.Manifest[0].SourceNodeKey != "draft" {
		t.Fatalf("expected manifest source_node_key=draft, got %q", assembled.Manifest[0].SourceNodeKey)
	}
}

func TestBuildOmitsUpstreamReportWhenNoneExists(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tree, err := db.CreateDraftTree(ctx, "no-report-flow", "v1", []store.TreeNodeDef{
		{NodeKey: "only", SequenceIndex: 0, NodeType: model.NodeTypeAgent, NodeRole: model.NodeRoleStandard, Provider: "mock"},
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
	nodeID, err := db.InsertRunNode(ctx, store.NewRunNode{RunID: run.ID, NodeKey: "only", Attempt: 1, NodeType: model.NodeTypeAgent, NodeRole: model.NodeRoleStandard, Provider: "mock"})
	if err != nil {
		t.Fatalf("InsertRunNode: %v", err)
	}
	node, err := db.GetRunNode(ctx, nodeID)
	if err != nil {
		t.Fatalf("GetRunNode: %v", err)
	}

	b := New(db)
	assembled, err := b.Build(ctx, run.ID, *node, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(assembled.Envelopes) != 0 {
		t.Fatalf("expected no envelopes for an entry node with no predecessors, got %+v", assembled.Envelopes)
	}
}

func TestBuildIncludesRetrySummaryOnSecondAttempt(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tree, err := db.CreateDraftTree(ctx, "retry-ctx-flow", "v1", []store.TreeNodeDef{
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
	firstID, err := db.InsertRunNode(ctx, store.NewRunNode{RunID: run.ID, NodeKey: "draft", Attempt: 1, NodeType: model.NodeTypeAgent, NodeRole: model.NodeRoleStandard, Provider: "mock"})
	if err != nil {
		t.Fatalf("InsertRunNode: %v", err)
	}
	if _, err := db.InsertArtifact(ctx, model.PhaseArtifact{
		RunID: run.ID, RunNodeID: firstID, Attempt: 1,
		ArtifactType: model.ArtifactTypeNote, ContentType: model.ContentTypeText, Content: "prior attempt summary",
	}); err != nil {
		t.Fatalf("InsertArtifact: %v", err)
	}
	first, err := db.GetRunNode(ctx, firstID)
	if err != nil {
		t.Fatalf("GetRunNode: %v", err)
	}
	secondID, err := db.InsertRetryAttempt(ctx, *first)
	if err != nil {
		t.Fatalf("InsertRetryAttempt: %v", err)
	}
	second, err := db.GetRunNode(ctx, secondID)
	if err != nil {
		t.Fatalf("GetRunNode: %v", err)
	}

	b := New(db)
	assembled, err := b.Build(ctx, run.ID, *second, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var found bool
	for _, env := range assembled.Envelopes {
		if env.Kind == "retry_summary" && strings.Contains(env.Content, "prior attempt summary") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a retry_summary envelope on attempt 2, got %+v", assembled.Envelopes)
	}
}

func TestHeadTailTruncateAppliesOnlyWhenOverLimit(t *testing.T) {
	short, rec := headTailTruncate("hello", 100)
	if rec.Applied || short != "hello" {
		t.Fatalf("expected no truncation for content under limit, got %q %+v", short, rec)
	}

	long := strings.Repeat("a", 1000)
	out, rec2 := headTailTruncate(long, 50)
	if !rec2.Applied {
		t.Fatal("expected truncation to apply when content exceeds limit")
	}
	if !strings.Contains(out, "...[truncated]...") {
		t.Fatalf("expected elision marker in truncated output, got %q", out)
	}
	if rec2.Original != 1000 {
		t.Fatalf("expected original=1000, got %d", rec2.Original)
	}
	if rec2.Dropped <= 0 {
		t.Fatalf("expected dropped > 0, got %d", rec2.Dropped)
	}
}
