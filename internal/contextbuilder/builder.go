package contextbuilder

import (
	"context"
	"fmt"

	"github.com/hansjm10/alphred/internal/model"
	"github.com/hansjm10/alphred/internal/store"
)

// Builder assembles context handoffs for a node about to be invoked.
type Builder struct {
	db *store.DB
}

// New builds a Builder over db.
func New(db *store.DB) *Builder {
	return &Builder{db: db}
}

// Build assembles the context for target, given the edge id the
// selector chose to reach it (0 if target is the run's entry node).
func (b *Builder) Build(ctx context.Context, runID int64, target model.RunNode, selectedEdgeID int64) (*Assembled, error) {
	out := &Assembled{}
	remaining := MaxContextChars

	incoming, err := b.db.EdgesInto(ctx, runID, target.ID)
	if err != nil {
		return nil, fmt.Errorf("edges into run_node %d: %w", target.ID, err)
	}

	var selectedEdge *model.RunNodeEdge
	for i := range incoming {
		if incoming[i].ID == selectedEdgeID {
			selectedEdge = &incoming[i]
		}
	}

	// 1. Failure-route envelope.
	if selectedEdge != nil && selectedEdge.RouteOn == model.RouteOnFailure {
		env, used, err := b.buildFailureRoute(ctx, selectedEdge.SourceID, min(FailureRouteReserve, remaining))
		if err != nil {
			return nil, err
		}
		if env != nil {
			out.Envelopes = append(out.Envelopes, *env)
			remaining -= used
		}
	}

	// 2. Join summary.
	if target.NodeRole == model.NodeRoleJoin {
		env, used, err := b.buildJoinSummary(ctx, target.ID, min(JoinSummaryReserve, remaining))
		if err != nil {
			return nil, err
		}
		if env != nil {
			out.Envelopes = append(out.Envelopes, *env)
			remaining -= used
		}
	}

	// 3. Upstream reports, topological predecessor order (by source
	// sequence_index ascending), capped at MaxUpstreamArtifacts.
	reports, manifest, used, err := b.buildUpstreamReports(ctx, runID, incoming, remaining)
	if err != nil {
		return nil, err
	}
	out.Envelopes = append(out.Envelopes, reports...)
	out.Manifest = append(out.Manifest, manifest...)
	remaining -= used

	// 4. Retry summary.
	if target.Attempt > 1 {
		env, used, err := b.buildRetrySummary(ctx, target, min(RetrySummaryReserve, remaining))
		if err != nil {
			return nil, err
		}
		if env != nil {
			out.Envelopes = append(out.Envelopes, *env)
			remaining -= used
		}
	}

	out.TotalChars = MaxContextChars - remaining
	return out, nil
}

func (b *Builder) buildFailureRoute(ctx context.Context, sourceRunNodeID int64, reserve int) (*Envelope, int, error) {
	src, err := b.db.GetRunNode(ctx, sourceRunNodeID)
	if err != nil {
		return nil, 0, fmt.Errorf("get source run_node %d: %w", sourceRunNodeID, err)
	}
	failure, err := b.db.LatestArtifactAnyAttempt(ctx, sourceRunNodeID, model.ArtifactTypeLog)
	if err != nil {
		return nil, 0, nil // no failure artifact yet, nothing to include
	}
	content := failure.Content
	if retrySummary, rerr := b.db.LatestArtifactAnyAttempt(ctx, sourceRunNodeID, model.ArtifactTypeNote); rerr == nil && src.Attempt > 1 {
		content += "\n\n" + retrySummary.Content
	}
	truncated, rec := headTailTruncate(content, reserve)
	env := Envelope{Kind: "failure_route", Content: truncated, SHA256: sha256Hex(truncated), Truncation: rec}
	return &env, rec.Included, nil
}

func (b *Builder) buildJoinSummary(ctx context.Context, joinRunNodeID int64, reserve int) (*Envelope, int, error) {
	barriers, err := b.db.BarriersForJoinNode(ctx, joinRunNodeID)
	if err != nil {
		return nil, 0, fmt.Errorf("barriers for join %d: %w", joinRunNodeID, err)
	}
	if len(barriers) == 0 {
		return nil, 0, nil
	}
	barrier := barriers[0]
	for _, bb := range barriers {
		if bb.Status == model.BarrierStatusReady {
			barrier = bb
			break
		}
	}
	children, err := b.db.ChildrenOfSpawner(ctx, barrier.SpawnerRunNodeID)
	if err != nil {
		return nil, 0, fmt.Errorf("children of spawner %d: %w", barrier.SpawnerRunNodeID, err)
	}
	content := fmt.Sprintf("join barrier %d: expected=%d terminal=%d completed=%d failed=%d\n",
		barrier.ID, barrier.ExpectedChildren, barrier.TerminalChildren, barrier.CompletedChildren, barrier.FailedChildren)
	for _, c := range children {
		preview := ""
		if a, aerr := b.db.LatestArtifactAnyAttempt(ctx, c.ID, model.ArtifactTypeReport); aerr == nil {
			preview = headPreview(a.Content, 160)
		}
		content += fmt.Sprintf("- run_node=%d status=%s preview=%q\n", c.ID, c.Status, preview)
	}
	truncated, rec := headTailTruncate(content, reserve)
	env := Envelope{Kind: "join_summary", Content: truncated, SHA256: sha256Hex(truncated), Truncation: rec}
	return &env, rec.Included, nil
}

func (b *Builder) buildUpstreamReports(ctx context.Context, runID int64, incoming []model.RunNodeEdge, remaining int) ([]Envelope, []ManifestEntry, int, error) {
	type predecessor struct {
		node model.RunNode
	}
	var preds []predecessor
	for _, e := range incoming {
		n, err := b.db.GetRunNode(ctx, e.SourceID)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("get predecessor run_node %d: %w", e.SourceID, err)
		}
		preds = append(preds, predecessor{node: *n})
	}
	// topological predecessor order: ascending sequence_index
	for i := 1; i < len(preds); i++ {
		for j := i; j > 0 && preds[j].node.SequenceIndex < preds[j-1].node.SequenceIndex; j-- {
			preds[j], preds[j-1] = preds[j-1], preds[j]
		}
	}
	if len(preds) > MaxUpstreamArtifacts {
		preds = preds[:MaxUpstreamArtifacts]
	}

	var envelopes []Envelope
	var manifest []ManifestEntry
	used := 0
	for _, p := range preds {
		art, err := b.db.LatestArtifactAnyAttempt(ctx, p.node.ID, model.ArtifactTypeReport)
		if err != nil {
			continue
		}
		left := remaining - used
		if left < MinRemaining {
			manifest = append(manifest, ManifestEntry{ArtifactID: art.ID, SourceNodeKey: p.node.NodeKey, Chars: len([]rune(art.Content)), Included: false, Overflow: true})
			continue
		}
		artifactLimit := MaxCharsPerArtifact
		if left < artifactLimit {
			artifactLimit = left
		}
		truncated, rec := headTailTruncate(art.Content, artifactLimit)
		envelopes = append(envelopes, Envelope{Kind: "upstream_report", Content: truncated, SHA256: sha256Hex(truncated), Truncation: rec})
		manifest = append(manifest, ManifestEntry{ArtifactID: art.ID, SourceNodeKey: p.node.NodeKey, Chars: rec.Included, Included: true, Overflow: false})
		used += rec.Included
	}
	return envelopes, manifest, used, nil
}

func (b *Builder) buildRetrySummary(ctx context.Context, target model.RunNode, reserve int) (*Envelope, int, error) {
	attempts, err := b.db.AllAttempts(ctx, target.RunID, target.NodeKey)
	if err != nil {
		return nil, 0, fmt.Errorf("all attempts for %s: %w", target.NodeKey, err)
	}
	var prev *model.RunNode
	for i := range attempts {
		if attempts[i].Attempt == target.Attempt-1 {
			prev = &attempts[i]
		}
	}
	if prev == nil {
		return nil, 0, nil
	}
	summary, err := b.db.LatestArtifactAnyAttempt(ctx, prev.ID, model.ArtifactTypeNote)
	if err != nil {
		return nil, 0, nil
	}
	truncated, rec := headTailTruncate(summary.Content, reserve)
	env := Envelope{Kind: "retry_summary", Content: truncated, SHA256: sha256Hex(truncated), Truncation: rec}
	return &env, rec.Included, nil
}

func headPreview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
