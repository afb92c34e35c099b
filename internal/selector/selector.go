// Package selector is the node selector (C3): picks the next runnable
// node from a run's latest-attempt snapshot and routing decisions.
package selector

import (
	"context"
	"fmt"

	"github.com/hansjm10/alphred/internal/model"
	"github.com/hansjm10/alphred/internal/store"
)

// Verdict classifies the outcome of a selection pass.
type Verdict string

const (
	// VerdictRunnable means Node/Edges describe a node ready to execute.
	VerdictRunnable Verdict = "runnable"
	// VerdictNoRunnableSuccess means every latest attempt is terminal
	// and none failed.
	VerdictNoRunnableSuccess Verdict = "no_runnable_success"
	// VerdictNoRunnableFailure means every latest attempt is terminal
	// and at least one failed.
	VerdictNoRunnableFailure Verdict = "no_runnable_failure"
	// VerdictBlocked means no target is ready yet but the run is not
	// exhausted — awaiting an external signal or an unresolved guard.
	VerdictBlocked Verdict = "blocked"
)

// Selection is the result of one selection pass.
type Selection struct {
	Verdict    Verdict
	Node       *model.RunNode // set only when Verdict == VerdictRunnable
	SelectedBy int64          // id of the selected incoming edge, 0 if the node was already running
}

// Selector picks the next runnable node for a run.
type Selector struct {
	db *store.DB
}

// New builds a Selector over db.
func New(db *store.DB) *Selector {
	return &Selector{db: db}
}

// Select runs the §4.3 algorithm for runID.
func (s *Selector) Select(ctx context.Context, runID int64) (*Selection, error) {
	latest, err := s.db.LatestAttemptsByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("latest attempts for run %d: %w", runID, err)
	}
	if len(latest) == 0 {
		return &Selection{Verdict: VerdictNoRunnableSuccess}, nil
	}

	byID := make(map[int64]model.RunNode, len(latest))
	for _, n := range latest {
		byID[n.ID] = n
	}

	// Rule 2: an already-running node is immediately selected.
	for i := range latest {
		n := latest[i]
		if n.Status == model.RunNodeStatusRunning {
			return &Selection{Verdict: VerdictRunnable, Node: &n}, nil
		}
	}

	edges, err := s.db.ListRunNodeEdges(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list edges for run %d: %w", runID, err)
	}
	edgesBySource := make(map[int64][]model.RunNodeEdge, len(edges))
	edgesByTarget := make(map[int64][]model.RunNodeEdge, len(edges))
	for _, e := range edges {
		edgesBySource[e.SourceID] = append(edgesBySource[e.SourceID], e)
		edgesByTarget[e.TargetID] = append(edgesByTarget[e.TargetID], e)
	}
	for src := range edgesBySource {
		sortEdgesByRouteOnPriority(edgesBySource[src])
	}

	// Rule 3: for each terminal source, determine its selected edge.
	selectedEdgeBySource := make(map[int64]int64, len(latest))
	for i := range latest {
		n := latest[i]
		if !n.Status.IsTerminal() {
			continue
		}
		decision, derr := s.db.LatestRoutingDecision(ctx, n.ID)
		var decisionType model.DecisionType
		if derr == nil {
			decisionType = decision.DecisionType
		}
		if e := SelectEdge(edgesBySource[n.ID], n, decisionType); e != nil {
			selectedEdgeBySource[n.ID] = e.ID
		}
	}

	// Rule 4/5: among ready targets, pick smallest sequence_index (tie
	// break by id).
	var ready []model.RunNode
	for i := range latest {
		n := latest[i]
		if n.Status != model.RunNodeStatusPending {
			continue
		}
		if isTargetReady(n, edgesByTarget[n.ID], byID, selectedEdgeBySource) {
			ready = append(ready, n)
		}
	}
	if len(ready) > 0 {
		best := ready[0]
		for _, n := range ready[1:] {
			if n.SequenceIndex < best.SequenceIndex || (n.SequenceIndex == best.SequenceIndex && n.ID < best.ID) {
				best = n
			}
		}
		var edgeID int64
		for _, e := range edgesByTarget[best.ID] {
			if e.ID == selectedEdgeBySource[e.SourceID] {
				edgeID = e.ID
				break
			}
		}
		return &Selection{Verdict: VerdictRunnable, Node: &best, SelectedBy: edgeID}, nil
	}

	// Rule 6: nothing ready.
	allTerminal := true
	anyFailed := false
	anyUnresolved := false
	for i := range latest {
		n := latest[i]
		if !n.Status.IsTerminal() {
			allTerminal = false
		}
		if n.Status == model.RunNodeStatusFailed {
			anyFailed = true
		}
		if n.Status.IsTerminal() {
			if _, ok := selectedEdgeBySource[n.ID]; !ok && len(edgesBySource[n.ID]) > 0 {
				anyUnresolved = true
			}
		}
	}
	if allTerminal {
		if anyFailed {
			return &Selection{Verdict: VerdictNoRunnableFailure}, nil
		}
		return &Selection{Verdict: VerdictNoRunnableSuccess}, nil
	}
	_ = anyUnresolved // both blocked sub-cases resolve to VerdictBlocked; distinguishing reason lives in diagnostics
	return &Selection{Verdict: VerdictBlocked}, nil
}

// sortEdgesByRouteOnPriority orders edges the way rule 3 iterates them:
// success before failure, then ascending priority.
func sortEdgesByRouteOnPriority(edges []model.RunNodeEdge) {
	for i := 1; i < len(edges); i++ {
		for j := i; j > 0 && edgeLess(edges[j], edges[j-1]); j-- {
			edges[j], edges[j-1] = edges[j-1], edges[j]
		}
	}
}

func edgeLess(a, b model.RunNodeEdge) bool {
	if a.RouteOn != b.RouteOn {
		return a.RouteOn == model.RouteOnSuccess
	}
	return a.Priority < b.Priority
}

// SelectEdge picks the outgoing edge a terminal node routes through,
// given its (already priority-sorted, success-before-failure) outgoing
// edges and its latest routing decision. Returns nil if no edge
// applies (e.g. a failed node still within max_retries). Shared by the
// selector's rule 3 and the executor's post-completion routing step,
// so both resolve "which edge wins" identically.
func SelectEdge(edges []model.RunNodeEdge, node model.RunNode, decision model.DecisionType) *model.RunNodeEdge {
	sorted := make([]model.RunNodeEdge, len(edges))
	copy(sorted, edges)
	sortEdgesByRouteOnPriority(sorted)
	for i := range sorted {
		e := sorted[i]
		if e.RouteOn == model.RouteOnSuccess {
			if e.Auto || evaluateGuard(e, decision) {
				return &e
			}
			continue
		}
		// route_on == failure
		if node.Status == model.RunNodeStatusFailed && node.Attempt > node.MaxRetries {
			return &e
		}
	}
	return nil
}

func evaluateGuard(e model.RunNodeEdge, decision model.DecisionType) bool {
	if e.GuardField != "field=decision_type" && e.GuardField != "decision_type" {
		// Guards over arbitrary artifact fields are resolved by the
		// context assembler's manifest at context-build time; the
		// selector only resolves the well-known decision_type guard.
		return false
	}
	actual := string(decision)
	switch e.GuardOp {
	case model.OpEQ:
		return actual == e.GuardValue
	case model.OpNE:
		return actual != e.GuardValue
	default:
		return false
	}
}

func isTargetReady(target model.RunNode, incoming []model.RunNodeEdge, byID map[int64]model.RunNode, selectedEdgeBySource map[int64]int64) bool {
	if len(incoming) == 0 {
		// Entry node: ready as soon as materialized.
		return true
	}
	for _, e := range incoming {
		src, ok := byID[e.SourceID]
		if !ok {
			return false
		}
		if !src.Status.IsTerminal() {
			return false
		}
		if target.NodeRole == model.NodeRoleJoin && e.EdgeKind == model.EdgeKindDynamicChildJoin {
			continue // terminal child->join edges always satisfy readiness for a join
		}
		if selectedEdgeBySource[e.SourceID] != e.ID {
			return false
		}
	}
	return true
}
