// Package planner is the planner/materializer (C2): loads authored tree
// definitions and turns a published tree version into a runnable
// workflow_run snapshot.
package planner

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hansjm10/alphred/internal/model"
	"github.com/hansjm10/alphred/internal/store"
)

// Planner materializes runs from published tree versions.
type Planner struct {
	db *store.DB
}

// New builds a Planner over db.
func New(db *store.DB) *Planner {
	return &Planner{db: db}
}

// MaterializeRun locates the latest published version of treeKey and
// instantiates a new run: a workflow_runs row, one run_nodes row per
// tree node (attempt=1, config copied verbatim), and run_node_edges
// mirroring tree_edges. sequence_index is preserved; sequence_path is
// initialized to the node's own index and lineage_depth to 0 (spec
// §4.2) — dynamically spawned children extend both fields later via
// the join coordinator.
func (p *Planner) MaterializeRun(ctx context.Context, treeKey string, maxSteps int) (*model.WorkflowRun, error) {
	tree, err := p.db.GetLatestPublishedTree(ctx, treeKey)
	if err != nil {
		return nil, err
	}

	nodes, err := p.db.ListTreeNodes(ctx, tree.ID)
	if err != nil {
		return nil, fmt.Errorf("list tree_nodes for tree %d: %w", tree.ID, err)
	}
	edges, err := p.db.ListTreeEdges(ctx, tree.ID)
	if err != nil {
		return nil, fmt.Errorf("list tree_edges for tree %d: %w", tree.ID, err)
	}

	run, err := p.db.CreateRun(ctx, tree.ID, maxSteps)
	if err != nil {
		return nil, fmt.Errorf("create workflow_run for tree %d: %w", tree.ID, err)
	}

	runNodeIDByTreeNodeID := make(map[int64]int64, len(nodes))
	for _, n := range nodes {
		treeNodeID := n.ID
		id, err := p.db.InsertRunNode(ctx, store.NewRunNode{
			RunID:                run.ID,
			TreeNodeID:           &treeNodeID,
			NodeKey:              n.NodeKey,
			Attempt:              1,
			NodeType:             n.NodeType,
			NodeRole:             n.NodeRole,
			Provider:             n.Provider,
			Model:                n.Model,
			Prompt:               n.PromptTemplateID,
			ExecutionPermissions: n.ExecutionPermissions,
			MaxRetries:           n.MaxRetries,
			MaxChildren:          n.MaxChildren,
			SequenceIndex:        n.SequenceIndex,
			SequencePath:         strconv.Itoa(n.SequenceIndex),
			LineageDepth:         0,
		})
		if err != nil {
			return nil, fmt.Errorf("materialize run_node %s: %w", n.NodeKey, err)
		}
		runNodeIDByTreeNodeID[n.ID] = id
	}

	for _, e := range edges {
		srcID, ok := runNodeIDByTreeNodeID[e.SourceID]
		if !ok {
			return nil, fmt.Errorf("tree_edge %d references unmapped source tree_node %d", e.ID, e.SourceID)
		}
		tgtID, ok := runNodeIDByTreeNodeID[e.TargetID]
		if !ok {
			return nil, fmt.Errorf("tree_edge %d references unmapped target tree_node %d", e.ID, e.TargetID)
		}
		if _, err := p.db.InsertRunNodeEdge(ctx, model.RunNodeEdge{
			RunID:      run.ID,
			SourceID:   srcID,
			TargetID:   tgtID,
			RouteOn:    e.RouteOn,
			Priority:   e.Priority,
			Auto:       e.Auto,
			GuardField: e.GuardField,
			GuardOp:    e.GuardOp,
			GuardValue: e.GuardValue,
			EdgeKind:   model.EdgeKindStatic,
		}); err != nil {
			return nil, fmt.Errorf("materialize run_node_edge %d->%d: %w", srcID, tgtID, err)
		}
	}

	return run, nil
}
