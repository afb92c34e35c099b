package planner

import (
	"context"
	"fmt"

	"github.com/hansjm10/alphred/internal/store"
)

// CreateDraft loads an authored tree file and inserts it as a new draft
// version of its tree_key.
func (p *Planner) CreateDraft(ctx context.Context, path string) (int64, error) {
	tf, err := LoadTreeFile(path)
	if err != nil {
		return 0, err
	}
	treeKey, name, nodes, edges := tf.ToDraftArgs()
	tree, err := p.db.CreateDraftTree(ctx, treeKey, name, nodes, edges)
	if err != nil {
		return 0, fmt.Errorf("create draft for %s: %w", treeKey, err)
	}
	return tree.ID, nil
}

// Publish validates a draft tree's structural invariants (every agent
// node reachable, every join node fed by at least one spawner-paired
// edge) and flips it to published. Validation beyond what the
// CHECK/trigger schema already enforces belongs here rather than in
// the store layer, matching the teacher's separation of storage
// mechanics from business rules.
func (p *Planner) Publish(ctx context.Context, treeID int64) error {
	nodes, err := p.db.ListTreeNodes(ctx, treeID)
	if err != nil {
		return fmt.Errorf("list tree_nodes for tree %d: %w", treeID, err)
	}
	edges, err := p.db.ListTreeEdges(ctx, treeID)
	if err != nil {
		return fmt.Errorf("list tree_edges for tree %d: %w", treeID, err)
	}
	if err := validatePublishable(nodes, edges); err != nil {
		return fmt.Errorf("tree %d is not publishable: %w", treeID, err)
	}
	return p.db.PublishTree(ctx, treeID)
}
