package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hansjm10/alphred/internal/model"
)

// TreeNodeDef and TreeEdgeDef describe a tree version before it is
// inserted; the planner's YAML loader (internal/planner) produces these
// from an authored tree definition.
type TreeNodeDef struct {
	NodeKey              string
	SequenceIndex        int
	NodeType             model.NodeType
	NodeRole             model.NodeRole
	Provider             string
	Model                string
	PromptTemplateID     string
	ExecutionPermissions string
	ErrorHandlerConfig   string
	MaxRetries           int
	MaxChildren          int
}

type TreeEdgeDef struct {
	SourceKey  string
	TargetKey  string
	RouteOn    model.RouteOn
	Priority   int
	Auto       bool
	GuardField string
	GuardOp    model.ComparisonOp
	GuardValue string
}

// CreateDraftTree inserts a new draft version of treeKey (version =
// max(existing)+1, starting at 1), along with its nodes and edges, in
// one transaction. Returns model.ErrPrecondition if a draft already
// exists for treeKey (at most one draft per tree_key, spec §3).
func (d *DB) CreateDraftTree(ctx context.Context, treeKey, name string, nodes []TreeNodeDef, edges []TreeEdgeDef) (*model.WorkflowTree, error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var draftCount int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workflow_trees WHERE tree_key = ? AND status = 'draft'`, treeKey,
	).Scan(&draftCount); err != nil {
		return nil, fmt.Errorf("check existing draft: %w", err)
	}
	if draftCount > 0 {
		return nil, fmt.Errorf("%w: tree_key=%s already has a draft", model.ErrPrecondition, treeKey)
	}

	var maxVersion sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(version) FROM workflow_trees WHERE tree_key = ?`, treeKey,
	).Scan(&maxVersion); err != nil {
		return nil, fmt.Errorf("max version: %w", err)
	}
	version := 1
	if maxVersion.Valid {
		version = int(maxVersion.Int64) + 1
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO workflow_trees (tree_key, version, status, name) VALUES (?, ?, 'draft', ?)`,
		treeKey, version, name)
	if err != nil {
		return nil, fmt.Errorf("insert tree: %w", err)
	}
	treeID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	nodeIDs := make(map[string]int64, len(nodes))
	for _, n := range nodes {
		r, err := tx.ExecContext(ctx,
			`INSERT INTO tree_nodes (tree_id, node_key, sequence_index, node_type, node_role, provider, model,
				prompt_template_id, execution_permissions, error_handler_config, max_retries, max_children)
			 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			treeID, n.NodeKey, n.SequenceIndex, string(n.NodeType), string(n.NodeRole), n.Provider, n.Model,
			n.PromptTemplateID, orDefault(n.ExecutionPermissions, "{}"), orDefault(n.ErrorHandlerConfig, "{}"),
			n.MaxRetries, n.MaxChildren)
		if err != nil {
			return nil, fmt.Errorf("insert tree_node %s: %w", n.NodeKey, err)
		}
		id, err := r.LastInsertId()
		if err != nil {
			return nil, err
		}
		nodeIDs[n.NodeKey] = id
	}

	for _, e := range edges {
		srcID, ok := nodeIDs[e.SourceKey]
		if !ok {
			return nil, fmt.Errorf("edge references unknown source node_key=%s", e.SourceKey)
		}
		tgtID, ok := nodeIDs[e.TargetKey]
		if !ok {
			return nil, fmt.Errorf("edge references unknown target node_key=%s", e.TargetKey)
		}
		auto := 0
		if e.Auto {
			auto = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tree_edges (tree_id, source_id, target_id, route_on, priority, auto, guard_field, guard_op, guard_value)
			 VALUES (?,?,?,?,?,?,?,?,?)`,
			treeID, srcID, tgtID, string(e.RouteOn), e.Priority, auto, e.GuardField, string(e.GuardOp), e.GuardValue); err != nil {
			return nil, fmt.Errorf("insert tree_edge %s->%s: %w", e.SourceKey, e.TargetKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return d.GetTreeByID(ctx, treeID)
}

// PublishTree flips a draft tree to published. Fails with
// model.ErrPrecondition if the tree is not currently a draft.
func (d *DB) PublishTree(ctx context.Context, treeID int64) error {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE workflow_trees SET status = 'published', updated_at = ? WHERE id = ? AND status = 'draft'`,
		nowUTC(), treeID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: tree=%d is not a draft", model.ErrPrecondition, treeID)
	}
	return nil
}

// GetTreeByID loads a WorkflowTree row.
func (d *DB) GetTreeByID(ctx context.Context, treeID int64) (*model.WorkflowTree, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, tree_key, version, status, name, created_at, updated_at FROM workflow_trees WHERE id = ?`, treeID)
	return scanTree(row)
}

// GetLatestPublishedTree finds the highest-version published tree for
// treeKey. Returns model.ErrWorkflowTreeNotFound (wrapped in an
// AlphredError) when none exists.
func (d *DB) GetLatestPublishedTree(ctx context.Context, treeKey string) (*model.WorkflowTree, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, tree_key, version, status, name, created_at, updated_at
		 FROM workflow_trees WHERE tree_key = ? AND status = 'published' ORDER BY version DESC LIMIT 1`, treeKey)
	t, err := scanTree(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewError(model.ErrWorkflowTreeNotFound, fmt.Sprintf("no published tree for key %q", treeKey))
	}
	return t, err
}

func scanTree(row *sql.Row) (*model.WorkflowTree, error) {
	var t model.WorkflowTree
	var status string
	if err := row.Scan(&t.ID, &t.TreeKey, &t.Version, &status, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = model.TreeStatus(status)
	return &t, nil
}

// ListTreeNodes returns the nodes of treeID ordered by sequence_index.
func (d *DB) ListTreeNodes(ctx context.Context, treeID int64) ([]model.TreeNode, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, tree_id, node_key, sequence_index, node_type, node_role, provider, model,
		        prompt_template_id, execution_permissions, error_handler_config, max_retries, max_children
		 FROM tree_nodes WHERE tree_id = ? ORDER BY sequence_index`, treeID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.TreeNode
	for rows.Next() {
		var n model.TreeNode
		var nodeType, nodeRole string
		if err := rows.Scan(&n.ID, &n.TreeID, &n.NodeKey, &n.SequenceIndex, &nodeType, &nodeRole, &n.Provider, &n.Model,
			&n.PromptTemplateID, &n.ExecutionPermissions, &n.ErrorHandlerConfig, &n.MaxRetries, &n.MaxChildren); err != nil {
			return nil, err
		}
		n.NodeType, n.NodeRole = model.NodeType(nodeType), model.NodeRole(nodeRole)
		out = append(out, n)
	}
	return out, rows.Err()
}

// ListTreeEdges returns the edges of treeID.
func (d *DB) ListTreeEdges(ctx context.Context, treeID int64) ([]model.TreeEdge, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, tree_id, source_id, target_id, route_on, priority, auto, guard_field, guard_op, guard_value
		 FROM tree_edges WHERE tree_id = ? ORDER BY source_id, route_on, priority`, treeID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.TreeEdge
	for rows.Next() {
		var e model.TreeEdge
		var routeOn, guardOp string
		var auto int
		if err := rows.Scan(&e.ID, &e.TreeID, &e.SourceID, &e.TargetID, &routeOn, &e.Priority, &auto,
			&e.GuardField, &guardOp, &e.GuardValue); err != nil {
			return nil, err
		}
		e.RouteOn, e.GuardOp, e.Auto = model.RouteOn(routeOn), model.ComparisonOp(guardOp), auto != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
