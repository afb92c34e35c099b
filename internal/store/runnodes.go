package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hansjm10/alphred/internal/model"
)

// NewRunNode describes a run_nodes row to insert, shared by the
// materializer (tree-node copies) and the fan-out coordinator
// (dynamically spawned children).
type NewRunNode struct {
	RunID                int64
	TreeNodeID            *int64
	NodeKey              string
	Attempt              int
	NodeType             model.NodeType
	NodeRole             model.NodeRole
	Provider             string
	Model                string
	Prompt               string
	ExecutionPermissions string
	MaxRetries           int
	MaxChildren          int
	SequenceIndex        int
	SequencePath         string
	LineageDepth         int
	SpawnerNodeID        *int64
	JoinNodeID           *int64
}

// InsertRunNode inserts a new pending run_nodes row.
func (d *DB) InsertRunNode(ctx context.Context, n NewRunNode) (int64, error) {
	res, err := d.conn.ExecContext(ctx,
		`INSERT INTO run_nodes (run_id, tree_node_id, node_key, attempt, node_type, node_role, provider, model, prompt,
			execution_permissions, max_retries, max_children, sequence_index, sequence_path, lineage_depth,
			spawner_node_id, join_node_id, status)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,'pending')`,
		n.RunID, n.TreeNodeID, n.NodeKey, n.Attempt, string(n.NodeType), string(n.NodeRole), n.Provider, n.Model, n.Prompt,
		orDefault(n.ExecutionPermissions, "{}"), n.MaxRetries, n.MaxChildren, n.SequenceIndex, n.SequencePath, n.LineageDepth,
		n.SpawnerNodeID, n.JoinNodeID)
	if err != nil {
		return 0, fmt.Errorf("insert run_node %s: %w", n.NodeKey, err)
	}
	return res.LastInsertId()
}

// InsertRetryAttempt inserts a new run_nodes row for the next attempt
// of an existing node_key, copying its config. Used when a failed node
// is retried (attempt N -> N+1).
func (d *DB) InsertRetryAttempt(ctx context.Context, prev model.RunNode) (int64, error) {
	return d.InsertRunNode(ctx, NewRunNode{
		RunID:                prev.RunID,
		TreeNodeID:           prev.TreeNodeID,
		NodeKey:              prev.NodeKey,
		Attempt:              prev.Attempt + 1,
		NodeType:             prev.NodeType,
		NodeRole:             prev.NodeRole,
		Provider:             prev.Provider,
		Model:                prev.Model,
		Prompt:               prev.Prompt,
		ExecutionPermissions: prev.ExecutionPermissions,
		MaxRetries:           prev.MaxRetries,
		MaxChildren:          prev.MaxChildren,
		SequenceIndex:        prev.SequenceIndex,
		SequencePath:         prev.SequencePath,
		LineageDepth:         prev.LineageDepth,
		SpawnerNodeID:        prev.SpawnerNodeID,
		JoinNodeID:           prev.JoinNodeID,
	})
}

const runNodeColumns = `id, run_id, tree_node_id, node_key, attempt, node_type, node_role, provider, model, prompt,
	execution_permissions, max_retries, max_children, sequence_index, sequence_path, lineage_depth,
	spawner_node_id, join_node_id, status, started_at, completed_at`

func scanRunNode(sc interface {
	Scan(dest ...any) error
}) (*model.RunNode, error) {
	var n model.RunNode
	var nodeType, nodeRole, status string
	var started, completed sql.NullString
	if err := sc.Scan(&n.ID, &n.RunID, &n.TreeNodeID, &n.NodeKey, &n.Attempt, &nodeType, &nodeRole, &n.Provider, &n.Model,
		&n.Prompt, &n.ExecutionPermissions, &n.MaxRetries, &n.MaxChildren, &n.SequenceIndex, &n.SequencePath, &n.LineageDepth,
		&n.SpawnerNodeID, &n.JoinNodeID, &status, &started, &completed); err != nil {
		return nil, err
	}
	n.NodeType, n.NodeRole, n.Status = model.NodeType(nodeType), model.NodeRole(nodeRole), model.RunNodeStatus(status)
	if started.Valid {
		n.StartedAt = parseTimePtr(started.String)
	}
	if completed.Valid {
		n.CompletedAt = parseTimePtr(completed.String)
	}
	return &n, nil
}

// GetRunNode loads a single run_nodes row by id.
func (d *DB) GetRunNode(ctx context.Context, id int64) (*model.RunNode, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT `+runNodeColumns+` FROM run_nodes WHERE id = ?`, id)
	return scanRunNode(row)
}

// LatestAttemptsByRun returns, for every distinct node_key in runID, the
// row with the greatest attempt (tie-break: greatest id) — the snapshot
// the node selector operates on (spec §4.3 rule 1).
func (d *DB) LatestAttemptsByRun(ctx context.Context, runID int64) ([]model.RunNode, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT `+runNodeColumns+` FROM run_nodes rn
		WHERE run_id = ? AND id = (
			SELECT id FROM run_nodes rn2
			WHERE rn2.run_id = rn.run_id AND rn2.node_key = rn.node_key
			ORDER BY rn2.attempt DESC, rn2.id DESC LIMIT 1
		)
		ORDER BY rn.sequence_index`, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.RunNode
	for rows.Next() {
		n, err := scanRunNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// AllAttempts returns every run_nodes row for (runID, nodeKey) ordered
// by attempt ascending.
func (d *DB) AllAttempts(ctx context.Context, runID int64, nodeKey string) ([]model.RunNode, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT `+runNodeColumns+` FROM run_nodes WHERE run_id = ? AND node_key = ? ORDER BY attempt`, runID, nodeKey)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.RunNode
	for rows.Next() {
		n, err := scanRunNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// ChildrenOfSpawner returns the run_nodes rows spawned by spawnerID.
func (d *DB) ChildrenOfSpawner(ctx context.Context, spawnerID int64) ([]model.RunNode, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT `+runNodeColumns+` FROM run_nodes WHERE spawner_node_id = ? ORDER BY sequence_index`, spawnerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.RunNode
	for rows.Next() {
		n, err := scanRunNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// NextSequenceIndex returns one past the highest sequence_index used in
// runID, for allocating dynamically spawned children.
func (d *DB) NextSequenceIndex(ctx context.Context, runID int64) (int, error) {
	var max sql.NullInt64
	if err := d.conn.QueryRowContext(ctx,
		`SELECT MAX(sequence_index) FROM run_nodes WHERE run_id = ?`, runID).Scan(&max); err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}
