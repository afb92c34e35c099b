package store

import (
	"context"
	"fmt"

	"github.com/hansjm10/alphred/internal/model"
)

// InsertRoutingDecision records one RoutingDecision row. Spec §5 requires
// RoutingDecision rows to be inserted before the target edge is
// evaluated for the next step; callers must call this before consulting
// the selector.
func (d *DB) InsertRoutingDecision(ctx context.Context, rd model.RoutingDecision) (int64, error) {
	res, err := d.conn.ExecContext(ctx,
		`INSERT INTO routing_decisions (run_id, run_node_id, attempt, decision_type, source) VALUES (?,?,?,?,?)`,
		rd.RunID, rd.RunNodeID, rd.Attempt, string(rd.DecisionType), rd.Source)
	if err != nil {
		return 0, fmt.Errorf("insert routing_decision: %w", err)
	}
	return res.LastInsertId()
}

// LatestRoutingDecision returns the most recent routing decision for
// runNodeID across all attempts, or sql.ErrNoRows if none exists.
func (d *DB) LatestRoutingDecision(ctx context.Context, runNodeID int64) (*model.RoutingDecision, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, run_id, run_node_id, attempt, decision_type, source, created_at
		 FROM routing_decisions WHERE run_node_id = ? ORDER BY id DESC LIMIT 1`, runNodeID)
	var rd model.RoutingDecision
	var decisionType string
	if err := row.Scan(&rd.ID, &rd.RunID, &rd.RunNodeID, &rd.Attempt, &decisionType, &rd.Source, &rd.CreatedAt); err != nil {
		return nil, err
	}
	rd.DecisionType = model.DecisionType(decisionType)
	return &rd, nil
}
