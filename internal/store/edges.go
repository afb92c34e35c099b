package store

import (
	"context"
	"fmt"

	"github.com/hansjm10/alphred/internal/model"
)

// InsertRunNodeEdge materializes one edge into run_node_edges.
func (d *DB) InsertRunNodeEdge(ctx context.Context, e model.RunNodeEdge) (int64, error) {
	auto := 0
	if e.Auto {
		auto = 1
	}
	res, err := d.conn.ExecContext(ctx,
		`INSERT INTO run_node_edges (run_id, source_id, target_id, route_on, priority, auto, guard_field, guard_op, guard_value, edge_kind)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.RunID, e.SourceID, e.TargetID, string(e.RouteOn), e.Priority, auto, e.GuardField, string(e.GuardOp), e.GuardValue, string(e.EdgeKind))
	if err != nil {
		return 0, fmt.Errorf("insert run_node_edge: %w", err)
	}
	return res.LastInsertId()
}

// ListRunNodeEdges returns every edge materialized for runID.
func (d *DB) ListRunNodeEdges(ctx context.Context, runID int64) ([]model.RunNodeEdge, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, run_id, source_id, target_id, route_on, priority, auto, guard_field, guard_op, guard_value, edge_kind
		 FROM run_node_edges WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.RunNodeEdge
	for rows.Next() {
		var e model.RunNodeEdge
		var routeOn, guardOp, edgeKind string
		var auto int
		if err := rows.Scan(&e.ID, &e.RunID, &e.SourceID, &e.TargetID, &routeOn, &e.Priority, &auto,
			&e.GuardField, &guardOp, &e.GuardValue, &edgeKind); err != nil {
			return nil, err
		}
		e.RouteOn, e.GuardOp, e.Auto, e.EdgeKind = model.RouteOn(routeOn), model.ComparisonOp(guardOp), auto != 0, model.EdgeKind(edgeKind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// EdgesFrom returns the outgoing edges of sourceID ordered by
// (route_on, priority) — the order §4.3 rule 3 iterates.
func (d *DB) EdgesFrom(ctx context.Context, runID, sourceID int64) ([]model.RunNodeEdge, error) {
	all, err := d.ListRunNodeEdges(ctx, runID)
	if err != nil {
		return nil, err
	}
	var out []model.RunNodeEdge
	for _, e := range all {
		if e.SourceID == sourceID {
			out = append(out, e)
		}
	}
	return out, nil
}

// EdgesInto returns the incoming edges of targetID.
func (d *DB) EdgesInto(ctx context.Context, runID, targetID int64) ([]model.RunNodeEdge, error) {
	all, err := d.ListRunNodeEdges(ctx, runID)
	if err != nil {
		return nil, err
	}
	var out []model.RunNodeEdge
	for _, e := range all {
		if e.TargetID == targetID {
			out = append(out, e)
		}
	}
	return out, nil
}
