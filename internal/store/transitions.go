package store

import (
	"context"
	"fmt"

	"github.com/hansjm10/alphred/internal/model"
)

// RunNodeTransitionOptions narrows a guarded run_nodes status update.
type RunNodeTransitionOptions struct {
	// WorkflowRunID, if non-zero, adds `AND run_id = ?` to the guard.
	WorkflowRunID int64
	// RequiredRunStatuses, if non-empty, adds a subquery requiring the
	// owning workflow_runs.status to be one of these values.
	RequiredRunStatuses []model.RunStatus
}

// TransitionRunNodeStatus performs the single-row atomic update
// `run_nodes SET status = to WHERE id = ? AND status = from [guards]`.
// It sets started_at on the first transition into running, completed_at
// on any transition into a terminal status, and clears both when
// transitioning back into pending. Zero rows affected is reported as
// model.ErrPrecondition, the signal the executor treats as a
// concurrency-retry condition (spec §4.1, §5).
func (d *DB) TransitionRunNodeStatus(ctx context.Context, runNodeID int64, from, to model.RunNodeStatus, opts RunNodeTransitionOptions) error {
	if !model.RunNodeTransitionAllowed(from, to) && from != to {
		return fmt.Errorf("%w: %s -> %s is not a legal run_nodes transition", model.ErrPrecondition, from, to)
	}

	setClauses := "status = ?"
	args := []any{string(to)}

	switch {
	case to == model.RunNodeStatusRunning && from != model.RunNodeStatusRunning:
		setClauses += ", started_at = COALESCE(started_at, ?)"
		args = append(args, nowUTC())
	case to.IsTerminal():
		setClauses += ", completed_at = ?"
		args = append(args, nowUTC())
	case to == model.RunNodeStatusPending:
		setClauses += ", started_at = NULL, completed_at = NULL"
	}

	query := "UPDATE run_nodes SET " + setClauses + " WHERE id = ? AND status = ?"
	args = append(args, runNodeID, string(from))

	if opts.WorkflowRunID != 0 {
		query += " AND run_id = ?"
		args = append(args, opts.WorkflowRunID)
	}
	if len(opts.RequiredRunStatuses) > 0 {
		placeholders := ""
		for i, s := range opts.RequiredRunStatuses {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			args = append(args, string(s))
			_ = s
		}
		query += fmt.Sprintf(" AND run_id IN (SELECT id FROM workflow_runs WHERE status IN (%s))", placeholders)
	}

	res, err := d.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition run node %d: %w", runNodeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition run node %d: rows affected: %w", runNodeID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: run_node=%d %s->%s", model.ErrPrecondition, runNodeID, from, to)
	}
	return nil
}

// TransitionWorkflowRunStatus performs the single-row atomic update of a
// workflow_runs status, setting completed_at on terminal transitions and
// clearing it when leaving a terminal status (e.g. a retry back to
// running). Zero rows affected is reported as model.ErrPrecondition.
func (d *DB) TransitionWorkflowRunStatus(ctx context.Context, runID int64, from, to model.RunStatus) error {
	setClauses := "status = ?"
	args := []any{string(to)}
	switch {
	case to.IsTerminal():
		setClauses += ", completed_at = ?"
		args = append(args, nowUTC())
	case from.IsTerminal():
		setClauses += ", completed_at = NULL"
	}
	if to == model.RunStatusRunning && from != model.RunStatusRunning {
		setClauses += ", started_at = COALESCE(started_at, ?)"
		args = append(args, nowUTC())
	}

	query := "UPDATE workflow_runs SET " + setClauses + " WHERE id = ? AND status = ?"
	args = append(args, runID, string(from))

	res, err := d.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition workflow run %d: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition workflow run %d: rows affected: %w", runID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: run=%d %s->%s", model.ErrPrecondition, runID, from, to)
	}
	return nil
}
