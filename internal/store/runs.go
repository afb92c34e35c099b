package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hansjm10/alphred/internal/model"
)

// CreateRun inserts a new pending workflow_runs row for treeID.
func (d *DB) CreateRun(ctx context.Context, treeID int64, maxSteps int) (*model.WorkflowRun, error) {
	res, err := d.conn.ExecContext(ctx,
		`INSERT INTO workflow_runs (tree_id, status, max_steps) VALUES (?, 'pending', ?)`, treeID, maxSteps)
	if err != nil {
		return nil, fmt.Errorf("insert workflow_run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return d.GetRun(ctx, id)
}

// GetRun loads a WorkflowRun by id. Returns an AlphredError wrapping
// model.ErrWorkflowRunNotFound when absent.
func (d *DB) GetRun(ctx context.Context, runID int64) (*model.WorkflowRun, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, tree_id, status, created_at, started_at, completed_at, max_steps, step_count
		 FROM workflow_runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewRunError(model.ErrWorkflowRunNotFound, fmt.Sprintf("run %d not found", runID), runID)
	}
	return r, err
}

func scanRun(row *sql.Row) (*model.WorkflowRun, error) {
	var r model.WorkflowRun
	var status string
	var started, completed sql.NullString
	if err := row.Scan(&r.ID, &r.TreeID, &status, &r.CreatedAt, &started, &completed, &r.MaxSteps, &r.StepCount); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if started.Valid {
		t := started.String
		r.StartedAt = parseTimePtr(t)
	}
	if completed.Valid {
		t := completed.String
		r.CompletedAt = parseTimePtr(t)
	}
	return &r, nil
}

// IncrementRunStepCount bumps workflow_runs.step_count by one and
// returns the new value; used by the executor's maxSteps enforcement.
func (d *DB) IncrementRunStepCount(ctx context.Context, runID int64) (int, error) {
	if _, err := d.conn.ExecContext(ctx,
		`UPDATE workflow_runs SET step_count = step_count + 1 WHERE id = ?`, runID); err != nil {
		return 0, err
	}
	var n int
	if err := d.conn.QueryRowContext(ctx, `SELECT step_count FROM workflow_runs WHERE id = ?`, runID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
