package store

import (
	"context"
	"fmt"

	"github.com/hansjm10/alphred/internal/model"
)

// CreateJoinBarrier inserts a pending RunJoinBarrier for a spawner
// emission of expectedChildren children (spec §4.9).
func (d *DB) CreateJoinBarrier(ctx context.Context, runID, spawnerRunNodeID, joinRunNodeID int64, expectedChildren int) (int64, error) {
	res, err := d.conn.ExecContext(ctx,
		`INSERT INTO run_join_barriers (run_id, spawner_run_node_id, join_run_node_id, expected_children,
			terminal_children, completed_children, failed_children, status)
		 VALUES (?,?,?,?,0,0,0,'pending')`,
		runID, spawnerRunNodeID, joinRunNodeID, expectedChildren)
	if err != nil {
		return 0, fmt.Errorf("insert run_join_barrier: %w", err)
	}
	return res.LastInsertId()
}

func scanJoinBarrier(sc interface{ Scan(dest ...any) error }) (*model.RunJoinBarrier, error) {
	var b model.RunJoinBarrier
	var status string
	if err := sc.Scan(&b.ID, &b.RunID, &b.SpawnerRunNodeID, &b.JoinRunNodeID, &b.ExpectedChildren,
		&b.TerminalChildren, &b.CompletedChildren, &b.FailedChildren, &status, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.Status = model.BarrierStatus(status)
	return &b, nil
}

const joinBarrierColumns = `id, run_id, spawner_run_node_id, join_run_node_id, expected_children,
	terminal_children, completed_children, failed_children, status, created_at`

// GetJoinBarrier loads one barrier by id.
func (d *DB) GetJoinBarrier(ctx context.Context, id int64) (*model.RunJoinBarrier, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT `+joinBarrierColumns+` FROM run_join_barriers WHERE id = ?`, id)
	return scanJoinBarrier(row)
}

// BarriersForJoinNode returns every barrier feeding joinRunNodeID, most
// recent first — the order the §4.4 join-summary step consults when
// selecting a ready barrier, falling back to the most recent one.
func (d *DB) BarriersForJoinNode(ctx context.Context, joinRunNodeID int64) ([]model.RunJoinBarrier, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT `+joinBarrierColumns+` FROM run_join_barriers WHERE join_run_node_id = ? ORDER BY id DESC`, joinRunNodeID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.RunJoinBarrier
	for rows.Next() {
		b, err := scanJoinBarrier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// RecordChildTerminal atomically increments a barrier's terminal/outcome
// counters for one child's terminal transition and, when
// terminal==expected, flips the barrier to ready. The increment and the
// ready-flip happen in one statement each, guarded by the barrier's
// current status so two concurrent child completions cannot race past
// each other (spec §4.9, §5 "no long locks" — short guarded UPDATEs
// instead).
func (d *DB) RecordChildTerminal(ctx context.Context, barrierID int64, childSucceeded bool) error {
	completedDelta, failedDelta := 0, 0
	if childSucceeded {
		completedDelta = 1
	} else {
		failedDelta = 1
	}
	if _, err := d.conn.ExecContext(ctx,
		`UPDATE run_join_barriers
		 SET terminal_children = terminal_children + 1,
		     completed_children = completed_children + ?,
		     failed_children = failed_children + ?
		 WHERE id = ? AND status = 'pending'`,
		completedDelta, failedDelta, barrierID); err != nil {
		return fmt.Errorf("increment run_join_barrier %d: %w", barrierID, err)
	}
	res, err := d.conn.ExecContext(ctx,
		`UPDATE run_join_barriers SET status = 'ready'
		 WHERE id = ? AND status = 'pending' AND terminal_children >= expected_children`,
		barrierID)
	if err != nil {
		return fmt.Errorf("ready run_join_barrier %d: %w", barrierID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil // not yet at expected count, or already flipped — not an error
	}
	return nil
}

// ReleaseJoinBarrier transitions a ready barrier to released once its
// join node claims execution (spec §4.9).
func (d *DB) ReleaseJoinBarrier(ctx context.Context, barrierID int64) error {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE run_join_barriers SET status = 'released' WHERE id = ? AND status = 'ready'`, barrierID)
	if err != nil {
		return fmt.Errorf("release run_join_barrier %d: %w", barrierID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrPrecondition
	}
	return nil
}
