package store

import (
	"context"
	"fmt"

	"github.com/hansjm10/alphred/internal/model"
)

// NewDiagnostics describes a run_node_diagnostics row to insert.
type NewDiagnostics struct {
	RunID       int64
	RunNodeID   int64
	Attempt     int
	EventCount  int
	Redacted    bool
	Truncated   bool
	PayloadJSON string
}

// InsertDiagnostics records the one-per-(run, run_node, attempt) payload
// (spec §4.7 step 6). A unique index on (run_node_id, attempt) dedups:
// a retried executor step that re-enters this call after a crash
// between the diagnostics write and its commit is a no-op, not a
// duplicate row.
func (d *DB) InsertDiagnostics(ctx context.Context, n NewDiagnostics) (int64, error) {
	redacted, truncated := 0, 0
	if n.Redacted {
		redacted = 1
	}
	if n.Truncated {
		truncated = 1
	}
	res, err := d.conn.ExecContext(ctx,
		`INSERT INTO run_node_diagnostics (run_id, run_node_id, attempt, event_count, redacted, truncated, payload_json)
		 VALUES (?,?,?,?,?,?,?)
		 ON CONFLICT (run_node_id, attempt) DO NOTHING`,
		n.RunID, n.RunNodeID, n.Attempt, n.EventCount, redacted, truncated, n.PayloadJSON)
	if err != nil {
		return 0, fmt.Errorf("insert run_node_diagnostics: %w", err)
	}
	return res.LastInsertId()
}

// GetDiagnostics loads the diagnostics row for (runNodeID, attempt), or
// sql.ErrNoRows if the attempt has not completed a step yet.
func (d *DB) GetDiagnostics(ctx context.Context, runNodeID int64, attempt int) (*model.RunNodeDiagnostics, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, run_id, run_node_id, attempt, event_count, redacted, truncated, payload_json, created_at
		 FROM run_node_diagnostics WHERE run_node_id = ? AND attempt = ?`, runNodeID, attempt)
	var diag model.RunNodeDiagnostics
	var redacted, truncated int
	if err := row.Scan(&diag.ID, &diag.RunID, &diag.RunNodeID, &diag.Attempt, &diag.EventCount,
		&redacted, &truncated, &diag.PayloadJSON, &diag.CreatedAt); err != nil {
		return nil, err
	}
	diag.Redacted, diag.Truncated = redacted != 0, truncated != 0
	return &diag, nil
}
