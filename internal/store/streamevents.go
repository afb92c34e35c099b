package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hansjm10/alphred/internal/model"
)

// NewStreamEvent describes a run_node_stream_events row to insert.
type NewStreamEvent struct {
	RunID            int64
	RunNodeID        int64
	Attempt          int
	EventType        model.StreamEventType
	ContentPreview   string
	Metadata         string // JSON, already sanitized by internal/diagnostics
	DeltaTokens      *int
	CumulativeTokens *int
	Redacted         bool
	Truncated        bool
}

// InsertStreamEvent appends one event, assigning the next gapless
// sequence number for (run_node_id, attempt) under the row's own
// transaction-free UPDATE-then-INSERT: the sequence column has a unique
// index on (run_node_id, attempt, sequence), so a race here surfaces as
// a constraint violation rather than silent duplication.
func (d *DB) InsertStreamEvent(ctx context.Context, e NewStreamEvent) (int64, error) {
	var next int
	var maxSeq sql.NullInt64
	if err := d.conn.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM run_node_stream_events WHERE run_node_id = ? AND attempt = ?`,
		e.RunNodeID, e.Attempt).Scan(&maxSeq); err != nil {
		return 0, fmt.Errorf("next sequence for run_node %d attempt %d: %w", e.RunNodeID, e.Attempt, err)
	}
	if maxSeq.Valid {
		next = int(maxSeq.Int64) + 1
	}
	redacted, truncated := 0, 0
	if e.Redacted {
		redacted = 1
	}
	if e.Truncated {
		truncated = 1
	}
	res, err := d.conn.ExecContext(ctx,
		`INSERT INTO run_node_stream_events (run_id, run_node_id, attempt, sequence, event_type, content_preview,
			metadata, delta_tokens, cumulative_tokens, redacted, truncated)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.RunID, e.RunNodeID, e.Attempt, next, string(e.EventType), e.ContentPreview,
		orDefault(e.Metadata, "{}"), e.DeltaTokens, e.CumulativeTokens, redacted, truncated)
	if err != nil {
		return 0, fmt.Errorf("insert run_node_stream_event: %w", err)
	}
	return res.LastInsertId()
}

func scanStreamEvent(sc interface{ Scan(dest ...any) error }) (*model.RunNodeStreamEvent, error) {
	var e model.RunNodeStreamEvent
	var eventType string
	var redacted, truncated int
	if err := sc.Scan(&e.ID, &e.RunID, &e.RunNodeID, &e.Attempt, &e.Sequence, &eventType, &e.ContentPreview,
		&e.Metadata, &e.DeltaTokens, &e.CumulativeTokens, &redacted, &truncated, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.EventType = model.StreamEventType(eventType)
	e.Redacted, e.Truncated = redacted != 0, truncated != 0
	return &e, nil
}

const streamEventColumns = `id, run_id, run_node_id, attempt, sequence, event_type, content_preview,
	metadata, delta_tokens, cumulative_tokens, redacted, truncated, created_at`

// EventsForAttempt returns every stream event for (runNodeID, attempt)
// in sequence order — the replay order diagnostics and context
// assembly consume.
func (d *DB) EventsForAttempt(ctx context.Context, runNodeID int64, attempt int) ([]model.RunNodeStreamEvent, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT `+streamEventColumns+` FROM run_node_stream_events WHERE run_node_id = ? AND attempt = ? ORDER BY sequence`,
		runNodeID, attempt)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.RunNodeStreamEvent
	for rows.Next() {
		e, err := scanStreamEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
