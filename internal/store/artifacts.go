package store

import (
	"context"
	"fmt"

	"github.com/hansjm10/alphred/internal/model"
)

// InsertArtifact persists a PhaseArtifact. Artifacts attached to an
// attempt must be committed before the attempt's terminal status
// transition (spec §5 ordering guarantees) — callers are responsible
// for sequencing, this method does no implicit transaction wrapping so
// it can participate in a caller-managed transaction when needed.
func (d *DB) InsertArtifact(ctx context.Context, a model.PhaseArtifact) (int64, error) {
	res, err := d.conn.ExecContext(ctx,
		`INSERT INTO phase_artifacts (run_id, run_node_id, attempt, artifact_type, content_type, content, metadata)
		 VALUES (?,?,?,?,?,?,?)`,
		a.RunID, a.RunNodeID, a.Attempt, string(a.ArtifactType), string(a.ContentType), a.Content, orDefault(a.Metadata, "{}"))
	if err != nil {
		return 0, fmt.Errorf("insert phase_artifact: %w", err)
	}
	return res.LastInsertId()
}

func scanArtifact(sc interface{ Scan(...any) error }) (*model.PhaseArtifact, error) {
	var a model.PhaseArtifact
	var artifactType, contentType string
	if err := sc.Scan(&a.ID, &a.RunID, &a.RunNodeID, &a.Attempt, &artifactType, &contentType, &a.Content, &a.Metadata, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ArtifactType, a.ContentType = model.ArtifactType(artifactType), model.ContentType(contentType)
	return &a, nil
}

const artifactColumns = `id, run_id, run_node_id, attempt, artifact_type, content_type, content, metadata, created_at`

// LatestArtifact returns the most recent artifact of artifactType for
// (runNodeID, attempt), or sql.ErrNoRows if none exists.
func (d *DB) LatestArtifact(ctx context.Context, runNodeID int64, attempt int, artifactType model.ArtifactType) (*model.PhaseArtifact, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT `+artifactColumns+` FROM phase_artifacts
		 WHERE run_node_id = ? AND attempt = ? AND artifact_type = ? ORDER BY id DESC LIMIT 1`,
		runNodeID, attempt, string(artifactType))
	return scanArtifact(row)
}

// LatestArtifactAnyAttempt returns the most recent artifact of
// artifactType for runNodeID across all attempts, or sql.ErrNoRows.
func (d *DB) LatestArtifactAnyAttempt(ctx context.Context, runNodeID int64, artifactType model.ArtifactType) (*model.PhaseArtifact, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT `+artifactColumns+` FROM phase_artifacts
		 WHERE run_node_id = ? AND artifact_type = ? ORDER BY attempt DESC, id DESC LIMIT 1`,
		runNodeID, string(artifactType))
	return scanArtifact(row)
}

// ArtifactsForNode returns all artifacts recorded for (runNodeID, attempt).
func (d *DB) ArtifactsForNode(ctx context.Context, runNodeID int64, attempt int) ([]model.PhaseArtifact, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT `+artifactColumns+` FROM phase_artifacts WHERE run_node_id = ? AND attempt = ? ORDER BY id`,
		runNodeID, attempt)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.PhaseArtifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
