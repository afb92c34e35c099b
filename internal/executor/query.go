package executor

import (
	"context"

	"github.com/hansjm10/alphred/internal/model"
)

// GetRun returns the current state of a workflow run, for callers (the
// CLI's `status` and `run` commands) that need to report outcome
// without reaching into the store package directly.
func (e *Executor) GetRun(ctx context.Context, runID int64) (*model.WorkflowRun, error) {
	return e.db.GetRun(ctx, runID)
}

// LatestNodeSummaries returns the latest attempt of every run node in
// runID, for the CLI's `status` command.
func (e *Executor) LatestNodeSummaries(ctx context.Context, runID int64) ([]model.RunNode, error) {
	return e.db.LatestAttemptsByRun(ctx, runID)
}
