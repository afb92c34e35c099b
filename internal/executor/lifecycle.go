package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/hansjm10/alphred/internal/model"
)

// retryOnPrecondition re-reads the run and re-attempts f up to
// MaxControlPreconditionRetries times whenever f reports
// model.ErrPrecondition, the signal that the run's status moved out
// from under it (spec §5).
func (e *Executor) retryOnPrecondition(ctx context.Context, runID int64, f func(run *model.WorkflowRun) error) error {
	var lastErr error
	for attempt := 0; attempt < MaxControlPreconditionRetries; attempt++ {
		run, err := e.db.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if err := f(run); err != nil {
			if errors.Is(err, model.ErrPrecondition) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("%w: run %d after %d attempts: %v", model.ErrControlPreconditionExhausted, runID, MaxControlPreconditionRetries, lastErr)
}

// PauseRun transitions a running run to paused.
func (e *Executor) PauseRun(ctx context.Context, runID int64) error {
	return e.retryOnPrecondition(ctx, runID, func(run *model.WorkflowRun) error {
		if run.Status != model.RunStatusRunning {
			return model.NewRunError(model.ErrWorkflowRunControlInvalidTransition,
				fmt.Sprintf("cannot pause a run in status %q", run.Status), runID)
		}
		return e.db.TransitionWorkflowRunStatus(ctx, runID, run.Status, model.RunStatusPaused)
	})
}

// ResumeRun transitions a paused run back to running.
func (e *Executor) ResumeRun(ctx context.Context, runID int64) error {
	return e.retryOnPrecondition(ctx, runID, func(run *model.WorkflowRun) error {
		if run.Status != model.RunStatusPaused {
			return model.NewRunError(model.ErrWorkflowRunControlInvalidTransition,
				fmt.Sprintf("cannot resume a run in status %q", run.Status), runID)
		}
		return e.db.TransitionWorkflowRunStatus(ctx, runID, run.Status, model.RunStatusRunning)
	})
}

// CancelRun transitions any non-terminal run to cancelled. The
// executor's own loop observes this at its next boundary (before
// claiming a node, or on the next stream read) and unwinds.
func (e *Executor) CancelRun(ctx context.Context, runID int64) error {
	return e.retryOnPrecondition(ctx, runID, func(run *model.WorkflowRun) error {
		if run.Status.IsTerminal() {
			return model.NewRunError(model.ErrWorkflowRunControlInvalidTransition,
				fmt.Sprintf("cannot cancel a run already in terminal status %q", run.Status), runID)
		}
		return e.db.TransitionWorkflowRunStatus(ctx, runID, run.Status, model.RunStatusCancelled)
	})
}

// RetryRun requeues the given failed node keys (or, if nodeKeys is
// empty, every latest-attempt failed node) as new attempts and moves a
// failed or cancelled run back to running.
func (e *Executor) RetryRun(ctx context.Context, runID int64, nodeKeys []string) error {
	latest, err := e.db.LatestAttemptsByRun(ctx, runID)
	if err != nil {
		return err
	}

	wanted := make(map[string]bool, len(nodeKeys))
	for _, k := range nodeKeys {
		wanted[k] = true
	}

	var targets []model.RunNode
	for _, n := range latest {
		if n.Status != model.RunNodeStatusFailed {
			continue
		}
		if len(wanted) == 0 || wanted[n.NodeKey] {
			targets = append(targets, n)
		}
	}
	if len(targets) == 0 {
		return model.NewRunError(model.ErrWorkflowRunControlRetryTargetsNotFound,
			"no failed nodes match the requested retry targets", runID)
	}

	for _, t := range targets {
		if _, err := e.db.InsertRetryAttempt(ctx, t); err != nil {
			return fmt.Errorf("insert retry attempt for %s: %w", t.NodeKey, err)
		}
	}

	return e.retryOnPrecondition(ctx, runID, func(run *model.WorkflowRun) error {
		if run.Status.IsTerminal() && run.Status != model.RunStatusFailed {
			return model.NewRunError(model.ErrWorkflowRunControlInvalidTransition,
				fmt.Sprintf("cannot retry a run in status %q", run.Status), runID)
		}
		if run.Status == model.RunStatusRunning || run.Status == model.RunStatusPending {
			return nil
		}
		return e.db.TransitionWorkflowRunStatus(ctx, runID, run.Status, model.RunStatusRunning)
	})
}
