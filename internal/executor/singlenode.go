package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/hansjm10/alphred/internal/model"
	"github.com/hansjm10/alphred/internal/selector"
	"github.com/hansjm10/alphred/internal/store"
)

// ExecuteSingleNode runs exactly one claim/assemble/invoke/persist/route
// step for the latest attempt of nodeKey within runID, bypassing the
// run loop. Used by the CLI's single-node debug path.
//
// Returns a model.AlphredError with
// WORKFLOW_RUN_SINGLE_NODE_SELECTOR_NOT_FOUND if no run node named
// nodeKey exists, or WORKFLOW_RUN_SINGLE_NODE_SELECTOR_NOT_EXECUTABLE
// if it exists but the selector's current verdict does not designate
// it as the runnable node (e.g. its predecessors are not yet terminal,
// or another node is already running).
func (e *Executor) ExecuteSingleNode(ctx context.Context, runID int64, nodeKey string) error {
	latest, err := e.db.LatestAttemptsByRun(ctx, runID)
	if err != nil {
		return err
	}
	var target *model.RunNode
	for i := range latest {
		if latest[i].NodeKey == nodeKey {
			target = &latest[i]
			break
		}
	}
	if target == nil {
		return model.NewRunError(model.ErrWorkflowRunSingleNodeSelectorNotFound,
			fmt.Sprintf("no run node named %q in run %d", nodeKey, runID), runID)
	}

	sel, err := e.sel.Select(ctx, runID)
	if err != nil {
		return err
	}
	if sel.Verdict != selector.VerdictRunnable || sel.Node == nil || sel.Node.ID != target.ID {
		return model.NewRunNodeError(model.ErrWorkflowRunSingleNodeSelectorNotExec,
			fmt.Sprintf("run node %q is not currently selectable (selector verdict %q)", nodeKey, sel.Verdict), runID, target.ID)
	}

	node := *sel.Node
	if node.Status == model.RunNodeStatusPending {
		err := e.db.TransitionRunNodeStatus(ctx, node.ID, model.RunNodeStatusPending, model.RunNodeStatusRunning,
			store.RunNodeTransitionOptions{WorkflowRunID: runID, RequiredRunStatuses: []model.RunStatus{model.RunStatusPending, model.RunStatusRunning}})
		if err != nil {
			if errors.Is(err, model.ErrPrecondition) {
				return model.NewRunNodeError(model.ErrWorkflowRunControlConcurrentConflict,
					"run node claim raced a concurrent transition, retry", runID, node.ID)
			}
			return err
		}
		node.Status = model.RunNodeStatusRunning
	}

	_, err = e.executeSingleNode(ctx, runID, node, sel.SelectedBy)
	return err
}
