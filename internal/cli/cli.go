// Package cli is the command-line surface (spec §6): a thin dispatcher
// over the executor, planner, and repo helper. Grounded on
// vsavkov-kilroy's cmd/kilroy/main.go subcommand-switch idiom, adapted
// from manual os.Args parsing into a testable Dispatch(args) entry
// point.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hansjm10/alphred/internal/executor"
	"github.com/hansjm10/alphred/internal/model"
	"github.com/hansjm10/alphred/internal/planner"
	"github.com/hansjm10/alphred/internal/repohelper"
)

// Exit codes, universal across every subcommand (spec §6).
const (
	ExitSuccess      = 0
	ExitUsageError   = 2
	ExitNotFound     = 3
	ExitRuntimeError = 4
)

// App bundles the services a CLI invocation dispatches into.
type App struct {
	Planner  *planner.Planner
	Executor *executor.Executor
	Repos    repohelper.RepoHelper
	Stdout   io.Writer
	Stderr   io.Writer
}

// Run dispatches args (os.Args[1:]) and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		usage(a.Stderr)
		return ExitUsageError
	}

	switch args[0] {
	case "help", "--help", "-h":
		usage(a.Stdout)
		return ExitSuccess
	case "run":
		return a.dispatchRun(ctx, args[1:])
	case "status":
		return a.dispatchStatus(ctx, args[1:])
	case "repo":
		return a.dispatchRepo(ctx, args[1:])
	case "list":
		fmt.Fprintln(a.Stderr, "list: reserved, not implemented")
		return ExitRuntimeError
	default:
		usage(a.Stderr)
		return ExitUsageError
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  alphred run --tree <key> [--repo <spec>] [--branch <name>] [--max-steps <n>]")
	fmt.Fprintln(w, "  alphred run pause|resume|cancel|retry --run <id> [--node <key>]...")
	fmt.Fprintln(w, "  alphred status --run <id>")
	fmt.Fprintln(w, "  alphred repo add|list|show|remove|sync ...")
	fmt.Fprintln(w, "  alphred list")
	fmt.Fprintln(w, "  alphred help")
}

func (a *App) dispatchRun(ctx context.Context, args []string) int {
	if len(args) > 0 {
		switch args[0] {
		case "pause", "resume", "cancel", "retry":
			return a.dispatchRunControl(ctx, args[0], args[1:])
		}
	}

	flags, err := parseFlags(args, map[string]bool{"tree": true, "repo": false, "branch": false, "max-steps": false})
	if err != nil {
		fmt.Fprintln(a.Stderr, err)
		return ExitUsageError
	}

	maxSteps := 100
	if v, ok := flags["max-steps"]; ok {
		n, perr := parsePositiveInt(v)
		if perr != nil {
			fmt.Fprintf(a.Stderr, "invalid --max-steps %q: %v\n", v, perr)
			return ExitUsageError
		}
		maxSteps = n
	}

	run, err := a.Planner.MaterializeRun(ctx, flags["tree"], maxSteps)
	if err != nil {
		return a.reportError(err)
	}

	if err := a.Executor.ExecuteRun(ctx, run.ID); err != nil {
		return a.reportError(err)
	}

	final, err := a.Executor.GetRun(ctx, run.ID)
	if err != nil {
		return a.reportError(err)
	}
	return a.printJSON(final)
}

func (a *App) dispatchRunControl(ctx context.Context, action string, args []string) int {
	flags, err := parseFlags(args, map[string]bool{"run": true, "node": false})
	if err != nil {
		fmt.Fprintln(a.Stderr, err)
		return ExitUsageError
	}
	runID, err := parsePositiveInt64(flags["run"])
	if err != nil {
		fmt.Fprintf(a.Stderr, "invalid --run %q: %v\n", flags["run"], err)
		return ExitUsageError
	}

	nodeKeys := extractRepeatedFlag(args, "node")

	var controlErr error
	var retried []string
	switch action {
	case "pause":
		controlErr = a.Executor.PauseRun(ctx, runID)
	case "resume":
		controlErr = a.Executor.ResumeRun(ctx, runID)
	case "cancel":
		controlErr = a.Executor.CancelRun(ctx, runID)
	case "retry":
		controlErr = a.Executor.RetryRun(ctx, runID, nodeKeys)
		retried = nodeKeys
	}
	if controlErr != nil {
		return a.reportError(controlErr)
	}

	run, err := a.Executor.GetRun(ctx, runID)
	if err != nil {
		return a.reportError(err)
	}
	return a.printJSON(map[string]any{
		"action":            action,
		"outcome":           "applied",
		"workflowRunId":     runID,
		"runStatus":         run.Status,
		"retriedRunNodeIds": retried,
	})
}

func (a *App) dispatchStatus(ctx context.Context, args []string) int {
	flags, err := parseFlags(args, map[string]bool{"run": true})
	if err != nil {
		fmt.Fprintln(a.Stderr, err)
		return ExitUsageError
	}
	runID, err := parsePositiveInt64(flags["run"])
	if err != nil {
		fmt.Fprintf(a.Stderr, "invalid --run %q: %v\n", flags["run"], err)
		return ExitUsageError
	}

	run, err := a.Executor.GetRun(ctx, runID)
	if err != nil {
		return a.reportError(err)
	}
	nodes, err := a.Executor.LatestNodeSummaries(ctx, runID)
	if err != nil {
		return a.reportError(err)
	}
	return a.printJSON(map[string]any{"run": run, "nodes": nodes})
}

func (a *App) dispatchRepo(ctx context.Context, args []string) int {
	if len(args) == 0 {
		usage(a.Stderr)
		return ExitUsageError
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "add":
		flags, err := parseFlags(rest, map[string]bool{"name": true, "remote": true, "worktree": false, "ref": false})
		if err != nil {
			fmt.Fprintln(a.Stderr, err)
			return ExitUsageError
		}
		info, err := a.Repos.Add(ctx, repohelper.RepoSpec{Name: flags["name"], RemoteURL: flags["remote"], Worktree: flags["worktree"], DefaultRef: flags["ref"]})
		if err != nil {
			return a.reportError(err)
		}
		return a.printJSON(info)
	case "list":
		repos, err := a.Repos.List(ctx)
		if err != nil {
			return a.reportError(err)
		}
		return a.printJSON(repos)
	case "show", "remove", "sync":
		flags, err := parseFlags(rest, map[string]bool{"name": true})
		if err != nil {
			fmt.Fprintln(a.Stderr, err)
			return ExitUsageError
		}
		switch sub {
		case "show":
			info, err := a.Repos.Show(ctx, flags["name"])
			if err != nil {
				return a.reportError(err)
			}
			return a.printJSON(info)
		case "remove":
			if err := a.Repos.Remove(ctx, flags["name"]); err != nil {
				return a.reportError(err)
			}
			return a.printJSON(map[string]string{"removed": flags["name"]})
		case "sync":
			info, err := a.Repos.Sync(ctx, flags["name"])
			if err != nil {
				return a.reportError(err)
			}
			return a.printJSON(info)
		}
	}
	usage(a.Stderr)
	return ExitUsageError
}

func (a *App) printJSON(v any) int {
	enc := json.NewEncoder(a.Stdout)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(a.Stderr, err)
		return ExitRuntimeError
	}
	return ExitSuccess
}

// reportError maps a returned error to an exit code: AlphredErrors
// carrying a *_NOT_FOUND code exit 3; every other error exits 4.
func (a *App) reportError(err error) int {
	if ae, ok := err.(*model.AlphredError); ok {
		fmt.Fprintln(a.Stderr, ae.Error())
		switch ae.Code {
		case model.ErrWorkflowTreeNotFound, model.ErrWorkflowRunNotFound,
			model.ErrWorkflowRunSingleNodeSelectorNotFound, model.ErrWorkflowRunControlRetryTargetsNotFound:
			return ExitNotFound
		default:
			return ExitRuntimeError
		}
	}
	fmt.Fprintln(a.Stderr, err)
	return ExitRuntimeError
}
