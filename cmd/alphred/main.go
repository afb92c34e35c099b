// Command alphred is the CLI entry point: it resolves the sqlite store
// path, wires every collaborator package, and dispatches os.Args into
// internal/cli. Grounded on vsavkov-kilroy's cmd/kilroy/main.go, which
// builds its dependency graph directly in main and installs a
// signal-driven cancellation context rather than reaching for a
// framework.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hansjm10/alphred/internal/cli"
	"github.com/hansjm10/alphred/internal/contextbuilder"
	"github.com/hansjm10/alphred/internal/dashboard"
	"github.com/hansjm10/alphred/internal/diagnostics"
	"github.com/hansjm10/alphred/internal/executor"
	"github.com/hansjm10/alphred/internal/joins"
	"github.com/hansjm10/alphred/internal/model"
	"github.com/hansjm10/alphred/internal/planner"
	"github.com/hansjm10/alphred/internal/provider"
	"github.com/hansjm10/alphred/internal/provider/anthropic"
	"github.com/hansjm10/alphred/internal/provider/google"
	"github.com/hansjm10/alphred/internal/provider/openai"
	"github.com/hansjm10/alphred/internal/repohelper"
	"github.com/hansjm10/alphred/internal/selector"
	"github.com/hansjm10/alphred/internal/store"
	"github.com/hansjm10/alphred/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx := signalCancelContext()

	dbPath := resolveDBPath()
	db, err := store.Open(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store at %s: %v\n", dbPath, err)
		return cli.ExitRuntimeError
	}
	defer db.Close()

	registry := provider.NewRegistry()
	registerAdapters(registry)

	board := dashboard.New()
	exec := executor.New(
		db,
		selector.New(db),
		contextbuilder.New(db),
		registry,
		diagnostics.New(db),
		joins.New(db),
		executor.WithMetrics(telemetry.NewMetrics(prometheus.DefaultRegisterer)),
		executor.WithEmitter(telemetry.NewLogEmitter(os.Stderr, false)),
		executor.WithOnRunTerminal(func(_ context.Context, runID int64, status model.RunStatus) {
			board.Record(runID, string(status))
		}),
	)

	app := &cli.App{
		Planner:  planner.New(db),
		Executor: exec,
		Repos:    repohelper.New(),
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
	return app.Run(ctx, os.Args[1:])
}

// registerAdapters wires every provider the execution_permissions
// schema can route to. Real adapters read their API key from the
// environment; a missing key still registers the adapter (it only
// fails at invocation time, not at startup) so `alphred help` and
// `repo` subcommands work without credentials configured.
func registerAdapters(registry *provider.Registry) {
	_ = registry.Register("anthropic", anthropic.New(os.Getenv("ANTHROPIC_API_KEY"), "claude-sonnet-4"), nil)
	_ = registry.Register("openai", openai.New(os.Getenv("OPENAI_API_KEY"), "gpt-4o"), nil)
	_ = registry.Register("google", google.New(os.Getenv("GOOGLE_API_KEY"), "gemini-2.0-flash"), nil)
}

// resolveDBPath reads ALPHRED_DB_PATH, resolving a relative path
// against the current working directory; the default is ./alphred.db.
func resolveDBPath() string {
	p := os.Getenv("ALPHRED_DB_PATH")
	if p == "" {
		p = "alphred.db"
	}
	if filepath.IsAbs(p) {
		return p
	}
	wd, err := os.Getwd()
	if err != nil {
		return p
	}
	return filepath.Join(wd, p)
}

// signalCancelContext returns a context cancelled on SIGINT/SIGTERM,
// letting an in-flight run unwind at its next cooperative checkpoint.
func signalCancelContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}
