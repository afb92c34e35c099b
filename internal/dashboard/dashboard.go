// Package dashboard is a narrow stand-in for the HTTP/JSX dashboard
// (spec §6.1): an onRunTerminal-shaped callback the executor can
// target, and a tiny echo handler exposing the last-seen status per
// run. Grounded on evalgo-org-eve's statemanager handler shape
// (RegisterRoutes on an echo.Group, JSON responses, 404 on miss).
package dashboard

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"
)

// RunSnapshot is the last terminal notification recorded for one run.
type RunSnapshot struct {
	RunID  int64  `json:"run_id"`
	Status string `json:"status"`
}

// Board tracks the most recent terminal status per run and serves it
// over HTTP, standing in for the real dashboard's run detail view.
type Board struct {
	mu   sync.RWMutex
	runs map[int64]RunSnapshot
}

// New builds an empty Board.
func New() *Board {
	return &Board{runs: map[int64]RunSnapshot{}}
}

// Record stores runID's terminal status. A thin closure adapts this to
// executor.OnRunTerminal's (ctx, runID, model.RunStatus) shape without
// this package importing the executor/model packages.
func (b *Board) Record(runID int64, status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runs[runID] = RunSnapshot{RunID: runID, Status: status}
}

// RegisterRoutes adds the run-status endpoint to an echo.Group.
func (b *Board) RegisterRoutes(g *echo.Group) {
	g.GET("/runs/:id", b.handleGetRun)
}

func (b *Board) handleGetRun(c echo.Context) error {
	id := c.Param("id")
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, snap := range b.runs {
		if strconv.FormatInt(snap.RunID, 10) == id {
			return c.JSON(http.StatusOK, snap)
		}
	}
	return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
}
