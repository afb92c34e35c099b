// Package joins is the fan-out/join coordinator (C9): on a spawner
// node's completion, it materializes the spawned children and a
// RunJoinBarrier, and retires the barrier once every child reaches a
// terminal status.
package joins

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hansjm10/alphred/internal/model"
	"github.com/hansjm10/alphred/internal/store"
)

// SpawnSpec is one child the spawner's report artifact describes.
type SpawnSpec struct {
	NodeKey string `json:"node_key"`
	Prompt  string `json:"prompt"`
}

// SpawnPayload is the JSON content of a spawner's completion report
// artifact (content_type=json): the set of children to materialize.
type SpawnPayload struct {
	Children []SpawnSpec `json:"children"`
}

// Coordinator maintains join barriers.
type Coordinator struct {
	db *store.DB
}

// New builds a Coordinator over db.
func New(db *store.DB) *Coordinator {
	return &Coordinator{db: db}
}

// OnSpawnerCompleted reads the spawner's latest report artifact,
// materializes one pending run_nodes row per child (spawner_node_id
// and join_node_id set to spawner and joinNodeID respectively), opens
// a RunJoinBarrier, and inserts the dynamic spawner->child (success,
// auto) and child->join (terminal, auto) edges (spec §4.9).
func (c *Coordinator) OnSpawnerCompleted(ctx context.Context, runID int64, spawner model.RunNode, joinNodeID int64) (int64, error) {
	report, err := c.db.LatestArtifactAnyAttempt(ctx, spawner.ID, model.ArtifactTypeReport)
	if err != nil {
		return 0, fmt.Errorf("no report artifact for spawner %d: %w", spawner.ID, err)
	}
	var payload SpawnPayload
	if err := json.Unmarshal([]byte(report.Content), &payload); err != nil {
		return 0, fmt.Errorf("spawner %d report is not a valid spawn payload: %w", spawner.ID, err)
	}
	k := len(payload.Children)
	if spawner.MaxChildren > 0 && k > spawner.MaxChildren {
		return 0, fmt.Errorf("spawner %d requested %d children, exceeds max_children=%d", spawner.ID, k, spawner.MaxChildren)
	}

	barrierID, err := c.db.CreateJoinBarrier(ctx, runID, spawner.ID, joinNodeID, k)
	if err != nil {
		return 0, fmt.Errorf("create join barrier for spawner %d: %w", spawner.ID, err)
	}

	nextSeq, err := c.db.NextSequenceIndex(ctx, runID)
	if err != nil {
		return 0, fmt.Errorf("next sequence index for run %d: %w", runID, err)
	}

	for i, child := range payload.Children {
		childSeq := nextSeq + i
		childID, err := c.db.InsertRunNode(ctx, store.NewRunNode{
			RunID:                runID,
			NodeKey:              child.NodeKey,
			Attempt:              1,
			NodeType:             model.NodeTypeAgent,
			NodeRole:             model.NodeRoleStandard,
			Provider:             spawner.Provider,
			Model:                spawner.Model,
			Prompt:               child.Prompt,
			ExecutionPermissions: spawner.ExecutionPermissions,
			MaxRetries:           spawner.MaxRetries,
			MaxChildren:          0,
			SequenceIndex:        childSeq,
			SequencePath:         spawner.SequencePath + "." + strconv.Itoa(i),
			LineageDepth:         spawner.LineageDepth + 1,
			SpawnerNodeID:        &spawner.ID,
			JoinNodeID:           &joinNodeID,
		})
		if err != nil {
			return 0, fmt.Errorf("materialize spawned child %q: %w", child.NodeKey, err)
		}

		if _, err := c.db.InsertRunNodeEdge(ctx, model.RunNodeEdge{
			RunID:    runID,
			SourceID: spawner.ID,
			TargetID: childID,
			RouteOn:  model.RouteOnSuccess,
			Auto:     true,
			EdgeKind: model.EdgeKindDynamicSpawnerChild,
		}); err != nil {
			return 0, fmt.Errorf("insert spawner->child edge for %q: %w", child.NodeKey, err)
		}
		if _, err := c.db.InsertRunNodeEdge(ctx, model.RunNodeEdge{
			RunID:    runID,
			SourceID: childID,
			TargetID: joinNodeID,
			RouteOn:  model.RouteOnSuccess,
			Auto:     true,
			EdgeKind: model.EdgeKindDynamicChildJoin,
		}); err != nil {
			return 0, fmt.Errorf("insert child->join edge for %q: %w", child.NodeKey, err)
		}
	}

	return barrierID, nil
}

// OnChildTerminal increments the barrier's counters for one child's
// terminal transition (success or failure) and flips the barrier to
// ready once terminal==expected.
func (c *Coordinator) OnChildTerminal(ctx context.Context, barrierID int64, childSucceeded bool) error {
	return c.db.RecordChildTerminal(ctx, barrierID, childSucceeded)
}

// OnJoinClaimed releases the barrier once its join node claims
// execution.
func (c *Coordinator) OnJoinClaimed(ctx context.Context, barrierID int64) error {
	return c.db.ReleaseJoinBarrier(ctx, barrierID)
}
