package planner

import (
	"fmt"

	"github.com/hansjm10/alphred/internal/model"
)

// validatePublishable checks the structural invariants a published tree
// must satisfy beyond what the schema's CHECK constraints enforce: every
// node other than the first by sequence_index has at least one incoming
// edge, and every spawner has exactly one paired join reachable via a
// success edge out of it.
func validatePublishable(nodes []model.TreeNode, edges []model.TreeEdge) error {
	if len(nodes) == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	incoming := make(map[int64]int, len(nodes))
	outgoingFrom := make(map[int64][]model.TreeEdge, len(nodes))
	for _, e := range edges {
		incoming[e.TargetID]++
		outgoingFrom[e.SourceID] = append(outgoingFrom[e.SourceID], e)
	}

	for _, n := range nodes[1:] {
		if incoming[n.ID] == 0 {
			return fmt.Errorf("node %q has no incoming edge and is not the entry node", n.NodeKey)
		}
	}

	for _, n := range nodes {
		if n.NodeRole != model.NodeRoleSpawner {
			continue
		}
		hasJoinTarget := false
		for _, e := range outgoingFrom[n.ID] {
			for _, target := range nodes {
				if target.ID == e.TargetID && target.NodeRole == model.NodeRoleJoin {
					hasJoinTarget = true
				}
			}
		}
		if !hasJoinTarget {
			return fmt.Errorf("spawner %q has no reachable join node", n.NodeKey)
		}
	}
	return nil
}
