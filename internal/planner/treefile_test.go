package planner

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTreeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tree.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadTreeFileParsesNodesAndEdges(t *testing.T) {
	path := writeTreeFile(t, `
tree_key: review-flow
name: Review Flow
nodes:
  - key: draft
    type: agent
    provider: mock
  - key: review
    type: agent
    provider: mock
edges:
  - from: draft
    to: review
    route_on: success
    auto: true
`)
	tf, err := LoadTreeFile(path)
	if err != nil {
		t.Fatalf("LoadTreeFile: %v", err)
	}
	if tf.TreeKey != "review-flow" || len(tf.Nodes) != 2 || len(tf.Edges) != 1 {
		t.Fatalf("unexpected parse result: %+v", tf)
	}
}

func TestLoadTreeFileRejectsUnknownFields(t *testing.T) {
	path := writeTreeFile(t, `
tree_key: bad
name: Bad
nodes:
  - key: draft
    type: agent
    bogus_field: oops
`)
	if _, err := LoadTreeFile(path); err == nil {
		t.Fatal("expected an error for an unknown field under strict decoding")
	}
}

func TestLoadTreeFileRejectsMultipleDocuments(t *testing.T) {
	path := writeTreeFile(t, `
tree_key: a
name: A
nodes:
  - key: only
    type: agent
---
tree_key: b
name: B
nodes:
  - key: only
    type: agent
`)
	if _, err := LoadTreeFile(path); err == nil {
		t.Fatal("expected an error for multiple YAML documents in one tree file")
	}
}

func TestLoadTreeFileRejectsDuplicateNodeKeys(t *testing.T) {
	path := writeTreeFile(t, `
tree_key: dup
name: Dup
nodes:
  - key: a
    type: agent
  - key: a
    type: agent
`)
	if _, err := LoadTreeFile(path); err == nil {
		t.Fatal("expected an error for duplicate node keys")
	}
}

func TestLoadTreeFileRejectsFailureEdgeThatIsNotAuto(t *testing.T) {
	path := writeTreeFile(t, `
tree_key: bad-edge
name: Bad Edge
nodes:
  - key: a
    type: agent
  - key: b
    type: agent
edges:
  - from: a
    to: b
    route_on: failure
    auto: false
    guard_field: status
`)
	if _, err := LoadTreeFile(path); err == nil {
		t.Fatal("expected an error: failure edges must be auto")
	}
}

func TestLoadTreeFileRejectsNonAutoEdgeWithoutGuard(t *testing.T) {
	path := writeTreeFile(t, `
tree_key: bad-guard
name: Bad Guard
nodes:
  - key: a
    type: agent
  - key: b
    type: agent
edges:
  - from: a
    to: b
    route_on: success
    auto: false
`)
	if _, err := LoadTreeFile(path); err == nil {
		t.Fatal("expected an error: non-auto edges require a guard_field")
	}
}

func TestLoadTreeFileRejectsNonStandardRoleOnNonAgentNode(t *testing.T) {
	path := writeTreeFile(t, `
tree_key: bad-role
name: Bad Role
nodes:
  - key: a
    type: tool
    role: spawner
`)
	if _, err := LoadTreeFile(path); err == nil {
		t.Fatal("expected an error: non-standard roles are only valid on agent nodes")
	}
}

func TestToDraftArgsAssignsSequenceIndexInFileOrder(t *testing.T) {
	path := writeTreeFile(t, `
tree_key: seq
name: Seq
nodes:
  - key: first
    type: agent
  - key: second
    type: agent
  - key: third
    type: agent
`)
	tf, err := LoadTreeFile(path)
	if err != nil {
		t.Fatalf("LoadTreeFile: %v", err)
	}
	_, _, nodes, _ := tf.ToDraftArgs()
	for i, n := range nodes {
		if n.SequenceIndex != i {
			t.Fatalf("expected node %d (%s) to have sequence_index %d, got %d", i, n.NodeKey, i, n.SequenceIndex)
		}
	}
}
