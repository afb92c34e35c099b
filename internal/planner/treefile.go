package planner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hansjm10/alphred/internal/model"
	"github.com/hansjm10/alphred/internal/store"
)

// TreeNodeFile is the YAML-authored form of a tree node.
type TreeNodeFile struct {
	Key                  string         `yaml:"key"`
	Type                 model.NodeType `yaml:"type"`
	Role                 model.NodeRole `yaml:"role,omitempty"`
	Provider             string         `yaml:"provider,omitempty"`
	Model                string         `yaml:"model,omitempty"`
	PromptTemplateID     string         `yaml:"prompt_template_id,omitempty"`
	ExecutionPermissions map[string]any `yaml:"execution_permissions,omitempty"`
	ErrorHandlerConfig   map[string]any `yaml:"error_handler,omitempty"`
	MaxRetries           int            `yaml:"max_retries,omitempty"`
	MaxChildren          int            `yaml:"max_children,omitempty"`
}

// TreeEdgeFile is the YAML-authored form of a tree edge.
type TreeEdgeFile struct {
	From       string             `yaml:"from"`
	To         string             `yaml:"to"`
	RouteOn    model.RouteOn      `yaml:"route_on"`
	Priority   int                `yaml:"priority,omitempty"`
	Auto       bool               `yaml:"auto,omitempty"`
	GuardField string             `yaml:"guard_field,omitempty"`
	GuardOp    model.ComparisonOp `yaml:"guard_op,omitempty"`
	GuardValue string             `yaml:"guard_value,omitempty"`
}

// TreeFile is the top-level shape of an authored tree definition file.
type TreeFile struct {
	TreeKey string         `yaml:"tree_key"`
	Name    string         `yaml:"name"`
	Nodes   []TreeNodeFile `yaml:"nodes"`
	Edges   []TreeEdgeFile `yaml:"edges"`
}

// LoadTreeFile reads and strictly decodes a tree definition from path.
// Unknown fields and trailing documents are rejected, matching the
// pack's authored-config loading idiom.
func LoadTreeFile(path string) (*TreeFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tree file %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var tf TreeFile
	if err := dec.Decode(&tf); err != nil {
		return nil, fmt.Errorf("decode tree file %s: %w", path, err)
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("tree file %s: multiple documents are not allowed", path)
		}
		return nil, err
	}
	if err := validateTreeFile(&tf); err != nil {
		return nil, fmt.Errorf("tree file %s: %w", path, err)
	}
	return &tf, nil
}

func validateTreeFile(tf *TreeFile) error {
	if tf.TreeKey == "" {
		return fmt.Errorf("tree_key is required")
	}
	if len(tf.Nodes) == 0 {
		return fmt.Errorf("at least one node is required")
	}
	seen := make(map[string]bool, len(tf.Nodes))
	for _, n := range tf.Nodes {
		if n.Key == "" {
			return fmt.Errorf("node key is required")
		}
		if seen[n.Key] {
			return fmt.Errorf("duplicate node key %q", n.Key)
		}
		seen[n.Key] = true
		switch n.Type {
		case model.NodeTypeAgent, model.NodeTypeHuman, model.NodeTypeTool:
		default:
			return fmt.Errorf("node %q: invalid type %q", n.Key, n.Type)
		}
		role := n.Role
		if role == "" {
			role = model.NodeRoleStandard
		}
		if role != model.NodeRoleStandard && n.Type != model.NodeTypeAgent {
			return fmt.Errorf("node %q: role %q is only valid for agent nodes", n.Key, role)
		}
	}
	for _, e := range tf.Edges {
		if !seen[e.From] {
			return fmt.Errorf("edge references unknown source %q", e.From)
		}
		if !seen[e.To] {
			return fmt.Errorf("edge references unknown target %q", e.To)
		}
		if e.RouteOn == model.RouteOnFailure && !e.Auto {
			return fmt.Errorf("edge %s->%s: failure edges must be auto", e.From, e.To)
		}
		if !e.Auto && e.GuardField == "" {
			return fmt.Errorf("edge %s->%s: non-auto edges require a guard_field", e.From, e.To)
		}
	}
	return nil
}

// ToDraftArgs converts the authored file into the node/edge slices
// CreateDraftTree expects, assigning sequence_index in file order.
func (tf *TreeFile) ToDraftArgs() (string, string, []store.TreeNodeDef, []store.TreeEdgeDef) {
	nodes := make([]store.TreeNodeDef, 0, len(tf.Nodes))
	for i, n := range tf.Nodes {
		role := n.Role
		if role == "" {
			role = model.NodeRoleStandard
		}
		nodes = append(nodes, store.TreeNodeDef{
			NodeKey:              n.Key,
			SequenceIndex:        i,
			NodeType:             n.Type,
			NodeRole:             role,
			Provider:             n.Provider,
			Model:                n.Model,
			PromptTemplateID:     n.PromptTemplateID,
			ExecutionPermissions: marshalOrEmpty(n.ExecutionPermissions),
			ErrorHandlerConfig:   marshalOrEmpty(n.ErrorHandlerConfig),
			MaxRetries:           n.MaxRetries,
			MaxChildren:          n.MaxChildren,
		})
	}
	edges := make([]store.TreeEdgeDef, 0, len(tf.Edges))
	for _, e := range tf.Edges {
		edges = append(edges, store.TreeEdgeDef{
			SourceKey:  e.From,
			TargetKey:  e.To,
			RouteOn:    e.RouteOn,
			Priority:   e.Priority,
			Auto:       e.Auto,
			GuardField: e.GuardField,
			GuardOp:    e.GuardOp,
			GuardValue: e.GuardValue,
		})
	}
	return tf.TreeKey, tf.Name, nodes, edges
}

func marshalOrEmpty(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
