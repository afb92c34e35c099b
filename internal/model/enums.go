// Package model defines the entity types of the workflow execution engine:
// trees, nodes, edges, runs, artifacts, routing decisions, join barriers,
// stream events and diagnostics. Types here are persistence-agnostic; the
// store package is responsible for mapping them to rows.
package model

// TreeStatus is the lifecycle status of a WorkflowTree version.
type TreeStatus string

const (
	TreeStatusDraft     TreeStatus = "draft"
	TreeStatusPublished TreeStatus = "published"
)

// NodeType distinguishes what drives a node's execution.
type NodeType string

const (
	NodeTypeAgent NodeType = "agent"
	NodeTypeHuman NodeType = "human"
	NodeTypeTool  NodeType = "tool"
)

// NodeRole further qualifies agent nodes that participate in fan-out/join.
type NodeRole string

const (
	NodeRoleStandard NodeRole = "standard"
	NodeRoleSpawner  NodeRole = "spawner"
	NodeRoleJoin     NodeRole = "join"
)

// RouteOn is the edge trigger: which terminal outcome of the source node
// activates this edge.
type RouteOn string

const (
	RouteOnSuccess RouteOn = "success"
	RouteOnFailure RouteOn = "failure"
)

// EdgeKind distinguishes tree-defined edges from dynamically materialized
// fan-out/join edges (RunNodeEdge only).
type EdgeKind string

const (
	EdgeKindStatic             EdgeKind = "static"
	EdgeKindDynamicSpawnerChild EdgeKind = "dynamic_spawner_to_child"
	EdgeKindDynamicChildJoin    EdgeKind = "dynamic_child_to_join"
)

// RunStatus is the lifecycle status of a WorkflowRun.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the run status requires a non-null completed_at.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// RunNodeStatus is the lifecycle status of a RunNode attempt.
type RunNodeStatus string

const (
	RunNodeStatusPending   RunNodeStatus = "pending"
	RunNodeStatusRunning   RunNodeStatus = "running"
	RunNodeStatusCompleted RunNodeStatus = "completed"
	RunNodeStatusFailed    RunNodeStatus = "failed"
	RunNodeStatusSkipped   RunNodeStatus = "skipped"
	RunNodeStatusCancelled RunNodeStatus = "cancelled"
)

// IsTerminal reports whether the run-node status requires completed_at.
func (s RunNodeStatus) IsTerminal() bool {
	switch s {
	case RunNodeStatusCompleted, RunNodeStatusFailed, RunNodeStatusSkipped, RunNodeStatusCancelled:
		return true
	default:
		return false
	}
}

// runNodeTransitions is the database-enforced state machine from spec §3.
var runNodeTransitions = map[RunNodeStatus]map[RunNodeStatus]bool{
	RunNodeStatusPending: {
		RunNodeStatusRunning:   true,
		RunNodeStatusSkipped:   true,
		RunNodeStatusCancelled: true,
	},
	RunNodeStatusRunning: {
		RunNodeStatusCompleted: true,
		RunNodeStatusFailed:    true,
		RunNodeStatusCancelled: true,
	},
	RunNodeStatusCompleted: {
		RunNodeStatusPending: true,
	},
	RunNodeStatusFailed: {
		RunNodeStatusRunning: true,
		RunNodeStatusPending: true,
	},
	RunNodeStatusSkipped: {
		RunNodeStatusPending: true,
	},
}

// RunNodeTransitionAllowed reports whether from->to is a legal run_nodes
// status transition per spec §3. Mirrors the database trigger so the Go
// layer can reject illegal transitions before issuing the guarded UPDATE.
func RunNodeTransitionAllowed(from, to RunNodeStatus) bool {
	targets, ok := runNodeTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// ArtifactType is the kind of content a PhaseArtifact carries.
type ArtifactType string

const (
	ArtifactTypeReport ArtifactType = "report"
	ArtifactTypeNote   ArtifactType = "note"
	ArtifactTypeLog    ArtifactType = "log"
)

// ContentType is the encoding of a PhaseArtifact's content.
type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeJSON     ContentType = "json"
	ContentTypeDiff     ContentType = "diff"
)

// DecisionType is the routing signal recorded per node attempt.
type DecisionType string

const (
	DecisionApproved         DecisionType = "approved"
	DecisionChangesRequested DecisionType = "changes_requested"
	DecisionBlocked          DecisionType = "blocked"
	DecisionRetry            DecisionType = "retry"
	DecisionNoRoute          DecisionType = "no_route"
)

// BarrierStatus is the lifecycle status of a RunJoinBarrier.
type BarrierStatus string

const (
	BarrierStatusPending  BarrierStatus = "pending"
	BarrierStatusReady    BarrierStatus = "ready"
	BarrierStatusReleased BarrierStatus = "released"
	BarrierStatusCancelled BarrierStatus = "cancelled"
)

// StreamEventType is the canonical provider event type (spec §4.5).
type StreamEventType string

const (
	StreamEventSystem     StreamEventType = "system"
	StreamEventAssistant  StreamEventType = "assistant"
	StreamEventToolUse    StreamEventType = "tool_use"
	StreamEventToolResult StreamEventType = "tool_result"
	StreamEventUsage      StreamEventType = "usage"
	StreamEventResult     StreamEventType = "result"
)

// ComparisonOp is a guard expression comparison operator.
type ComparisonOp string

const (
	OpEQ ComparisonOp = "=="
	OpNE ComparisonOp = "!="
	OpGT ComparisonOp = ">"
	OpLT ComparisonOp = "<"
	OpGE ComparisonOp = ">="
	OpLE ComparisonOp = "<="
)
