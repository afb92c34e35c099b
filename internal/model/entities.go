package model

import "time"

// WorkflowTree is a versioned definition of a graph. Immutable once
// published; at most one draft per TreeKey.
type WorkflowTree struct {
	ID        int64
	TreeKey   string
	Version   int
	Status    TreeStatus
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TreeNode is a node in a tree definition.
type TreeNode struct {
	ID                   int64
	TreeID               int64
	NodeKey              string
	SequenceIndex        int
	NodeType             NodeType
	NodeRole             NodeRole
	Provider             string
	Model                string
	PromptTemplateID     string
	ExecutionPermissions string // JSON
	ErrorHandlerConfig   string // JSON
	MaxRetries           int
	MaxChildren          int
}

// TreeEdge is a directed edge within one tree.
type TreeEdge struct {
	ID         int64
	TreeID     int64
	SourceID   int64
	TargetID   int64
	RouteOn    RouteOn
	Priority   int
	Auto       bool
	GuardField string
	GuardOp    ComparisonOp
	GuardValue string
}

// WorkflowRun is an execution instance of one tree version.
type WorkflowRun struct {
	ID          int64
	TreeID      int64
	Status      RunStatus
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	MaxSteps    int
	StepCount   int
}

// RunNode is a per-run instance of a tree node (or a dynamically spawned
// child). Key (run, node_key, attempt) unique.
type RunNode struct {
	ID                   int64
	RunID                int64
	TreeNodeID           *int64 // nil for dynamically spawned children
	NodeKey              string
	Attempt              int
	NodeType             NodeType
	NodeRole             NodeRole
	Provider             string
	Model                string
	Prompt               string
	ExecutionPermissions string
	MaxRetries           int
	MaxChildren          int
	SequenceIndex        int
	SequencePath         string
	LineageDepth         int
	SpawnerNodeID        *int64
	JoinNodeID           *int64
	Status               RunNodeStatus
	StartedAt            *time.Time
	CompletedAt          *time.Time
}

// RunNodeEdge is a run-scoped materialized edge.
type RunNodeEdge struct {
	ID         int64
	RunID      int64
	SourceID   int64
	TargetID   int64
	RouteOn    RouteOn
	Priority   int
	Auto       bool
	GuardField string
	GuardOp    ComparisonOp
	GuardValue string
	EdgeKind   EdgeKind
}

// PhaseArtifact is output of a run node attempt.
type PhaseArtifact struct {
	ID           int64
	RunID        int64
	RunNodeID    int64
	Attempt      int
	ArtifactType ArtifactType
	ContentType  ContentType
	Content      string
	Metadata     string // JSON
	CreatedAt    time.Time
}

// RoutingDecision is one row per node attempt.
type RoutingDecision struct {
	ID           int64
	RunID        int64
	RunNodeID    int64
	Attempt      int
	DecisionType DecisionType
	Source       string // "provider_result_metadata" | "result_content_contract_fallback"
	CreatedAt    time.Time
}

// RunJoinBarrier is the per-spawner-emission join gate.
type RunJoinBarrier struct {
	ID                int64
	RunID             int64
	SpawnerRunNodeID  int64
	JoinRunNodeID     int64
	ExpectedChildren  int
	TerminalChildren  int
	CompletedChildren int
	FailedChildren    int
	Status            BarrierStatus
	CreatedAt         time.Time
}

// RunNodeStreamEvent is one provider event persisted for an attempt.
type RunNodeStreamEvent struct {
	ID              int64
	RunID           int64
	RunNodeID       int64
	Attempt         int
	Sequence        int
	EventType       StreamEventType
	ContentPreview  string
	Metadata        string // JSON, sanitized
	DeltaTokens     *int
	CumulativeTokens *int
	Redacted        bool
	Truncated       bool
	CreatedAt       time.Time
}

// RunNodeDiagnostics is one row per (run, run_node, attempt).
type RunNodeDiagnostics struct {
	ID              int64
	RunID           int64
	RunNodeID       int64
	Attempt         int
	EventCount      int
	Redacted        bool
	Truncated       bool
	PayloadJSON     string
	CreatedAt       time.Time
}
