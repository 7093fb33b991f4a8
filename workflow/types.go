// Package workflow implements the Workflow Agent — the core DAG execution
// engine (spec.md §4.6): plan materialization, topological scheduling,
// conditional edge evaluation, wave-based parallel execution, hierarchical
// node expansion, and retry with structured failure results. It generalizes
// the teacher's workflow.{DAGExecutor,AutonomousExecutor} pair (which only
// executes a flat, pre-ordered list of named agents) into a full typed
// Node/Edge arena with Kahn's-algorithm scheduling.
package workflow

import (
	"context"
	"time"
)

// NodeID is an opaque arena index — per spec.md §9's "never raw
// back-pointers" guidance, both ParentID and child slots are NodeID values
// into the owning Graph's node slice, not pointers.
type NodeID int

// InvalidNodeID (-1) is the sentinel for "no node"; 0 is a valid arena index.
const InvalidNodeID NodeID = -1

// NodeType mirrors node.Type's built-in type enumeration.
type NodeType string

const (
	NodeStart       NodeType = "START"
	NodeEnd         NodeType = "END"
	NodeLLM         NodeType = "LLM"
	NodeAPI         NodeType = "API"
	NodeCode        NodeType = "CODE"
	NodeCondition   NodeType = "CONDITION"
	NodeLoop        NodeType = "LOOP"
	NodeParallel    NodeType = "PARALLEL"
	NodeKnowledge   NodeType = "KNOWLEDGE"
	NodeClassify    NodeType = "CLASSIFY"
	NodeTemplate    NodeType = "TEMPLATE"
	NodeMCP         NodeType = "MCP"
	NodeGeneric     NodeType = "GENERIC"
	NodeFile        NodeType = "FILE"
	NodeDataProcess NodeType = "DATA_PROCESS"
	NodeHuman       NodeType = "HUMAN"
	NodeContainer   NodeType = "CONTAINER"
)

// Node is one executable unit in the DAG. Invariants (spec.md §3):
// (a) Children is ordered and unique; (b) ParentID is set iff this node
// appears in another node's Children; (c) EffectiveType() applies the
// _custom_type override; (d) IsContainer()==true requires ContainerConfig.
type Node struct {
	ID        NodeID
	Name      string
	Type      NodeType
	Config    map[string]any
	ParentID  NodeID
	Children  []NodeID
	Collapsed bool
	Output    map[string]any
}

// EffectiveType returns config["_custom_type"] if set, else Type — spec.md
// §3 invariant (c).
func (n *Node) EffectiveType() NodeType {
	if n.Config != nil {
		if custom, ok := n.Config["_custom_type"].(string); ok && custom != "" {
			return NodeType(custom)
		}
	}
	return n.Type
}

// IsContainer reports config["is_container"] == true.
func (n *Node) IsContainer() bool {
	if n.Config == nil {
		return false
	}
	is, _ := n.Config["is_container"].(bool)
	return is
}

// ContainerConfig returns config["container_config"], if present.
func (n *Node) ContainerConfig() (map[string]any, bool) {
	if n.Config == nil {
		return nil, false
	}
	cc, ok := n.Config["container_config"].(map[string]any)
	return cc, ok
}

// EdgeID is an opaque arena index for edges.
type EdgeID int

// Edge is a directed link between two resident nodes, optionally guarded by
// a condition expression. An empty Condition means "always take" (spec.md
// §3).
type Edge struct {
	ID        EdgeID
	SourceID  NodeID
	TargetID  NodeID
	Condition string
}

// NodeDefinition is the planner-local description of one node, referenced
// by name until materialization assigns it a NodeID.
type NodeDefinition struct {
	Name   string
	Type   NodeType
	Config map[string]any
}

// EdgeDefinition references its endpoints by planner-local node name; it is
// resolved to NodeIDs at materialization time. Per spec.md §3, every edge
// name must resolve — unresolved edges are a validation error, never a
// silent drop.
type EdgeDefinition struct {
	SourceName string
	TargetName string
	Condition  string
}

// WorkflowPlan is the planner's declarative output.
type WorkflowPlan struct {
	Name  string
	Goal  string
	Nodes []NodeDefinition
	Edges []EdgeDefinition
}

// ErrorCode enumerates the error taxonomy of spec.md §7.
type ErrorCode string

const (
	ErrInternal         ErrorCode = "INTERNAL_ERROR"
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrTimeout          ErrorCode = "TIMEOUT"
	ErrRateLimit        ErrorCode = "RATE_LIMIT"
	ErrUpstream         ErrorCode = "UPSTREAM_ERROR"
	ErrCancelled        ErrorCode = "CANCELLED"
	ErrNodeNotFound     ErrorCode = "NODE_NOT_FOUND"
	ErrCycleDetected    ErrorCode = "CYCLE_DETECTED"
)

// ExecutionResultMetadata always carries these three fields per spec.md §3.
type ExecutionResultMetadata struct {
	ExecutionTimeMs int64
	RetryCount      int
	NodeID          string
	Extra           map[string]any
}

// ExecutionResult is a Go discriminated union via the Ok tag field, not an
// interface — following the teacher's explicit preference for concrete,
// inspectable structs over interface{} seen throughout workflow/executor.go
// and workflow/types.go.
type ExecutionResult struct {
	Ok           bool
	Output       map[string]any
	ErrorCode    ErrorCode
	ErrorMessage string
	Metadata     ExecutionResultMetadata
}

// RetryPolicy configures Engine.executeWithRetry's retry behavior.
type RetryPolicy struct {
	MaxRetries     int
	BaseDelay      time.Duration
	BackoffFactor  float64
	RetryableCodes []ErrorCode
}

// IsRetryable reports whether code is in RetryableCodes.
func (p RetryPolicy) IsRetryable(code ErrorCode) bool {
	for _, c := range p.RetryableCodes {
		if c == code {
			return true
		}
	}
	return false
}

// DelayForAttempt computes base_delay * backoff_factor^attempt (spec.md
// §4.6).
func (p RetryPolicy) DelayForAttempt(attempt int) time.Duration {
	delay := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.BackoffFactor
	}
	return time.Duration(delay)
}

// OutputValidator runs on a successful result and may downgrade it to
// VALIDATION_FAILED.
type OutputValidator func(output map[string]any) error

// Status is the per-node state machine of spec.md §4.6.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusSkipped   Status = "SKIPPED"
)

// ExecutionError is the module's wrapping error type, following the
// teacher's {Component, Action, Message, Err} convention seen identically in
// workflow.WorkflowExecutionError and team.TeamError.
type ExecutionError struct {
	Component string
	Action    string
	Message   string
	Err       error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return e.Component + ": " + e.Action + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Component + ": " + e.Action + ": " + e.Message
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// suspendBeforeWave checks for cancellation before each topological wave;
// the concrete suspension-point discipline spec.md §5 requires.
func suspendBeforeWave(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
