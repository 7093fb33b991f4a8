package bus

import "time"

// EventSource identifies which agent emitted an event.
type EventSource string

const (
	SourceWorkflowAgent    EventSource = "workflow_agent"
	SourceCoordinatorAgent EventSource = "coordinator_agent"
	SourcePlannerAgent     EventSource = "planner_agent"
)

// NodeStatus mirrors the per-node state machine in workflow.
type NodeStatus string

const (
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
)

// WorkflowExecutionStartedEvent is published once per workflow, before the
// first node begins executing.
type WorkflowExecutionStartedEvent struct {
	Source     EventSource
	Timestamp  time.Time
	WorkflowID string
	NodeCount  int
}

// WorkflowExecutionCompletedEvent is published once per workflow, whether it
// succeeded or failed.
type WorkflowExecutionCompletedEvent struct {
	Source     EventSource
	Timestamp  time.Time
	WorkflowID string
	Success    bool
	Summary    string
}

// NodeExecutionEvent is published before and after each node execution.
type NodeExecutionEvent struct {
	Source     EventSource
	Timestamp  time.Time
	WorkflowID string
	NodeID     string
	Status     NodeStatus
	Output     map[string]any
	Error      string
}

// ExecutionProgressEvent reports fractional workflow progress.
type ExecutionProgressEvent struct {
	Source     EventSource
	Timestamp  time.Time
	WorkflowID string
	NodeID     string
	Status     NodeStatus
	Progress   float64
	Message    string
	Metadata   map[string]any
}

// WorkflowReflectionCompletedEvent carries the post-execution reflection
// assessment.
type WorkflowReflectionCompletedEvent struct {
	Source         EventSource
	Timestamp      time.Time
	WorkflowID     string
	Assessment     string
	ShouldRetry    bool
	Confidence     float64
	Recommendation []string
}

// InterventionAction enumerates the supervision intervention kinds.
type InterventionAction string

const (
	InterventionWarning   InterventionAction = "WARNING"
	InterventionReplace   InterventionAction = "REPLACE"
	InterventionTerminate InterventionAction = "TERMINATE"
)

// InterventionEvent is published by the Supervision Coordinator every time
// it intervenes.
type InterventionEvent struct {
	Source     EventSource
	Timestamp  time.Time
	SessionID  string
	WorkflowID string
	Action     InterventionAction
	Content    string
	TriggerID  string
}

// ContextInjectionEvent announces that a new injection has been queued.
type ContextInjectionEvent struct {
	Source        EventSource
	Timestamp     time.Time
	SessionID     string
	InjectionType string
	InjectionPoint string
}

// TaskTerminationEvent is published when a workflow is force-terminated.
type TaskTerminationEvent struct {
	Source     EventSource
	Timestamp  time.Time
	TaskID     string
	WorkflowID string
	Reason     string
	Severity   string
	Graceful   bool
}

// NodeConditionWarningEvent is an additive diagnostic: published whenever a
// conditional edge's expression fails to evaluate and is silently treated as
// false. It never changes execution semantics (see DESIGN.md, Open Question
// resolution for §9) — it exists purely so an interested subscriber such as
// the CLI can surface the degradation instead of it passing unnoticed.
type NodeConditionWarningEvent struct {
	Source     EventSource
	Timestamp  time.Time
	WorkflowID string
	EdgeID     string
	Condition  string
	Reason     string
}
