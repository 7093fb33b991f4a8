// Package monitor implements the Workflow State Monitor (spec.md §4.8): a
// bus subscriber that keeps a live, queryable map of every workflow's
// execution state, grounded on the teacher's ExecutionContext read-accessor
// pattern (GetAllSharedState/GetAllResults/GetErrors, each copying into a
// fresh map/slice before returning) generalized from one workflow's state to
// a multi-workflow index.
package monitor

import (
	"sync"
	"time"

	"github.com/agentmesh/orchestrator/bus"
)

// Status mirrors a workflow's lifecycle as seen by the monitor.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// WorkflowState is the monitor's per-workflow record. Exported fields are
// never handed out directly — all read accessors return deep copies.
type WorkflowState struct {
	WorkflowID    string
	Status        Status
	NodeCount     int
	StartedAt     time.Time
	CompletedAt   time.Time
	Result        string
	ExecutedNodes map[string]bool
	RunningNodes  map[string]bool
	FailedNodes   map[string]bool
	NodeInputs    map[string]map[string]any
	NodeOutputs   map[string]map[string]any
	NodeErrors    map[string]string
}

func newWorkflowState(workflowID string, nodeCount int) *WorkflowState {
	return &WorkflowState{
		WorkflowID:    workflowID,
		Status:        StatusRunning,
		NodeCount:     nodeCount,
		StartedAt:     time.Now(),
		ExecutedNodes: make(map[string]bool),
		RunningNodes:  make(map[string]bool),
		FailedNodes:   make(map[string]bool),
		NodeInputs:    make(map[string]map[string]any),
		NodeOutputs:   make(map[string]map[string]any),
		NodeErrors:    make(map[string]string),
	}
}

func (s *WorkflowState) clone() *WorkflowState {
	c := &WorkflowState{
		WorkflowID:    s.WorkflowID,
		Status:        s.Status,
		NodeCount:     s.NodeCount,
		StartedAt:     s.StartedAt,
		CompletedAt:   s.CompletedAt,
		Result:        s.Result,
		ExecutedNodes: make(map[string]bool, len(s.ExecutedNodes)),
		RunningNodes:  make(map[string]bool, len(s.RunningNodes)),
		FailedNodes:   make(map[string]bool, len(s.FailedNodes)),
		NodeInputs:    make(map[string]map[string]any, len(s.NodeInputs)),
		NodeOutputs:   make(map[string]map[string]any, len(s.NodeOutputs)),
		NodeErrors:    make(map[string]string, len(s.NodeErrors)),
	}
	for k, v := range s.ExecutedNodes {
		c.ExecutedNodes[k] = v
	}
	for k, v := range s.RunningNodes {
		c.RunningNodes[k] = v
	}
	for k, v := range s.FailedNodes {
		c.FailedNodes[k] = v
	}
	for k, v := range s.NodeInputs {
		c.NodeInputs[k] = copyAnyMap(v)
	}
	for k, v := range s.NodeOutputs {
		c.NodeOutputs[k] = copyAnyMap(v)
	}
	for k, v := range s.NodeErrors {
		c.NodeErrors[k] = v
	}
	return c
}

func copyAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch tv := v.(type) {
		case map[string]any:
			out[k] = copyAnyMap(tv)
		case []any:
			s := make([]any, len(tv))
			for i, e := range tv {
				if em, ok := e.(map[string]any); ok {
					s[i] = copyAnyMap(em)
				} else {
					s[i] = e
				}
			}
			out[k] = s
		default:
			out[k] = v
		}
	}
	return out
}

// SystemStatus reports aggregate workflow counts across the monitor.
type SystemStatus struct {
	Total       int
	Running     int
	Completed   int
	Failed      int
	ActiveNodes int
}

// CompressionHook receives a summarized payload for a completed workflow.
// Enabling/disabling the hook swaps the monitor's extra bus subscription
// atomically — the Monitor stores the exact Token it subscribed with and
// unsubscribes that value before subscribing the replacement, matching the
// bus's documented critical invariant.
type CompressionHook func(workflowID string, summary map[string]any)

// Monitor keeps a live map of workflow_id -> WorkflowState, updated from bus
// events and queryable via deep-copying accessors.
type Monitor struct {
	mu     sync.RWMutex
	bus    *bus.Bus
	states map[string]*WorkflowState

	compressionToken *bus.Token
	compressionHook  CompressionHook
}

// New subscribes m to the core workflow/node lifecycle events on b and
// returns it ready to query.
func New(b *bus.Bus) *Monitor {
	m := &Monitor{bus: b, states: make(map[string]*WorkflowState)}
	bus.Subscribe(b, m.handleStarted)
	bus.Subscribe(b, m.handleCompleted)
	bus.Subscribe(b, m.handleNodeEvent)
	return m
}

func (m *Monitor) handleStarted(e bus.WorkflowExecutionStartedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[e.WorkflowID] = newWorkflowState(e.WorkflowID, e.NodeCount)
}

func (m *Monitor) handleCompleted(e bus.WorkflowExecutionCompletedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[e.WorkflowID]
	if !ok {
		// Out-of-order delivery or a monitor restart: create a minimal
		// record rather than dropping the event.
		state = newWorkflowState(e.WorkflowID, 0)
		m.states[e.WorkflowID] = state
	}
	state.CompletedAt = time.Now()
	state.Result = e.Summary
	if e.Success {
		state.Status = StatusCompleted
	} else {
		state.Status = StatusFailed
	}
}

func (m *Monitor) handleNodeEvent(e bus.NodeExecutionEvent) {
	if e.WorkflowID == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[e.WorkflowID]
	if !ok {
		state = newWorkflowState(e.WorkflowID, 0)
		m.states[e.WorkflowID] = state
	}

	switch e.Status {
	case bus.NodeStatusRunning:
		state.RunningNodes[e.NodeID] = true
		delete(state.FailedNodes, e.NodeID)
	case bus.NodeStatusCompleted:
		delete(state.RunningNodes, e.NodeID)
		state.ExecutedNodes[e.NodeID] = true
		state.NodeOutputs[e.NodeID] = copyAnyMap(e.Output)
	case bus.NodeStatusFailed:
		delete(state.RunningNodes, e.NodeID)
		state.FailedNodes[e.NodeID] = true
		state.NodeErrors[e.NodeID] = e.Error
	case bus.NodeStatusSkipped:
		delete(state.RunningNodes, e.NodeID)
	}
}

// GetWorkflowState returns a deep copy of the record for id, nil if unknown.
func (m *Monitor) GetWorkflowState(id string) *WorkflowState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[id]
	if !ok {
		return nil
	}
	return state.clone()
}

// GetAllWorkflowStates returns a deep copy of every tracked workflow state.
func (m *Monitor) GetAllWorkflowStates() map[string]*WorkflowState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*WorkflowState, len(m.states))
	for id, state := range m.states {
		out[id] = state.clone()
	}
	return out
}

// GetSystemStatus returns aggregate counts across every tracked workflow.
func (m *Monitor) GetSystemStatus() SystemStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var status SystemStatus
	status.Total = len(m.states)
	for _, state := range m.states {
		switch state.Status {
		case StatusRunning:
			status.Running++
		case StatusCompleted:
			status.Completed++
		case StatusFailed:
			status.Failed++
		}
		status.ActiveNodes += len(state.RunningNodes)
	}
	return status
}

// EnableCompression subscribes the monitor's compression handler, first
// unsubscribing any previously-registered one (stored on the instance as a
// Token) so toggling the hook never leaves a stale or duplicate handler.
func (m *Monitor) EnableCompression(hook CompressionHook) {
	m.mu.Lock()
	prevToken := m.compressionToken
	m.compressionHook = hook
	m.mu.Unlock()

	if prevToken != nil {
		m.bus.Unsubscribe(*prevToken)
	}

	token := bus.Subscribe(m.bus, m.compressionHandler)

	m.mu.Lock()
	m.compressionToken = &token
	m.mu.Unlock()
}

// DisableCompression unsubscribes the compression handler, if one is active.
func (m *Monitor) DisableCompression() {
	m.mu.Lock()
	prevToken := m.compressionToken
	m.compressionToken = nil
	m.compressionHook = nil
	m.mu.Unlock()

	if prevToken != nil {
		m.bus.Unsubscribe(*prevToken)
	}
}

func (m *Monitor) compressionHandler(e bus.WorkflowExecutionCompletedEvent) {
	m.mu.RLock()
	hook := m.compressionHook
	m.mu.RUnlock()
	if hook == nil {
		return
	}

	state := m.GetWorkflowState(e.WorkflowID)
	if state == nil {
		return
	}
	hook(e.WorkflowID, map[string]any{
		"workflow_id":    state.WorkflowID,
		"status":         string(state.Status),
		"node_count":     state.NodeCount,
		"executed_nodes": len(state.ExecutedNodes),
		"failed_nodes":   len(state.FailedNodes),
		"result":         state.Result,
	})
}
