// Package reflection implements the Reflection Context Manager (spec.md
// §4.8): a bus subscriber that keeps the latest post-execution reflection
// assessment plus a history per workflow, grounded on the same
// ExecutionContext read-accessor pattern monitor.Monitor generalizes
// (deep-copy-on-read, mutex-guarded map keyed by workflow_id).
package reflection

import (
	"sync"
	"time"

	"github.com/agentmesh/orchestrator/bus"
)

// Assessment is one reflection result, stored both as the latest value and
// appended to a workflow's history.
type Assessment struct {
	WorkflowID     string
	Assessment     string
	ShouldRetry    bool
	Confidence     float64
	Recommendation []string
	Timestamp      time.Time
}

func (a Assessment) clone() Assessment {
	c := a
	if a.Recommendation != nil {
		c.Recommendation = append([]string(nil), a.Recommendation...)
	}
	return c
}

type workflowReflections struct {
	latest  Assessment
	history []Assessment
}

// CompressionHook receives a summarized reflection payload. Enabling or
// disabling it atomically swaps the manager's extra bus subscription, the
// same pattern as monitor.Monitor.EnableCompression.
type CompressionHook func(workflowID string, summary map[string]any)

// Manager keeps workflow_id -> the latest reflection assessment plus history.
type Manager struct {
	mu    sync.RWMutex
	bus   *bus.Bus
	state map[string]*workflowReflections

	compressionToken *bus.Token
	compressionHook  CompressionHook
}

// New subscribes m to WorkflowReflectionCompletedEvent on b.
func New(b *bus.Bus) *Manager {
	m := &Manager{bus: b, state: make(map[string]*workflowReflections)}
	bus.Subscribe(b, m.handleReflectionCompleted)
	return m
}

func (m *Manager) handleReflectionCompleted(e bus.WorkflowReflectionCompletedEvent) {
	a := Assessment{
		WorkflowID:     e.WorkflowID,
		Assessment:     e.Assessment,
		ShouldRetry:    e.ShouldRetry,
		Confidence:     e.Confidence,
		Recommendation: append([]string(nil), e.Recommendation...),
		Timestamp:      time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	wr, ok := m.state[e.WorkflowID]
	if !ok {
		wr = &workflowReflections{}
		m.state[e.WorkflowID] = wr
	}
	wr.latest = a
	wr.history = append(wr.history, a)
}

// GetReflectionSummary returns a deep copy of the latest assessment and full
// history for id. ok is false if no reflection has been recorded for id.
func (m *Manager) GetReflectionSummary(id string) (latest Assessment, history []Assessment, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wr, found := m.state[id]
	if !found {
		return Assessment{}, nil, false
	}

	hist := make([]Assessment, len(wr.history))
	for i, a := range wr.history {
		hist[i] = a.clone()
	}
	return wr.latest.clone(), hist, true
}

// EnableCompression subscribes the manager's compression handler, first
// unsubscribing any previously-registered one stored on the instance.
func (m *Manager) EnableCompression(hook CompressionHook) {
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
func (m *Manager) DisableCompression() {
	m.mu.Lock()
	prevToken := m.compressionToken
	m.compressionToken = nil
	m.compressionHook = nil
	m.mu.Unlock()

	if prevToken != nil {
		m.bus.Unsubscribe(*prevToken)
	}
}

func (m *Manager) compressionHandler(e bus.WorkflowReflectionCompletedEvent) {
	m.mu.RLock()
	hook := m.compressionHook
	m.mu.RUnlock()
	if hook == nil {
		return
	}

	latest, history, ok := m.GetReflectionSummary(e.WorkflowID)
	if !ok {
		return
	}
	hook(e.WorkflowID, map[string]any{
		"workflow_id":  e.WorkflowID,
		"assessment":   latest.Assessment,
		"should_retry": latest.ShouldRetry,
		"confidence":   latest.Confidence,
		"history_size": len(history),
	})
}
