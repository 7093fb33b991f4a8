// Package ctxstore implements the hierarchical context manager: a
// GlobalContext (per user) owns SessionContexts, which own WorkflowContexts.
// Generalized from the teacher's single bounded conversation buffer
// (context/conversation.go) to the three-level nesting spec.md requires.
package ctxstore

import "sync"

// WorkflowContext stores the last output produced by each node in one
// workflow run. Per spec.md §5's shared-resource policy, the node output map
// is owned exclusively by that workflow's single-threaded executor tree, so
// it is intentionally lock-free — no cross-workflow visibility is possible
// because each WorkflowContext is private to one SessionContext entry.
type WorkflowContext struct {
	ID          string
	nodeOutputs map[string]any
}

func newWorkflowContext(id string) *WorkflowContext {
	return &WorkflowContext{
		ID:          id,
		nodeOutputs: make(map[string]any),
	}
}

// SetNodeOutput stores output as the last produced value for nodeID.
func (w *WorkflowContext) SetNodeOutput(nodeID string, output any) {
	w.nodeOutputs[nodeID] = output
}

// GetNodeOutput returns the last stored output for nodeID, or (nil, false)
// if nothing has been stored — the "none sentinel" of spec.md §4.2.
func (w *WorkflowContext) GetNodeOutput(nodeID string) (any, bool) {
	v, ok := w.nodeOutputs[nodeID]
	return v, ok
}

// AllNodeOutputs returns a shallow copy of the node output map, suitable for
// building a merged variable scope for conditional edge evaluation.
func (w *WorkflowContext) AllNodeOutputs() map[string]any {
	out := make(map[string]any, len(w.nodeOutputs))
	for k, v := range w.nodeOutputs {
		out[k] = v
	}
	return out
}

// SessionContext owns zero or more WorkflowContexts for one conversational
// session.
type SessionContext struct {
	ID string

	mu        sync.RWMutex
	workflows map[string]*WorkflowContext
	vars      map[string]any
}

func newSessionContext(id string) *SessionContext {
	return &SessionContext{
		ID:        id,
		workflows: make(map[string]*WorkflowContext),
		vars:      make(map[string]any),
	}
}

// BeginWorkflow creates and registers a new WorkflowContext, per the
// "created when a workflow begins" lifecycle rule.
func (s *SessionContext) BeginWorkflow(workflowID string) *WorkflowContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	wc := newWorkflowContext(workflowID)
	s.workflows[workflowID] = wc
	return wc
}

// EndWorkflow explicitly destroys a WorkflowContext, per the
// "destroyed explicitly" lifecycle rule.
func (s *SessionContext) EndWorkflow(workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workflows, workflowID)
}

// Workflow returns the WorkflowContext for workflowID, if still alive.
func (s *SessionContext) Workflow(workflowID string) (*WorkflowContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wc, ok := s.workflows[workflowID]
	return wc, ok
}

// SetVar stores a session-scoped variable, visible to every workflow in this
// session's merged evaluation scope.
func (s *SessionContext) SetVar(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[key] = value
}

// Vars returns a copy of the session-scoped variables.
func (s *SessionContext) Vars() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// GlobalContext is the top-level, per-user context; it owns an arbitrary
// number of SessionContexts.
type GlobalContext struct {
	UserID string

	mu       sync.RWMutex
	sessions map[string]*SessionContext
	vars     map[string]any
}

// NewGlobalContext constructs an empty GlobalContext for the given user.
func NewGlobalContext(userID string) *GlobalContext {
	return &GlobalContext{
		UserID:   userID,
		sessions: make(map[string]*SessionContext),
		vars:     make(map[string]any),
	}
}

// Session returns the SessionContext for sessionID, creating it on first use.
func (g *GlobalContext) Session(sessionID string) *SessionContext {
	g.mu.Lock()
	defer g.mu.Unlock()

	sc, ok := g.sessions[sessionID]
	if !ok {
		sc = newSessionContext(sessionID)
		g.sessions[sessionID] = sc
	}
	return sc
}

// EndSession removes a SessionContext and everything it owns.
func (g *GlobalContext) EndSession(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, sessionID)
}

// SetVar stores a global variable, visible across every session of this user.
func (g *GlobalContext) SetVar(key string, value any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.vars[key] = value
}

// Vars returns a copy of the global variables.
func (g *GlobalContext) Vars() map[string]any {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]any, len(g.vars))
	for k, v := range g.vars {
		out[k] = v
	}
	return out
}
