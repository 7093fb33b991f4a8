package supervision

import (
	"sync"
	"time"

	"github.com/agentmesh/orchestrator/bus"
	"github.com/agentmesh/orchestrator/injection"
)

// Info mirrors spec.md §3's SupervisionInfo: the payload the intervention
// executor consumes.
type Info struct {
	SessionID        string
	WorkflowID       string
	Action           bus.InterventionAction
	Content          string
	TriggerRule      string
	TriggerCondition string
}

// AuditEntry is one record in the coordinator's unified audit log.
type AuditEntry struct {
	Timestamp  time.Time
	SessionID  string
	WorkflowID string
	Action     bus.InterventionAction
	Status     string
	Content    string
}

// SupervisionCoordinator orchestrates the detectors, efficiency monitor and
// strategy repository: it publishes InterventionEvent/TaskTerminationEvent
// onto the shared bus and accumulates an audit trail, grounded on the
// teacher's SupervisorStrategy role of coordinating cross-agent synthesis
// (reasoning/supervisor_strategy.go), generalized from prompt-slot content
// to structured intervention records.
type SupervisionCoordinator struct {
	mu    sync.Mutex
	bus   *bus.Bus
	audit []AuditEntry
}

// NewSupervisionCoordinator returns a coordinator publishing onto b (nil is
// valid — events are then simply not published).
func NewSupervisionCoordinator(b *bus.Bus) *SupervisionCoordinator {
	return &SupervisionCoordinator{bus: b}
}

func (c *SupervisionCoordinator) recordAudit(entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audit = append(c.audit, entry)
}

// AuditLog returns a defensive copy of every recorded audit entry.
func (c *SupervisionCoordinator) AuditLog() []AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AuditEntry, len(c.audit))
	copy(out, c.audit)
	return out
}

// Intervene publishes an InterventionEvent for info.
func (c *SupervisionCoordinator) Intervene(info Info, triggerID string) {
	if c.bus == nil {
		return
	}
	bus.Publish(c.bus, bus.InterventionEvent{
		Source: bus.SourceCoordinatorAgent, Timestamp: time.Now(),
		SessionID: info.SessionID, WorkflowID: info.WorkflowID,
		Action: info.Action, Content: info.Content, TriggerID: triggerID,
	})
}

// InitiateTermination publishes a TaskTerminationEvent and records it to
// the audit log.
func (c *SupervisionCoordinator) InitiateTermination(taskID, reason, severity string, graceful bool, workflowID string) {
	if c.bus != nil {
		bus.Publish(c.bus, bus.TaskTerminationEvent{
			Source: bus.SourceCoordinatorAgent, Timestamp: time.Now(),
			TaskID: taskID, WorkflowID: workflowID, Reason: reason, Severity: severity, Graceful: graceful,
		})
	}
	c.recordAudit(AuditEntry{Timestamp: time.Now(), WorkflowID: workflowID, Status: "terminated", Content: reason})
}

// FacadeLogEntry is one record in SupervisionFacade's own intervention log,
// distinct from the coordinator's unified audit log.
type FacadeLogEntry struct {
	Timestamp time.Time
	SessionID string
	Action    bus.InterventionAction
	Status    string
}

// SupervisionFacade dispatches a Info by its Action field into the Context
// Injection Manager, logging the outcome of every branch.
type SupervisionFacade struct {
	coordinator *SupervisionCoordinator
	injections  *injection.Manager

	mu  sync.Mutex
	log []FacadeLogEntry
}

// NewSupervisionFacade wires a coordinator and injection manager together.
func NewSupervisionFacade(coordinator *SupervisionCoordinator, injections *injection.Manager) *SupervisionFacade {
	return &SupervisionFacade{coordinator: coordinator, injections: injections}
}

// ExecuteIntervention dispatches on info.Action:
//   - WARNING: injects a PRE_THINKING warning, status "warning_injected".
//   - REPLACE: enqueues a SUPPLEMENT injection at PRE_THINKING priority 40
//     carrying the replacement content, status "content_replaced".
//   - TERMINATE: enqueues an INTERVENTION injection, status "task_terminated".
//   - any other value: status "unknown_action"; no injection is enqueued and
//     no InterventionEvent is published.
//
// Every branch, including the default, is recorded to both the facade's own
// log and the coordinator's unified audit log.
func (f *SupervisionFacade) ExecuteIntervention(info Info) string {
	switch info.Action {
	case bus.InterventionWarning:
		f.injections.InjectWarning(info.SessionID, info.Content, info.TriggerRule)
		f.finish(info, "warning_injected")
	case bus.InterventionReplace:
		f.injections.InjectSupplement(info.SessionID, injection.PointPreThinking, info.Content, info.TriggerRule, 40)
		f.finish(info, "content_replaced")
	case bus.InterventionTerminate:
		f.injections.InjectIntervention(info.SessionID, info.Content, info.TriggerRule)
		f.finish(info, "task_terminated")
	default:
		f.recordLog(info, "unknown_action")
		return "unknown_action"
	}
	return f.log[len(f.log)-1].Status
}

func (f *SupervisionFacade) finish(info Info, status string) {
	f.coordinator.Intervene(info, info.TriggerRule)
	f.recordLog(info, status)
}

func (f *SupervisionFacade) recordLog(info Info, status string) {
	f.mu.Lock()
	f.log = append(f.log, FacadeLogEntry{Timestamp: time.Now(), SessionID: info.SessionID, Action: info.Action, Status: status})
	f.mu.Unlock()

	f.coordinator.recordAudit(AuditEntry{
		Timestamp: time.Now(), SessionID: info.SessionID, WorkflowID: info.WorkflowID,
		Action: info.Action, Status: status, Content: info.Content,
	})
}

// Log returns a defensive copy of every intervention the facade has
// dispatched.
func (f *SupervisionFacade) Log() []FacadeLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FacadeLogEntry, len(f.log))
	copy(out, f.log)
	return out
}
