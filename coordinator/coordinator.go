// Package coordinator implements the Coordinator Agent (spec.md §2): it
// wires the Workflow State Monitor, Reflection Context Manager, Supervision
// Subsystem, and Context Injection Manager together behind the shared bus,
// and adds the two subscriptions none of those packages owns on their own —
// feeding node execution timing into the efficiency monitor, and screening
// node output text through the conversation supervision detectors.
//
// Grounded on the teacher's team/services.go composition style: small
// per-concern services (TeamWorkflowService, TeamAgentService) assembled
// into one struct that the caller constructs once and treats as the single
// entry point for that concern.
package coordinator

import (
	"fmt"

	"github.com/agentmesh/orchestrator/bus"
	"github.com/agentmesh/orchestrator/config"
	"github.com/agentmesh/orchestrator/injection"
	"github.com/agentmesh/orchestrator/monitor"
	"github.com/agentmesh/orchestrator/reflection"
	"github.com/agentmesh/orchestrator/supervision"
)

// strategyToAction maps a triggered Strategy's action to the InterventionAction
// the supervision facade understands. StrategyLog has no bus.InterventionAction
// counterpart — an issue whose top strategy is StrategyLog is skipped: no
// intervention is executed and nothing is written to the audit log.
var strategyToAction = map[supervision.StrategyAction]bus.InterventionAction{
	supervision.StrategyWarn:      bus.InterventionWarning,
	supervision.StrategyBlock:     bus.InterventionReplace,
	supervision.StrategyTerminate: bus.InterventionTerminate,
}

// Coordinator composes the Coordinator Agent's collaborators and the glue
// subscriptions between them.
type Coordinator struct {
	Bus *bus.Bus

	Monitor    *monitor.Monitor
	Reflection *reflection.Manager
	Injection  *injection.Manager

	Detector   *supervision.ConversationSupervisionModule
	Efficiency *supervision.WorkflowEfficiencyMonitor
	Strategies *supervision.StrategyRepository
	Audit      *supervision.SupervisionCoordinator
	Facade     *supervision.SupervisionFacade

	progressToken bus.Token
	nodeToken     bus.Token
}

// New constructs every collaborator from cfg and wires the glue
// subscriptions. The caller owns b and may publish/subscribe on it
// independently — Coordinator only adds subscribers, it never replaces b.
func New(b *bus.Bus, cfg *config.AppConfig) *Coordinator {
	if cfg == nil {
		cfg = config.Default()
	}

	injections := injection.NewManager(b)
	auditCoordinator := supervision.NewSupervisionCoordinator(b)

	c := &Coordinator{
		Bus:        b,
		Monitor:    monitor.New(b),
		Reflection: reflection.New(b),
		Injection:  injections,
		Detector:   supervision.NewConversationSupervisionModule(),
		Efficiency: supervision.NewWorkflowEfficiencyMonitor(cfg.Supervision.ToThresholds()),
		Strategies: supervision.NewStrategyRepository(),
		Audit:      auditCoordinator,
		Facade:     supervision.NewSupervisionFacade(auditCoordinator, injections),
	}

	c.progressToken = bus.Subscribe(b, c.handleProgress)
	c.nodeToken = bus.Subscribe(b, c.handleNodeExecution)

	return c
}

// handleProgress feeds every node's reported execution time into the
// efficiency monitor and intervenes with a WARNING the moment a workflow
// crosses a configured threshold. Neither event here carries a session id
// (only a workflow id), so the workflow id doubles as the injection session
// key for glue-originated interventions.
func (c *Coordinator) handleProgress(e bus.ExecutionProgressEvent) {
	if e.Status != bus.NodeStatusCompleted && e.Status != bus.NodeStatusFailed {
		return
	}
	ms, ok := e.Metadata["execution_time_ms"].(int64)
	if !ok {
		return
	}

	c.Efficiency.RecordNode(e.WorkflowID, supervision.NodeMetric{
		NodeID:          e.NodeID,
		DurationSeconds: float64(ms) / 1000.0,
	})

	for _, alert := range c.Efficiency.CheckThresholds(e.WorkflowID) {
		c.Facade.ExecuteIntervention(supervision.Info{
			SessionID:        e.WorkflowID,
			WorkflowID:       e.WorkflowID,
			Action:           bus.InterventionWarning,
			Content:          fmt.Sprintf("%s threshold exceeded: %.2f > %.2f", alert.Type, alert.Value, alert.Threshold),
			TriggerRule:      "efficiency_monitor",
			TriggerCondition: alert.Type,
		})
	}
}

// handleNodeExecution screens a completed node's textual output through the
// conversation supervision detectors, and if blocked, consults the strategy
// repository for the configured response before falling back to a WARNING.
func (c *Coordinator) handleNodeExecution(e bus.NodeExecutionEvent) {
	if e.Status != bus.NodeStatusCompleted {
		return
	}
	text := outputText(e.Output)
	if text == "" {
		return
	}

	result := c.Detector.CheckAll(text)
	if result.Passed {
		return
	}

	for _, issue := range result.Issues {
		action := bus.InterventionWarning
		triggerRule := "conversation_supervision"
		if strategies := c.Strategies.FindByCondition(string(issue.Category)); len(strategies) > 0 {
			top := strategies[0]
			if top.Action == supervision.StrategyLog {
				continue
			}
			if mapped, ok := strategyToAction[top.Action]; ok {
				action = mapped
			}
			triggerRule = top.Name
		}

		c.Facade.ExecuteIntervention(supervision.Info{
			SessionID:        e.WorkflowID,
			WorkflowID:       e.WorkflowID,
			Action:           action,
			Content:          fmt.Sprintf("%s: %s", issue.Category, issue.Match),
			TriggerRule:      triggerRule,
			TriggerCondition: string(issue.Category),
		})
	}
}

// outputText extracts the first string-valued "text"/"content"/"response"
// field from a node's output map, the convention nodedef's echo and LLM
// dispatch paths populate.
func outputText(output map[string]any) string {
	for _, key := range []string{"text", "content", "response"} {
		if v, ok := output[key].(string); ok {
			return v
		}
	}
	return ""
}

// WorkflowState returns the monitor's current snapshot for workflowID, nil
// if unknown.
func (c *Coordinator) WorkflowState(workflowID string) *monitor.WorkflowState {
	return c.Monitor.GetWorkflowState(workflowID)
}

// ReflectionSummary returns the latest and historical reflection
// assessments recorded for workflowID.
func (c *Coordinator) ReflectionSummary(workflowID string) (reflection.Assessment, []reflection.Assessment, bool) {
	return c.Reflection.GetReflectionSummary(workflowID)
}

// PendingInjections returns the queued injections for sessionID at point,
// draining them in priority order.
func (c *Coordinator) PendingInjections(sessionID string, point injection.Point) []*injection.ContextInjection {
	return c.Injection.GetPendingInjections(sessionID, point)
}

// AuditLog returns every intervention the supervision coordinator has
// recorded so far.
func (c *Coordinator) AuditLog() []supervision.AuditEntry {
	return c.Audit.AuditLog()
}

// Close unsubscribes the coordinator's own glue subscriptions. It does not
// tear down Monitor, Reflection or Injection, whose subscriptions outlive
// the coordinator's own bookkeeping if the caller still wants them.
func (c *Coordinator) Close() {
	c.Bus.Unsubscribe(c.progressToken)
	c.Bus.Unsubscribe(c.nodeToken)
}
