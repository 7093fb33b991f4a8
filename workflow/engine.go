package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentmesh/orchestrator/bus"
	"github.com/agentmesh/orchestrator/executor"
	"github.com/agentmesh/orchestrator/rules"
)

// Engine materializes a WorkflowPlan into a Graph and executes it: Kahn's
// algorithm wave scheduling, conditional edge evaluation, wave-based
// parallel execution, hierarchical parent/children expansion, and
// retry-with-backoff around every node. It generalizes the teacher's
// WorkflowExecutorRegistry.ExecuteWorkflow dispatch — which picked one of
// several flat, mode-keyed executors — into a single typed DAG engine.
type Engine struct {
	Executor executor.Executor
	// ContainerExecutor handles nodes whose config marks them is_container
	// (spec.md §3 invariant (d)), per §6's "implementations are provided per
	// integration (HTTP, DB, LLM, container)". A nil ContainerExecutor falls
	// back to Executor, so a caller that never registers one still runs
	// container nodes — it just doesn't get container-specific dispatch.
	ContainerExecutor executor.Executor
	Evaluator         *rules.Evaluator
	Bus               *bus.Bus
	Retry             RetryPolicy
	MaxConcurrency    int
	Validate          OutputValidator
}

// codedError lets an Executor attach an ErrorCode to a failure; executors
// that return a plain error are classified as ErrInternal.
type codedError interface {
	Code() ErrorCode
}

// NewEngine returns an Engine with a default retry policy covering the
// transient error codes named in spec.md §7. A nil evaluator treats every
// conditional edge as satisfied; a nil bus simply skips event publication.
func NewEngine(exec executor.Executor, evaluator *rules.Evaluator, b *bus.Bus) *Engine {
	return &Engine{
		Executor:       exec,
		Evaluator:      evaluator,
		Bus:            b,
		MaxConcurrency: 8,
		Retry: RetryPolicy{
			MaxRetries:     2,
			BaseDelay:      100 * time.Millisecond,
			BackoffFactor:  2.0,
			RetryableCodes: []ErrorCode{ErrTimeout, ErrRateLimit, ErrUpstream},
		},
	}
}

// Materialize resolves a WorkflowPlan's name references into a concrete
// Graph. An edge naming a node absent from plan.Nodes is a validation
// error, never a silent drop (spec.md §3).
func (e *Engine) Materialize(plan WorkflowPlan) (*Graph, error) {
	g := NewGraph()
	for _, def := range plan.Nodes {
		if _, err := g.AddNode(def); err != nil {
			return nil, err
		}
	}
	for _, def := range plan.Edges {
		if _, err := g.AddEdge(def); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Execute materializes plan and runs it to completion.
func (e *Engine) Execute(ctx context.Context, workflowID string, plan WorkflowPlan) (*ExecutionContext, error) {
	g, err := e.Materialize(plan)
	if err != nil {
		return nil, err
	}
	return e.ExecuteGraph(ctx, workflowID, g)
}

// ExecuteGraph runs an already-materialized graph, returning the final
// ExecutionContext regardless of outcome so callers can inspect per-node
// results and the error log even on failure.
func (e *Engine) ExecuteGraph(ctx context.Context, workflowID string, g *Graph) (*ExecutionContext, error) {
	waves, err := g.TopologicalSort()
	ec := NewExecutionContext(workflowID)
	if err != nil {
		var cycleErr *CycleError
		if errors.As(err, &cycleErr) {
			for _, id := range cycleErr.Residual {
				ec.SetResult(id, ExecutionResult{
					Ok:           false,
					ErrorCode:    ErrCycleDetected,
					ErrorMessage: err.Error(),
					Metadata:     ExecutionResultMetadata{NodeID: fmt.Sprintf("%d", id)},
				})
				ec.SetStatus(id, StatusFailed)
			}
		}
		ec.MarkCompleted()
		return ec, err
	}

	e.publishStarted(workflowID, len(g.Nodes()))

	for _, wave := range waves {
		if cancelErr := suspendBeforeWave(ctx); cancelErr != nil {
			ec.MarkCompleted()
			e.publishCompleted(workflowID, false, "cancelled before wave")
			return ec, cancelErr
		}

		var toRun []NodeID
		for _, id := range wave {
			if g.Node(id).ParentID != InvalidNodeID {
				continue // runs as part of its parent's hierarchical turn
			}
			toRun = append(toRun, id)
		}
		if len(toRun) == 0 {
			continue
		}
		e.runWaveConcurrently(ctx, g, ec, toRun)
	}

	ec.MarkCompleted()
	success := len(ec.ErrorLog()) == 0
	e.publishCompleted(workflowID, success, fmt.Sprintf("%d nodes executed", len(ec.AllResults())))
	return ec, nil
}

// runWaveConcurrently fans one topological wave out across goroutines,
// bounded by MaxConcurrency — grounded on the teacher's own
// golang.org/x/sync/errgroup usage (pkg/agent/workflowagent/parallel.go's
// errgroup.WithContext + per-subagent errGroup.Go) rather than a hand-rolled
// WaitGroup and semaphore channel. No node here returns a Go error — each
// records its own ExecutionResult into ec — so Wait's return value is
// always nil; the group's only job is bounding concurrency and propagating
// ctx cancellation to every still-running goroutine.
func (e *Engine) runWaveConcurrently(ctx context.Context, g *Graph, ec *ExecutionContext, ids []NodeID) {
	grp, grpCtx := errgroup.WithContext(ctx)
	if e.MaxConcurrency > 0 {
		grp.SetLimit(e.MaxConcurrency)
	}

	for _, id := range ids {
		id := id
		grp.Go(func() error {
			e.executeNodeWithChildren(grpCtx, g, ec, id)
			return nil
		})
	}
	_ = grp.Wait()
}

// executeNodeWithChildren evaluates id's incoming edges, runs its children
// (hierarchical execution, spec.md §3: definition order, then the parent),
// and finally executes the node itself with retry/backoff.
func (e *Engine) executeNodeWithChildren(ctx context.Context, g *Graph, ec *ExecutionContext, id NodeID) {
	n := g.Node(id)

	if !e.shouldRun(g, ec, id) {
		ec.SetStatus(id, StatusSkipped)
		e.publishNodeEvent(ec.WorkflowID, id, bus.NodeStatusSkipped, nil, "")
		return
	}

	ec.SetStatus(id, StatusRunning)
	e.publishNodeEvent(ec.WorkflowID, id, bus.NodeStatusRunning, nil, "")

	var childOutputs []map[string]any
	for _, childID := range n.Children {
		e.executeNodeWithChildren(ctx, g, ec, childID)
		if out, ok := ec.Output(childID); ok {
			childOutputs = append(childOutputs, out)
		}
	}

	input := e.buildNodeInput(g, ec, id)
	if len(childOutputs) > 0 {
		input["_children"] = childOutputs
	}

	// A container-marked parent dispatches to the container executor
	// instead of the node's ordinary one (spec.md §3: "if the parent is
	// marked is_container, it dispatches to a container executor").
	exec := e.Executor
	if n.IsContainer() {
		if e.ContainerExecutor != nil {
			exec = e.ContainerExecutor
		}
		if cc, ok := n.ContainerConfig(); ok {
			input["_container_config"] = cc
		}
	}
	ec.SetInput(id, input)

	result := e.executeWithRetry(ctx, exec, n, input)
	ec.SetResult(id, result)

	if result.Ok {
		ec.SetStatus(id, StatusCompleted)
		e.publishNodeEvent(ec.WorkflowID, id, bus.NodeStatusCompleted, result.Output, "")
	} else {
		ec.SetStatus(id, StatusFailed)
		e.publishNodeEvent(ec.WorkflowID, id, bus.NodeStatusFailed, nil, result.ErrorMessage)
	}
}

// shouldRun implements the conditional-edge rule of spec.md §3: a node with
// no incoming edges always runs; otherwise it runs iff at least one
// incoming edge's condition evaluates true (an empty condition always
// counts as true). A condition that errors is treated as false — graceful
// degradation — and additionally emits a NodeConditionWarningEvent so the
// degradation is observable without changing execution semantics.
func (e *Engine) shouldRun(g *Graph, ec *ExecutionContext, id NodeID) bool {
	inEdges := g.InEdges(id)
	if len(inEdges) == 0 {
		return true
	}

	evalCtx := e.buildEvalContext(g, ec)
	for _, edge := range inEdges {
		if edge.Condition == "" {
			return true
		}
		if e.Evaluator == nil {
			return true
		}
		ok, err := e.Evaluator.Eval(edge.Condition, evalCtx)
		if err != nil {
			e.publishConditionWarning(ec.WorkflowID, edge, err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

func (e *Engine) buildNodeInput(g *Graph, ec *ExecutionContext, id NodeID) map[string]any {
	input := make(map[string]any)
	for _, edge := range g.InEdges(id) {
		src := g.Node(edge.SourceID)
		if out, ok := ec.Output(edge.SourceID); ok {
			input[src.Name] = out
		}
	}
	return input
}

func (e *Engine) buildEvalContext(g *Graph, ec *ExecutionContext) map[string]any {
	ctx := make(map[string]any)
	for _, n := range g.Nodes() {
		if out, ok := ec.Output(n.ID); ok {
			ctx[n.Name] = out
		}
	}
	return ctx
}

// executeWithRetry runs exec against the node, retrying retryable failures
// with RetryPolicy's backoff delay, honoring ctx cancellation between
// attempts.
func (e *Engine) executeWithRetry(ctx context.Context, exec executor.Executor, n *Node, input map[string]any) ExecutionResult {
	start := time.Now()
	attempt := 0

	for {
		out, err := exec.Execute(ctx, n.Name, n.Config, input)
		elapsedMs := time.Since(start).Milliseconds()

		if err == nil {
			if e.Validate != nil {
				if verr := e.Validate(out); verr != nil {
					return ExecutionResult{
						Ok:           false,
						ErrorCode:    ErrValidationFailed,
						ErrorMessage: verr.Error(),
						Metadata:     ExecutionResultMetadata{ExecutionTimeMs: elapsedMs, RetryCount: attempt, NodeID: n.Name},
					}
				}
			}
			return ExecutionResult{
				Ok:       true,
				Output:   out,
				Metadata: ExecutionResultMetadata{ExecutionTimeMs: elapsedMs, RetryCount: attempt, NodeID: n.Name},
			}
		}

		code := classifyError(err)
		if !e.Retry.IsRetryable(code) || attempt >= e.Retry.MaxRetries {
			return ExecutionResult{
				Ok:           false,
				ErrorCode:    code,
				ErrorMessage: err.Error(),
				Metadata:     ExecutionResultMetadata{ExecutionTimeMs: elapsedMs, RetryCount: attempt, NodeID: n.Name},
			}
		}

		delay := e.Retry.DelayForAttempt(attempt)
		select {
		case <-ctx.Done():
			return ExecutionResult{
				Ok:           false,
				ErrorCode:    ErrCancelled,
				ErrorMessage: ctx.Err().Error(),
				Metadata:     ExecutionResultMetadata{ExecutionTimeMs: elapsedMs, RetryCount: attempt, NodeID: n.Name},
			}
		case <-time.After(delay):
		}
		attempt++
	}
}

func classifyError(err error) ErrorCode {
	if ce, ok := err.(codedError); ok {
		return ce.Code()
	}
	return ErrInternal
}

func (e *Engine) publishStarted(workflowID string, nodeCount int) {
	if e.Bus == nil {
		return
	}
	bus.Publish(e.Bus, bus.WorkflowExecutionStartedEvent{
		Source: bus.SourceWorkflowAgent, Timestamp: time.Now(),
		WorkflowID: workflowID, NodeCount: nodeCount,
	})
}

func (e *Engine) publishCompleted(workflowID string, success bool, summary string) {
	if e.Bus == nil {
		return
	}
	bus.Publish(e.Bus, bus.WorkflowExecutionCompletedEvent{
		Source: bus.SourceWorkflowAgent, Timestamp: time.Now(),
		WorkflowID: workflowID, Success: success, Summary: summary,
	})
}

func (e *Engine) publishNodeEvent(workflowID string, id NodeID, status bus.NodeStatus, output map[string]any, errMsg string) {
	if e.Bus == nil {
		return
	}
	bus.Publish(e.Bus, bus.NodeExecutionEvent{
		Source: bus.SourceWorkflowAgent, Timestamp: time.Now(),
		WorkflowID: workflowID, NodeID: fmt.Sprintf("%d", id),
		Status: status, Output: output, Error: errMsg,
	})
}

func (e *Engine) publishConditionWarning(workflowID string, edge *Edge, err error) {
	if e.Bus == nil {
		return
	}
	bus.Publish(e.Bus, bus.NodeConditionWarningEvent{
		Source: bus.SourceWorkflowAgent, Timestamp: time.Now(),
		WorkflowID: workflowID, EdgeID: fmt.Sprintf("%d", edge.ID),
		Condition: edge.Condition, Reason: err.Error(),
	})
}
