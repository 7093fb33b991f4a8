package nodedef

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentmesh/orchestrator/bus"
	"github.com/agentmesh/orchestrator/executor"
	"github.com/agentmesh/orchestrator/sandbox"
	"github.com/agentmesh/orchestrator/workflow"
)

// Loader stores parsed Definitions by name, the lookup half of
// execute_node's "load the definition" step.
type Loader struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewLoader returns an empty Loader.
func NewLoader() *Loader {
	return &Loader{defs: make(map[string]*Definition)}
}

// LoadBytes parses data as a node definition and stores it under its own
// Name, overwriting any prior definition of the same name.
func (l *Loader) LoadBytes(data []byte) (*Definition, error) {
	d, err := Parse(data)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.defs[d.Name] = d
	l.mu.Unlock()
	return d, nil
}

// Get returns the definition registered under name, if any.
func (l *Loader) Get(name string) (*Definition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.defs[name]
	return d, ok
}

// Engine runs execute_node against Loader-resolved definitions, dispatching
// leaf nodes into a sandbox or an LLM executor.Executor, and container
// nodes into their children per nested.parallel/error_strategy/
// output_aggregation.
type Engine struct {
	Loader  *Loader
	Sandbox sandbox.Sandbox
	LLM     executor.Executor
	Bus     *bus.Bus
}

// NewEngine wires a Loader to its dispatch targets and event bus.
func NewEngine(loader *Loader, sb sandbox.Sandbox, llm executor.Executor, b *bus.Bus) *Engine {
	return &Engine{Loader: loader, Sandbox: sb, LLM: llm, Bus: b}
}

// ExecuteNode runs the six-step execute_node algorithm for name against
// inputs.
func (e *Engine) ExecuteNode(ctx context.Context, name string, inputs map[string]any) workflow.ExecutionResult {
	start := time.Now()

	def, ok := e.Loader.Get(name)
	if !ok {
		return workflow.ExecutionResult{
			Ok: false, ErrorCode: workflow.ErrNodeNotFound,
			ErrorMessage: fmt.Sprintf("node not found: %s", name),
		}
	}

	e.publishStarted(def)

	resolved, err := applyDefaultsAndValidate(def, inputs)
	if err != nil {
		res := workflow.ExecutionResult{Ok: false, ErrorCode: workflow.ErrValidationFailed, ErrorMessage: err.Error()}
		res.Metadata.ExecutionTimeMs = time.Since(start).Milliseconds()
		e.publishFinished(def, res)
		return res
	}

	var res workflow.ExecutionResult
	if def.HasChildren() {
		res = e.executeChildren(ctx, def, resolved)
	} else {
		res = e.dispatchLeaf(ctx, def, resolved)
	}
	res.Metadata.ExecutionTimeMs = time.Since(start).Milliseconds()
	e.publishFinished(def, res)
	return res
}

func applyDefaultsAndValidate(def *Definition, inputs map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(inputs))
	for k, v := range inputs {
		out[k] = v
	}
	for _, p := range def.Parameters {
		if _, present := out[p.Name]; present {
			continue
		}
		if p.Required {
			return nil, fmt.Errorf("nodedef: %s: missing required parameter %q", def.Name, p.Name)
		}
		if p.Default != nil {
			out[p.Name] = p.Default
		}
	}
	return out, nil
}

type childOutcome struct {
	name   string
	output map[string]any
	err    error
}

func outcomeFromResult(name string, res workflow.ExecutionResult) childOutcome {
	o := childOutcome{name: name, output: res.Output}
	if !res.Ok {
		o.err = fmt.Errorf("%s: %s", res.ErrorCode, res.ErrorMessage)
	}
	return o
}

func (e *Engine) executeChildren(ctx context.Context, def *Definition, inputs map[string]any) workflow.ExecutionResult {
	children := def.Nested.Children

	if def.Nested.Parallel {
		outcomes := make([]childOutcome, len(children))
		var wg sync.WaitGroup
		for i, child := range children {
			wg.Add(1)
			go func(i int, child string) {
				defer wg.Done()
				outcomes[i] = outcomeFromResult(child, e.ExecuteNode(ctx, child, inputs))
			}(i, child)
		}
		wg.Wait()

		if abort := firstAbortingFailure(def, outcomes); abort != nil {
			return *abort
		}
		return e.aggregate(def, outcomes)
	}

	current := inputs
	outcomes := make([]childOutcome, 0, len(children))
	for _, child := range children {
		res := e.ExecuteNode(ctx, child, current)
		o := outcomeFromResult(child, res)
		outcomes = append(outcomes, o)

		if o.err != nil {
			if def.ErrorStrategy.OnFailure == OnFailureAbort {
				return workflow.ExecutionResult{
					Ok: false, ErrorCode: res.ErrorCode, ErrorMessage: res.ErrorMessage,
					Metadata: workflow.ExecutionResultMetadata{Extra: map[string]any{"children_results": childrenResultsMap(outcomes)}},
				}
			}
			continue
		}

		merged := make(map[string]any, len(current)+len(o.output))
		for k, v := range current {
			merged[k] = v
		}
		for k, v := range o.output {
			merged[k] = v
		}
		current = merged
	}
	return e.aggregate(def, outcomes)
}

// firstAbortingFailure returns a short-circuit ExecutionResult if any
// outcome failed and error_strategy.on_failure is "abort"; nil otherwise.
func firstAbortingFailure(def *Definition, outcomes []childOutcome) *workflow.ExecutionResult {
	if def.ErrorStrategy.OnFailure != OnFailureAbort {
		return nil
	}
	for _, o := range outcomes {
		if o.err != nil {
			return &workflow.ExecutionResult{
				Ok: false, ErrorCode: workflow.ErrInternal, ErrorMessage: o.err.Error(),
				Metadata: workflow.ExecutionResultMetadata{Extra: map[string]any{"children_results": childrenResultsMap(outcomes)}},
			}
		}
	}
	return nil
}

func childrenResultsMap(outcomes []childOutcome) map[string]any {
	out := make(map[string]any, len(outcomes))
	for _, o := range outcomes {
		if o.err != nil {
			out[o.name] = map[string]any{"ok": false, "error": o.err.Error()}
		} else {
			out[o.name] = map[string]any{"ok": true, "output": o.output}
		}
	}
	return out
}

func (e *Engine) aggregate(def *Definition, outcomes []childOutcome) workflow.ExecutionResult {
	switch def.OutputAggregation {
	case AggregationList:
		var list []any
		for _, o := range outcomes {
			if o.err == nil {
				list = append(list, o.output)
			}
		}
		return workflow.ExecutionResult{Ok: true, Output: map[string]any{"results": list}}
	case AggregationFirst:
		for _, o := range outcomes {
			if o.err == nil {
				return workflow.ExecutionResult{Ok: true, Output: o.output}
			}
		}
		return workflow.ExecutionResult{Ok: true, Output: map[string]any{}}
	case AggregationLast:
		for i := len(outcomes) - 1; i >= 0; i-- {
			if outcomes[i].err == nil {
				return workflow.ExecutionResult{Ok: true, Output: outcomes[i].output}
			}
		}
		return workflow.ExecutionResult{Ok: true, Output: map[string]any{}}
	default: // AggregationMerge
		merged := make(map[string]any)
		for _, o := range outcomes {
			if o.err == nil {
				merged[o.name] = o.output
			}
		}
		return workflow.ExecutionResult{Ok: true, Output: merged}
	}
}

func (e *Engine) dispatchLeaf(ctx context.Context, def *Definition, inputs map[string]any) workflow.ExecutionResult {
	switch def.ExecutorType {
	case ExecutorCode:
		return e.dispatchCode(ctx, def, inputs)
	case ExecutorLLM:
		return e.dispatchLLM(ctx, def, inputs)
	default:
		out := make(map[string]any, len(inputs))
		for k, v := range inputs {
			out[k] = v
		}
		return workflow.ExecutionResult{Ok: true, Output: out}
	}
}

func (e *Engine) dispatchCode(ctx context.Context, def *Definition, inputs map[string]any) workflow.ExecutionResult {
	if e.Sandbox == nil {
		return workflow.ExecutionResult{Ok: false, ErrorCode: workflow.ErrInternal, ErrorMessage: "nodedef: no sandbox configured"}
	}

	cfg := sandbox.Config{TimeoutSeconds: def.Execution.TimeoutSeconds}
	result, err := e.Sandbox.Execute(ctx, def.Name, cfg, inputs)
	if err != nil {
		return workflow.ExecutionResult{Ok: false, ErrorCode: workflow.ErrInternal, ErrorMessage: err.Error()}
	}
	if result.TimedOut {
		return workflow.ExecutionResult{Ok: false, ErrorCode: workflow.ErrTimeout, ErrorMessage: "sandbox execution timed out"}
	}
	if !result.Success {
		return workflow.ExecutionResult{Ok: false, ErrorCode: workflow.ErrInternal, ErrorMessage: result.Stderr}
	}
	return workflow.ExecutionResult{Ok: true, Output: result.OutputData}
}

func (e *Engine) dispatchLLM(ctx context.Context, def *Definition, inputs map[string]any) workflow.ExecutionResult {
	if e.LLM == nil {
		return workflow.ExecutionResult{Ok: false, ErrorCode: workflow.ErrInternal, ErrorMessage: "nodedef: no LLM executor configured"}
	}
	out, err := e.LLM.Execute(ctx, def.Name, map[string]any{"definition": def.Name}, inputs)
	if err != nil {
		return workflow.ExecutionResult{Ok: false, ErrorCode: workflow.ErrUpstream, ErrorMessage: err.Error()}
	}
	return workflow.ExecutionResult{Ok: true, Output: out}
}

func (e *Engine) publishStarted(def *Definition) {
	if e.Bus == nil {
		return
	}
	bus.Publish(e.Bus, bus.ExecutionProgressEvent{
		Source: bus.SourceWorkflowAgent, Timestamp: time.Now(),
		NodeID: def.Name, Status: bus.NodeStatusRunning, Message: "started",
		Metadata: map[string]any{
			"description":    def.Description,
			"version":        def.Version,
			"executor_type":  string(def.ExecutorType),
			"parameters":     parameterSummary(def.Parameters),
			"child_names":    childNames(def),
		},
	})
}

func (e *Engine) publishFinished(def *Definition, res workflow.ExecutionResult) {
	if e.Bus == nil {
		return
	}
	status := bus.NodeStatusCompleted
	errMsg := ""
	if !res.Ok {
		status = bus.NodeStatusFailed
		errMsg = res.ErrorMessage
	}
	bus.Publish(e.Bus, bus.NodeExecutionEvent{
		Source: bus.SourceWorkflowAgent, Timestamp: time.Now(),
		NodeID: def.Name, Status: status, Output: res.Output, Error: errMsg,
	})
	bus.Publish(e.Bus, bus.ExecutionProgressEvent{
		Source: bus.SourceWorkflowAgent, Timestamp: time.Now(),
		NodeID: def.Name, Status: status, Progress: 1,
		Metadata: map[string]any{"execution_time_ms": res.Metadata.ExecutionTimeMs},
	})
}

func parameterSummary(params []Parameter) []string {
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = fmt.Sprintf("%s:%s", p.Name, p.Type)
	}
	return out
}

func childNames(def *Definition) []string {
	if def.Nested == nil {
		return nil
	}
	return append([]string(nil), def.Nested.Children...)
}
