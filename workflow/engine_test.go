package workflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/orchestrator/executor"
	"github.com/agentmesh/orchestrator/rules"
)

// recordingExecutor runs fn for every node, tracking call counts per node
// name so retry and hierarchical tests can assert on invocation order.
type recordingExecutor struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(name string, call int, config, inputs map[string]any) (map[string]any, error)
}

func newRecordingExecutor(fn func(name string, call int, config, inputs map[string]any) (map[string]any, error)) *recordingExecutor {
	return &recordingExecutor{calls: make(map[string]int), fn: fn}
}

func (r *recordingExecutor) Execute(_ context.Context, name string, config, inputs map[string]any) (map[string]any, error) {
	r.mu.Lock()
	r.calls[name]++
	call := r.calls[name]
	r.mu.Unlock()
	return r.fn(name, call, config, inputs)
}

func (r *recordingExecutor) CallCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

// transientError lets a test executor report a retryable failure.
type transientError struct {
	code ErrorCode
}

func (e *transientError) Error() string { return fmt.Sprintf("transient: %s", e.code) }
func (e *transientError) Code() ErrorCode { return e.code }

func TestS1LinearPipelineExecutesInOrder(t *testing.T) {
	exec := newRecordingExecutor(func(name string, _ int, _, inputs map[string]any) (map[string]any, error) {
		switch name {
		case "a":
			return map[string]any{"value": 1}, nil
		case "b":
			prev, _ := inputs["a"].(map[string]any)
			return map[string]any{"value": prev["value"].(int) + 1}, nil
		case "c":
			prev, _ := inputs["b"].(map[string]any)
			return map[string]any{"value": prev["value"].(int) + 1}, nil
		}
		return nil, fmt.Errorf("unexpected node %s", name)
	})

	engine := NewEngine(exec, rules.NewEvaluator(0), nil)
	ec, err := engine.Execute(context.Background(), "wf-1", linearPlan())
	require.NoError(t, err)

	for _, name := range []string{"a", "b", "c"} {
		assert.Equal(t, 1, exec.CallCount(name))
	}

	results := ec.AllResults()
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Ok)
	}
}

func TestS2ConditionalBranchSkipsFalseBranch(t *testing.T) {
	plan := WorkflowPlan{
		Name: "branch",
		Nodes: []NodeDefinition{
			{Name: "start", Type: NodeStart},
			{Name: "branch_true", Type: NodeGeneric},
			{Name: "branch_false", Type: NodeGeneric},
		},
		Edges: []EdgeDefinition{
			{SourceName: "start", TargetName: "branch_true", Condition: "start.route == \"yes\""},
			{SourceName: "start", TargetName: "branch_false", Condition: "start.route == \"no\""},
		},
	}

	exec := newRecordingExecutor(func(name string, _ int, _, _ map[string]any) (map[string]any, error) {
		if name == "start" {
			return map[string]any{"route": "yes"}, nil
		}
		return map[string]any{"ran": name}, nil
	})

	engine := NewEngine(exec, rules.NewEvaluator(0), nil)
	ec, err := engine.Execute(context.Background(), "wf-2", plan)
	require.NoError(t, err)

	g, err := engine.Materialize(plan)
	require.NoError(t, err)
	trueID, _ := g.NodeByName("branch_true")
	falseID, _ := g.NodeByName("branch_false")

	assert.Equal(t, StatusCompleted, ec.Status(trueID))
	assert.Equal(t, StatusSkipped, ec.Status(falseID))
	assert.Equal(t, 0, exec.CallCount("branch_false"))
}

func TestS3RetrySucceedsAfterTransientFailure(t *testing.T) {
	plan := WorkflowPlan{
		Name:  "retry",
		Nodes: []NodeDefinition{{Name: "flaky", Type: NodeAPI}},
	}

	exec := newRecordingExecutor(func(name string, call int, _, _ map[string]any) (map[string]any, error) {
		if call < 3 {
			return nil, &transientError{code: ErrUpstream}
		}
		return map[string]any{"ok": true}, nil
	})

	engine := NewEngine(exec, rules.NewEvaluator(0), nil)
	engine.Retry = RetryPolicy{
		MaxRetries:     3,
		BaseDelay:      time.Millisecond,
		BackoffFactor:  1.0,
		RetryableCodes: []ErrorCode{ErrUpstream},
	}

	ec, err := engine.Execute(context.Background(), "wf-3", plan)
	require.NoError(t, err)

	g, err := engine.Materialize(plan)
	require.NoError(t, err)
	id, _ := g.NodeByName("flaky")
	result, ok := ec.Result(id)
	require.True(t, ok)
	assert.True(t, result.Ok)
	assert.Equal(t, 2, result.Metadata.RetryCount)
	assert.Equal(t, 3, exec.CallCount("flaky"))
}

func TestS3RetryExhaustsAndFails(t *testing.T) {
	plan := WorkflowPlan{
		Name:  "retry-exhaust",
		Nodes: []NodeDefinition{{Name: "broken", Type: NodeAPI}},
	}

	exec := newRecordingExecutor(func(string, int, map[string]any, map[string]any) (map[string]any, error) {
		return nil, &transientError{code: ErrUpstream}
	})

	engine := NewEngine(exec, rules.NewEvaluator(0), nil)
	engine.Retry = RetryPolicy{
		MaxRetries:     1,
		BaseDelay:      time.Millisecond,
		BackoffFactor:  1.0,
		RetryableCodes: []ErrorCode{ErrUpstream},
	}

	ec, err := engine.Execute(context.Background(), "wf-4", plan)
	require.NoError(t, err)

	g, err := engine.Materialize(plan)
	require.NoError(t, err)
	id, _ := g.NodeByName("broken")
	result, _ := ec.Result(id)
	assert.False(t, result.Ok)
	assert.Equal(t, ErrUpstream, result.ErrorCode)
	assert.Equal(t, 2, exec.CallCount("broken")) // initial attempt + 1 retry
}

func TestS4CycleDetectedSurfacesAsExecutionError(t *testing.T) {
	g := NewGraph()
	g.AddNode(NodeDefinition{Name: "a"})
	g.AddNode(NodeDefinition{Name: "b"})
	_, _ = g.AddEdge(EdgeDefinition{SourceName: "a", TargetName: "b"})
	_, _ = g.AddEdge(EdgeDefinition{SourceName: "b", TargetName: "a"})

	engine := NewEngine(executor.EchoExecutor{}, rules.NewEvaluator(0), nil)
	ec, err := engine.ExecuteGraph(context.Background(), "wf-cycle", g)
	require.Error(t, err)
	for _, r := range ec.AllResults() {
		assert.Equal(t, ErrCycleDetected, r.ErrorCode)
	}
}

func TestHierarchicalChildrenRunBeforeParent(t *testing.T) {
	g := NewGraph()
	parent, err := g.AddNode(NodeDefinition{
		Name: "parent",
		Type: NodeContainer,
		Config: map[string]any{
			"is_container":     true,
			"container_config": map[string]any{"image": "runner:latest"},
		},
	})
	require.NoError(t, err)
	child1, err := g.AddNode(NodeDefinition{Name: "child1", Type: NodeGeneric})
	require.NoError(t, err)
	child2, err := g.AddNode(NodeDefinition{Name: "child2", Type: NodeGeneric})
	require.NoError(t, err)
	g.SetParent(child1, parent)
	g.SetParent(child2, parent)

	var order []string
	var mu sync.Mutex
	exec := newRecordingExecutor(func(name string, _ int, _, inputs map[string]any) (map[string]any, error) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
		return map[string]any{"name": name}, nil
	})

	engine := NewEngine(exec, rules.NewEvaluator(0), nil)
	ec, err := engine.ExecuteGraph(context.Background(), "wf-hier", g)
	require.NoError(t, err)

	assert.Equal(t, []string{"child1", "child2", "parent"}, order)
	assert.Equal(t, StatusCompleted, ec.Status(parent))

	parentInput := ec.Input(parent)
	children, ok := parentInput["_children"].([]map[string]any)
	require.True(t, ok)
	assert.Len(t, children, 2)
}

func TestContainerNodeDispatchesToContainerExecutor(t *testing.T) {
	g := NewGraph()
	_, err := g.AddNode(NodeDefinition{
		Name: "job",
		Type: NodeContainer,
		Config: map[string]any{
			"is_container":     true,
			"container_config": map[string]any{"image": "runner:latest"},
		},
	})
	require.NoError(t, err)

	ordinary := newRecordingExecutor(func(name string, _ int, _, _ map[string]any) (map[string]any, error) {
		t.Fatalf("ordinary executor should not run container node %q", name)
		return nil, nil
	})
	var sawImage string
	container := newRecordingExecutor(func(name string, _ int, _ map[string]any, inputs map[string]any) (map[string]any, error) {
		cc, _ := inputs["_container_config"].(map[string]any)
		sawImage, _ = cc["image"].(string)
		return map[string]any{"ran": name}, nil
	})

	engine := NewEngine(ordinary, rules.NewEvaluator(0), nil)
	engine.ContainerExecutor = container
	ec, err := engine.ExecuteGraph(context.Background(), "wf-container", g)
	require.NoError(t, err)

	id, _ := g.NodeByName("job")
	assert.Equal(t, StatusCompleted, ec.Status(id))
	assert.Equal(t, 1, container.CallCount("job"))
	assert.Equal(t, 0, ordinary.CallCount("job"))
	assert.Equal(t, "runner:latest", sawImage)
}

func TestContainerNodeFallsBackToOrdinaryExecutorWhenUnset(t *testing.T) {
	g := NewGraph()
	_, err := g.AddNode(NodeDefinition{
		Name: "job",
		Type: NodeContainer,
		Config: map[string]any{
			"is_container":     true,
			"container_config": map[string]any{"image": "runner:latest"},
		},
	})
	require.NoError(t, err)

	exec := newRecordingExecutor(func(name string, _ int, _, _ map[string]any) (map[string]any, error) {
		return map[string]any{"ran": name}, nil
	})

	engine := NewEngine(exec, rules.NewEvaluator(0), nil)
	ec, err := engine.ExecuteGraph(context.Background(), "wf-container-fallback", g)
	require.NoError(t, err)

	id, _ := g.NodeByName("job")
	assert.Equal(t, StatusCompleted, ec.Status(id))
	assert.Equal(t, 1, exec.CallCount("job"))
}
