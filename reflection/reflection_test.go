package reflection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/orchestrator/bus"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestManagerStoresLatestAndAppendsHistory(t *testing.T) {
	b := bus.New()
	m := New(b)

	bus.Publish(b, bus.WorkflowReflectionCompletedEvent{
		WorkflowID: "wf1", Assessment: "looks fine", ShouldRetry: false, Confidence: 0.9,
	})
	waitFor(t, func() bool {
		_, _, ok := m.GetReflectionSummary("wf1")
		return ok
	})

	bus.Publish(b, bus.WorkflowReflectionCompletedEvent{
		WorkflowID: "wf1", Assessment: "retry recommended", ShouldRetry: true, Confidence: 0.4,
	})
	waitFor(t, func() bool {
		latest, _, _ := m.GetReflectionSummary("wf1")
		return latest.ShouldRetry
	})

	latest, history, ok := m.GetReflectionSummary("wf1")
	require.True(t, ok)
	assert.Equal(t, "retry recommended", latest.Assessment)
	assert.True(t, latest.ShouldRetry)
	require.Len(t, history, 2)
	assert.Equal(t, "looks fine", history[0].Assessment)
	assert.Equal(t, "retry recommended", history[1].Assessment)
}

func TestGetReflectionSummaryUnknownWorkflow(t *testing.T) {
	b := bus.New()
	m := New(b)

	_, _, ok := m.GetReflectionSummary("nope")
	assert.False(t, ok)
}

func TestGetReflectionSummaryReturnsDeepCopy(t *testing.T) {
	b := bus.New()
	m := New(b)

	bus.Publish(b, bus.WorkflowReflectionCompletedEvent{
		WorkflowID: "wf1", Assessment: "ok", Recommendation: []string{"a", "b"},
	})
	waitFor(t, func() bool {
		_, _, ok := m.GetReflectionSummary("wf1")
		return ok
	})

	latest, _, _ := m.GetReflectionSummary("wf1")
	latest.Recommendation[0] = "tampered"

	fresh, _, _ := m.GetReflectionSummary("wf1")
	assert.Equal(t, "a", fresh.Recommendation[0])
}

func TestCompressionHookAtomicSwap(t *testing.T) {
	b := bus.New()
	m := New(b)

	bus.Publish(b, bus.WorkflowReflectionCompletedEvent{WorkflowID: "wf1", Assessment: "ok"})
	waitFor(t, func() bool {
		_, _, ok := m.GetReflectionSummary("wf1")
		return ok
	})

	var firstCalls, secondCalls int
	m.EnableCompression(func(workflowID string, summary map[string]any) { firstCalls++ })
	firstToken := *m.compressionToken

	m.EnableCompression(func(workflowID string, summary map[string]any) { secondCalls++ })
	secondToken := *m.compressionToken
	assert.NotEqual(t, firstToken, secondToken)

	bus.Publish(b, bus.WorkflowReflectionCompletedEvent{WorkflowID: "wf1", Assessment: "again"})
	waitFor(t, func() bool { return secondCalls == 1 })
	assert.Equal(t, 0, firstCalls)

	m.DisableCompression()
	bus.Publish(b, bus.WorkflowReflectionCompletedEvent{WorkflowID: "wf1", Assessment: "third"})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, secondCalls)
}
