package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/orchestrator/workflow"
)

func TestParseReferenceWithField(t *testing.T) {
	ref, err := ParseReference("fetch.output.body")
	require.NoError(t, err)
	assert.Equal(t, "fetch", ref.SourceName)
	assert.Equal(t, "body", ref.OutputField)
}

func TestParseReferenceWholeOutput(t *testing.T) {
	ref, err := ParseReference("fetch.output")
	require.NoError(t, err)
	assert.Equal(t, "fetch", ref.SourceName)
	assert.Empty(t, ref.OutputField)
}

func TestParseReferenceNestedField(t *testing.T) {
	ref, err := ParseReference("fetch.output.body.nested")
	require.NoError(t, err)
	assert.Equal(t, "body.nested", ref.OutputField)
}

func TestParseReferenceRejectsMalformed(t *testing.T) {
	_, err := ParseReference("fetch.result.body")
	assert.Error(t, err)
}

func newGraphWithNodes(t *testing.T, names ...string) *workflow.Graph {
	t.Helper()
	g := workflow.NewGraph()
	for _, n := range names {
		g.AddNode(workflow.NodeDefinition{Name: n, Type: workflow.NodeGeneric})
	}
	return g
}

func TestBuildCreatesEdgeForValidReference(t *testing.T) {
	g := newGraphWithNodes(t, "fetch", "transform")
	b := NewBuilder()

	resolved := b.Build(g, map[string]map[string]string{
		"transform": {"input_body": "fetch.output.body"},
	})

	require.Len(t, resolved, 1)
	assert.Equal(t, "fetch", resolved[0].SourceName)
	assert.Equal(t, "transform", resolved[0].TargetName)
	assert.Equal(t, "body", resolved[0].OutputField)

	fetchID, _ := g.NodeByName("fetch")
	transformID, _ := g.NodeByName("transform")
	var found bool
	for _, e := range g.OutEdges(fetchID) {
		if e.TargetID == transformID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBuildDropsSelfReference(t *testing.T) {
	g := newGraphWithNodes(t, "loopy")
	b := NewBuilder()

	resolved := b.Build(g, map[string]map[string]string{
		"loopy": {"x": "loopy.output.x"},
	})

	assert.Empty(t, resolved)
	id, _ := g.NodeByName("loopy")
	assert.Empty(t, g.InEdges(id))
}

func TestBuildDropsReferenceToAbsentNode(t *testing.T) {
	g := newGraphWithNodes(t, "transform")
	b := NewBuilder()

	resolved := b.Build(g, map[string]map[string]string{
		"transform": {"x": "ghost.output.x"},
	})

	assert.Empty(t, resolved)
}

func TestAssembleInputsWalksNestedField(t *testing.T) {
	g := newGraphWithNodes(t, "fetch", "transform")
	b := NewBuilder()
	resolved := b.Build(g, map[string]map[string]string{
		"transform": {
			"whole": "fetch.output",
			"body":  "fetch.output.body",
			"inner": "fetch.output.body.nested",
		},
	})
	require.Len(t, resolved, 3)

	outputs := map[string]map[string]any{
		"fetch": {"body": map[string]any{"nested": "deep-value"}, "status": 200},
	}

	input := AssembleInputs(resolved, "transform", outputs)
	assert.Equal(t, "deep-value", input["inner"])
	assert.Equal(t, outputs["fetch"], input["whole"])
	assert.Equal(t, outputs["fetch"]["body"], input["body"])
}

func TestAssembleInputsOmitsMissingUpstreamOutput(t *testing.T) {
	g := newGraphWithNodes(t, "fetch", "transform")
	b := NewBuilder()
	resolved := b.Build(g, map[string]map[string]string{
		"transform": {"body": "fetch.output.body"},
	})

	input := AssembleInputs(resolved, "transform", map[string]map[string]any{})
	assert.Empty(t, input)
}
