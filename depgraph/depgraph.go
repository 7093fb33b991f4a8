// Package depgraph implements the Dependency Graph Builder (spec.md §4.6's
// "dependency-graph mode"): it parses declared-input references of the
// form `source_name.output` or `source_name.output.field`, builds the
// corresponding edges into a workflow.Graph, and assembles each node's
// input_data by walking those references against stored upstream outputs.
// New domain logic — no corpus repo parses this reference grammar — but its
// edge-building shares workflow.Graph's Kahn's-algorithm topological sort,
// and its warn-and-drop-never-fail posture for malformed references follows
// the teacher's pkg/logger.GetLogger() structured-logging idiom.
package depgraph

import (
	"fmt"
	"strings"

	"github.com/agentmesh/orchestrator/pkg/logger"
	"github.com/agentmesh/orchestrator/workflow"
)

// Reference is a parsed "source_name.output[.field]" declared input.
type Reference struct {
	SourceName  string
	OutputField string // empty means the entire output map
}

// ParseReference parses ref, requiring the literal "output" segment that
// spec.md §4.6 always places immediately after the source node's name.
func ParseReference(ref string) (Reference, error) {
	parts := strings.Split(ref, ".")
	if len(parts) < 2 || parts[0] == "" || parts[1] != "output" {
		return Reference{}, fmt.Errorf("depgraph: malformed reference %q (want source_name.output[.field])", ref)
	}
	r := Reference{SourceName: parts[0]}
	if len(parts) > 2 {
		r.OutputField = strings.Join(parts[2:], ".")
	}
	return r, nil
}

// ResolvedReference is one declared-input reference that survived
// validation and was turned into a graph edge.
type ResolvedReference struct {
	TargetName  string
	InputField  string
	SourceName  string
	OutputField string
}

// Builder adds edges to a workflow.Graph from declared-input references,
// dropping self-references and references to absent nodes with a warning
// rather than failing the build — spec.md §4.6 is explicit that these never
// create edges.
type Builder struct{}

// NewBuilder returns a ready-to-use Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build adds one edge per valid reference in declarations (target node name
// -> input field name -> reference string) and returns the references that
// were kept, in no particular order.
func (b *Builder) Build(g *workflow.Graph, declarations map[string]map[string]string) []ResolvedReference {
	var resolved []ResolvedReference
	log := logger.ForComponent("depgraph")

	for target, fields := range declarations {
		for inputField, refStr := range fields {
			ref, err := ParseReference(refStr)
			if err != nil {
				log.Warn("depgraph: dropping malformed reference", "target", target, "field", inputField, "ref", refStr, "error", err)
				continue
			}
			if ref.SourceName == target {
				log.Warn("depgraph: dropping self-reference", "node", target, "field", inputField)
				continue
			}
			if _, ok := g.NodeByName(ref.SourceName); !ok {
				log.Warn("depgraph: dropping reference to absent node", "source", ref.SourceName, "target", target, "field", inputField)
				continue
			}
			if _, err := g.AddEdge(workflow.EdgeDefinition{SourceName: ref.SourceName, TargetName: target}); err != nil {
				log.Warn("depgraph: dropping reference, edge could not be added", "error", err)
				continue
			}
			resolved = append(resolved, ResolvedReference{
				TargetName: target, InputField: inputField,
				SourceName: ref.SourceName, OutputField: ref.OutputField,
			})
		}
	}
	return resolved
}

// AssembleInputs walks refs for targetName, dereferencing each one against
// outputs (node name -> that node's stored output map), and returns the
// resulting input_data. A reference whose upstream output is missing the
// requested field is simply omitted, never an error.
func AssembleInputs(refs []ResolvedReference, targetName string, outputs map[string]map[string]any) map[string]any {
	input := make(map[string]any)
	for _, r := range refs {
		if r.TargetName != targetName {
			continue
		}
		sourceOutput, ok := outputs[r.SourceName]
		if !ok {
			continue
		}
		value, ok := resolveField(sourceOutput, r.OutputField)
		if !ok {
			continue
		}
		input[r.InputField] = value
	}
	return input
}

func resolveField(output map[string]any, field string) (any, bool) {
	if field == "" {
		return output, true
	}

	var cur any = output
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
