package codegen

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/agentmesh/orchestrator/nodedef"
)

// bannedTokens mirrors sandbox.RestrictedSandbox's denylist (spec.md §6:
// os, subprocess, sys, socket, eval, exec, compile, __import__, plus file
// and network I/O), applied here as a textual scan over generated source
// since the pipeline emits Python/JavaScript text rather than registering a
// Go closure — there is no interpreter to ask at call time.
var bannedTokens = []string{
	"import os", "import subprocess", "import sys", "import socket",
	"require('fs')", "require(\"fs\")", "require('net')", "require(\"net\")",
	"eval(", "exec(", "compile(", "__import__", "open(", "fetch(", "xmlhttprequest",
}

// SecurityViolation reports one banned token found in generated source.
type SecurityViolation struct {
	Token string
}

// CheckSecurity scans code for any banned token, case-insensitively.
func CheckSecurity(code string) []SecurityViolation {
	lower := strings.ToLower(code)
	var violations []SecurityViolation
	for _, tok := range bannedTokens {
		if strings.Contains(lower, strings.ToLower(tok)) {
			violations = append(violations, SecurityViolation{Token: tok})
		}
	}
	return violations
}

var pythonBodies = map[string]string{
	"moving_average": `def run(input_data):
    values = input_data.get("values", [])
    window = input_data.get("window", len(values))
    if not values or window <= 0:
        return {"average": 0}
    tail = values[-window:]
    return {"average": sum(tail) / len(tail)}
`,
	"sum": `def run(input_data):
    values = input_data.get("values", [])
    return {"total": sum(values)}
`,
	"fibonacci": `def run(input_data):
    n = input_data.get("n", 0)
    a, b = 0, 1
    for _ in range(n):
        a, b = b, a + b
    return {"value": a}
`,
	"safe_divide": `def run(input_data):
    numerator = input_data.get("numerator", 0)
    denominator = input_data.get("denominator", 1)
    if denominator == 0:
        return {"quotient": None, "error": "division by zero"}
    return {"quotient": numerator / denominator}
`,
	"echo": `def run(input_data):
    return dict(input_data)
`,
}

var javascriptBodies = map[string]string{
	"moving_average": `function run(inputData) {
  const values = inputData.values || [];
  const window = inputData.window || values.length;
  if (values.length === 0 || window <= 0) return { average: 0 };
  const tail = values.slice(-window);
  return { average: tail.reduce((a, b) => a + b, 0) / tail.length };
}
`,
	"sum": `function run(inputData) {
  const values = inputData.values || [];
  return { total: values.reduce((a, b) => a + b, 0) };
}
`,
	"fibonacci": `function run(inputData) {
  const n = inputData.n || 0;
  let a = 0, b = 1;
  for (let i = 0; i < n; i++) { [a, b] = [b, a + b]; }
  return { value: a };
}
`,
	"safe_divide": `function run(inputData) {
  const numerator = inputData.numerator || 0;
  const denominator = inputData.denominator || 1;
  if (denominator === 0) return { quotient: null, error: "division by zero" };
  return { quotient: numerator / denominator };
}
`,
	"echo": `function run(inputData) {
  return Object.assign({}, inputData);
}
`,
}

// bodyTemplate wraps a logic body with the generated node's name as a
// header comment, rendered via text/template so future template variants
// (header metadata, license banner) slot in without touching the body
// tables above.
var bodyTemplate = template.Must(template.New("codegen-body").Parse(
	"# generated node: {{.Name}}\n{{.Body}}",
))

func renderBody(nodeName, language, capability string) (string, error) {
	bodies := pythonBodies
	if language == "javascript" {
		bodies = javascriptBodies
	}
	body, ok := bodies[capability]
	if !ok {
		body = bodies["echo"]
	}

	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, struct{ Name, Body string }{nodeName, body}); err != nil {
		return "", fmt.Errorf("codegen: rendering body: %w", err)
	}
	return buf.String(), nil
}

// Generated is Generator.Generate's output: a node definition and its
// companion code body, ready for RegistrationService.
type Generated struct {
	NodeName       string
	Language       string
	DefinitionYAML []byte
	Code           string
}

// Generator renders a YAML definition and code body for a detected gap.
type Generator struct{}

// NewGenerator returns a ready-to-use Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders analysis into a Generated value, failing if the
// rendered code does not pass CheckSecurity.
func (g *Generator) Generate(analysis GapAnalysis) (*Generated, error) {
	if !analysis.HasGap {
		return nil, fmt.Errorf("codegen: no gap to generate a node for")
	}

	capability := analysis.matchedTemplate
	if capability == "" {
		capability = "echo"
	}

	code, err := renderBody(analysis.SuggestedNodeName, analysis.SuggestedLanguage, capability)
	if err != nil {
		return nil, err
	}
	if violations := CheckSecurity(code); len(violations) > 0 {
		return nil, fmt.Errorf("codegen: generated code for %s failed security check: %v", analysis.SuggestedNodeName, violations)
	}

	def := buildDefinition(analysis)
	defYAML, err := yaml.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("codegen: marshaling definition: %w", err)
	}

	return &Generated{
		NodeName:       analysis.SuggestedNodeName,
		Language:       analysis.SuggestedLanguage,
		DefinitionYAML: defYAML,
		Code:           code,
	}, nil
}

func buildDefinition(analysis GapAnalysis) *nodedef.Definition {
	params := make([]nodedef.Parameter, len(analysis.InferredParameters))
	for i, p := range analysis.InferredParameters {
		params[i] = nodedef.Parameter{Name: p, Type: "number", Required: false}
	}

	return &nodedef.Definition{
		Name:              analysis.SuggestedNodeName,
		Kind:              "node",
		Description:       fmt.Sprintf("auto-generated %s capability", analysis.SuggestedNodeName),
		Version:           "0.1.0",
		ExecutorType:      nodedef.ExecutorCode,
		Language:          analysis.SuggestedLanguage,
		Parameters:        params,
		OutputAggregation: nodedef.AggregationMerge,
		ErrorStrategy:     nodedef.ErrorStrategyConfig{OnFailure: nodedef.OnFailureAbort, Retry: nodedef.RetryConfig{MaxAttempts: 1}},
		Execution:         nodedef.ExecutionConfig{TimeoutSeconds: 30, Sandbox: true},
	}
}
