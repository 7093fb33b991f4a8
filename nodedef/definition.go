// Package nodedef implements the Self-Describing Node Executor (spec.md
// §4.7): YAML node definitions loaded the way the teacher's config.Loader
// reads, parses, defaults and validates a document before handing it back,
// generalized from a single top-level Config to many named node
// definitions keyed by name.
package nodedef

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ExecutorType is the dispatch kind for a leaf (childless) node definition.
type ExecutorType string

const (
	ExecutorCode       ExecutorType = "code"
	ExecutorLLM        ExecutorType = "llm"
	ExecutorParallel   ExecutorType = "parallel"
	ExecutorSequential ExecutorType = "sequential"
)

// OnFailure controls how a failing child affects its siblings.
type OnFailure string

const (
	OnFailureAbort    OnFailure = "abort"
	OnFailureSkip     OnFailure = "skip"
	OnFailureContinue OnFailure = "continue"
)

// Aggregation selects how surviving children outputs combine into the
// parent's result.
type Aggregation string

const (
	AggregationMerge Aggregation = "merge"
	AggregationList  Aggregation = "list"
	AggregationFirst Aggregation = "first"
	AggregationLast  Aggregation = "last"
)

// Parameter describes one input parameter a node definition accepts.
type Parameter struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required"`
	Default  any    `yaml:"default"`
}

// RetryConfig bounds how many attempts error_strategy.retry allows.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// ErrorStrategyConfig governs child-failure handling for container nodes.
type ErrorStrategyConfig struct {
	OnFailure OnFailure   `yaml:"on_failure"`
	Retry     RetryConfig `yaml:"retry"`
}

// ExecutionConfig bounds a leaf node's runtime behavior.
type ExecutionConfig struct {
	TimeoutSeconds int  `yaml:"timeout_seconds"`
	Sandbox        bool `yaml:"sandbox"`
}

// NestedConfig names a container node's children and whether they run
// concurrently.
type NestedConfig struct {
	Parallel bool     `yaml:"parallel"`
	Children []string `yaml:"children"`
}

// Definition is one YAML node-type document.
type Definition struct {
	Name              string              `yaml:"name"`
	Kind              string              `yaml:"kind"`
	Description       string              `yaml:"description"`
	Version           string              `yaml:"version"`
	Author            string              `yaml:"author"`
	Tags              []string            `yaml:"tags"`
	Category          string              `yaml:"category"`
	ExecutorType      ExecutorType        `yaml:"executor_type"`
	Language          string              `yaml:"language"`
	Parameters        []Parameter         `yaml:"parameters"`
	Returns           string              `yaml:"returns"`
	Nested            *NestedConfig       `yaml:"nested"`
	ErrorStrategy     ErrorStrategyConfig `yaml:"error_strategy"`
	Execution         ExecutionConfig     `yaml:"execution"`
	OutputAggregation Aggregation         `yaml:"output_aggregation"`
}

// HasChildren reports whether this definition is a container node.
func (d *Definition) HasChildren() bool {
	return d.Nested != nil && len(d.Nested.Children) > 0
}

// SetDefaults fills in the fields a definition may omit, mirroring the
// teacher's Config.SetDefaults step run after decode and before validation.
func (d *Definition) SetDefaults() {
	if d.Kind == "" {
		d.Kind = "node"
	}
	if d.ErrorStrategy.OnFailure == "" {
		d.ErrorStrategy.OnFailure = OnFailureAbort
	}
	if d.ErrorStrategy.Retry.MaxAttempts == 0 {
		d.ErrorStrategy.Retry.MaxAttempts = 1
	}
	if d.Execution.TimeoutSeconds == 0 {
		d.Execution.TimeoutSeconds = 30
	}
	if d.OutputAggregation == "" {
		d.OutputAggregation = AggregationMerge
	}
	for i := range d.Parameters {
		if d.Parameters[i].Type == "" {
			d.Parameters[i].Type = "string"
		}
	}
}

// Validate rejects a malformed definition: a nested block with missing or
// empty children is invalid, per spec.md §4.7.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("nodedef: definition missing name")
	}
	if d.Nested != nil && len(d.Nested.Children) == 0 {
		return fmt.Errorf("nodedef: %s: nested block present but children is empty", d.Name)
	}
	if !d.HasChildren() {
		switch d.ExecutorType {
		case ExecutorCode, ExecutorLLM, ExecutorParallel, ExecutorSequential, "":
		default:
			return fmt.Errorf("nodedef: %s: unknown executor_type %q", d.Name, d.ExecutorType)
		}
	}
	switch d.OutputAggregation {
	case AggregationMerge, AggregationList, AggregationFirst, AggregationLast:
	default:
		return fmt.Errorf("nodedef: %s: unknown output_aggregation %q", d.Name, d.OutputAggregation)
	}
	return nil
}

// Parse decodes, defaults and validates a YAML node definition document,
// the same read -> parse -> default -> validate pipeline as the teacher's
// config.Loader.Load, minus the provider/env-var expansion steps this
// domain has no use for.
func Parse(data []byte) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("nodedef: cannot parse YAML: %w", err)
	}
	d.SetDefaults()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
