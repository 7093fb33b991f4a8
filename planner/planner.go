// Package planner declares the pluggable Planner and Reflector interfaces
// (spec.md §6). Both are external collaborators — LLM-backed implementations
// are explicitly out of scope per spec.md §1; this package only specifies
// the contract the Workflow Agent and Coordinator Agent consume.
package planner

import "context"

// Decision is a structured action proposed by the planner: create node,
// execute, connect, modify, or create a full plan.
type Decision struct {
	ActionType string
	Payload    map[string]any
}

// Planner turns accumulated context into the next Decision.
type Planner interface {
	Decide(ctx context.Context, evalContext map[string]any) (Decision, error)
}

// ReflectionResult is the outcome of evaluating a completed workflow run.
type ReflectionResult struct {
	Assessment             string
	Issues                 []string
	Recommendations        []string
	Confidence             float64
	ShouldRetry            bool
	SuggestedModifications map[string]any
}

// Reflector evaluates a workflow's result and produces retry guidance.
type Reflector interface {
	Reflect(ctx context.Context, result map[string]any) (ReflectionResult, error)
}
