// Package executor declares the Node Executor external interface (spec.md
// §6) and ships one trivial reference implementation, EchoExecutor, used in
// tests and the demonstration binary. Concrete HTTP/DB/container executors
// are out of scope per spec.md §1 and are not implemented here.
package executor

import "context"

// Executor is consumed by the workflow engine to run one node's logic. The
// engine never assumes anything beyond this signature.
type Executor interface {
	Execute(ctx context.Context, nodeID string, config map[string]any, inputs map[string]any) (map[string]any, error)
}

// EchoExecutor returns its inputs as output, unmodified — grounded on the
// teacher's AutonomousExecutor echo-fallback path (workflow/executors.go),
// generalized from "echo the agent's configured input" to a standalone
// reference Executor.
type EchoExecutor struct{}

// Execute implements Executor.
func (EchoExecutor) Execute(_ context.Context, _ string, _ map[string]any, inputs map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(inputs))
	for k, v := range inputs {
		out[k] = v
	}
	return out, nil
}
