package node

import (
	"fmt"

	"github.com/agentmesh/orchestrator/pkg/registry"
)

// Registry is the Node Schema Registry: a thread-safe named-item store
// exactly like the teacher's workflow.WorkflowExecutorRegistry (itself a
// *registry.BaseRegistry[WorkflowExecutor] embed), instantiated over
// *Schema.
type Registry struct {
	*registry.BaseRegistry[*Schema]
}

// NewRegistry returns a Registry pre-seeded with all 17 built-in schemas.
// Each is validated against the same constraint-checking code path used at
// runtime during this call, so a malformed built-in schema fails fast at
// construction rather than silently at first use.
func NewRegistry() *Registry {
	r := &Registry{BaseRegistry: registry.NewBaseRegistry[*Schema]()}
	for t, schema := range builtinSchemas() {
		if err := validateSchemaShape(schema); err != nil {
			panic(fmt.Sprintf("node: built-in schema %s is invalid: %v", t, err))
		}
		_ = r.Register(string(t), schema)
	}
	return r
}

func validateSchemaShape(s *Schema) error {
	for _, c := range s.Constraints {
		if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
			return fmt.Errorf("constraint on %s has min > max", c.Field)
		}
	}
	return nil
}

// SchemaFor returns the schema for t, if registered.
func (r *Registry) SchemaFor(t Type) (*Schema, bool) {
	return r.Get(string(t))
}
