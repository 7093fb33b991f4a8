// Package node implements the Node Schema & Registry (spec.md §4.5): typed
// descriptions of each built-in node type's input/output shape, allowed
// children, and constraints, plus a thread-safe registry of schemas. The
// expanded node catalog carries 17 built-in types (the original 13 plus
// FILE, DATA_PROCESS, HUMAN, CONTAINER pulled in from the workflow engine's
// wider scope) rather than the core set alone.
package node

import (
	"encoding/json"
	"strconv"

	"github.com/invopop/jsonschema"
	"github.com/wk8/go-ordered-map/v2"
)

// Type enumerates the built-in node types.
type Type string

const (
	TypeStart       Type = "START"
	TypeEnd         Type = "END"
	TypeLLM         Type = "LLM"
	TypeAPI         Type = "API"
	TypeCode        Type = "CODE"
	TypeCondition   Type = "CONDITION"
	TypeLoop        Type = "LOOP"
	TypeParallel    Type = "PARALLEL"
	TypeKnowledge   Type = "KNOWLEDGE"
	TypeClassify    Type = "CLASSIFY"
	TypeTemplate    Type = "TEMPLATE"
	TypeMCP         Type = "MCP"
	TypeGeneric     Type = "GENERIC"
	TypeFile        Type = "FILE"
	TypeDataProcess Type = "DATA_PROCESS"
	TypeHuman       Type = "HUMAN"
	TypeContainer   Type = "CONTAINER"
)

// PrimitiveType is a JSON-Schema-like primitive kind used by FieldSpec.Type.
type PrimitiveType string

const (
	PrimString  PrimitiveType = "string"
	PrimNumber  PrimitiveType = "number"
	PrimInteger PrimitiveType = "integer"
	PrimBoolean PrimitiveType = "boolean"
	PrimArray   PrimitiveType = "array"
	PrimObject  PrimitiveType = "object"
)

// Constraint describes a range/enum/pattern constraint on one field.
type Constraint struct {
	Field   string
	Min     *float64
	Max     *float64
	Enum    []any
	Pattern string
}

// FieldSpec describes one property of an input or output shape.
type FieldSpec struct {
	Name     string
	Type     PrimitiveType
	Required bool
	Default  any
}

// Schema describes one node type's contract.
type Schema struct {
	Type              Type
	Description       string
	InputFields       []FieldSpec
	OutputFields      []FieldSpec
	AllowedChildTypes []Type
	Constraints       []Constraint
}

// AllowsChildren reports whether this schema permits any children at all.
func (s *Schema) AllowsChildren() bool {
	return len(s.AllowedChildTypes) > 0
}

// AllowsChildType reports whether childType is permitted under this schema.
func (s *Schema) AllowsChildType(childType Type) bool {
	for _, t := range s.AllowedChildTypes {
		if t == childType {
			return true
		}
	}
	return false
}

// allBuiltinTypes lists every built-in type, used by GENERIC's self-nesting
// allowance (spec.md §4.5: "GENERIC permits the full set of built-in types
// including self-nesting").
var allBuiltinTypes = []Type{
	TypeStart, TypeEnd, TypeLLM, TypeAPI, TypeCode, TypeCondition, TypeLoop,
	TypeParallel, TypeKnowledge, TypeClassify, TypeTemplate, TypeMCP,
	TypeGeneric, TypeFile, TypeDataProcess, TypeHuman, TypeContainer,
}

func float64Ptr(v float64) *float64 { return &v }

// builtinSchemas returns the predefined schema for every built-in type.
func builtinSchemas() map[Type]*Schema {
	return map[Type]*Schema{
		TypeStart: {
			Type:        TypeStart,
			Description: "workflow entry point",
			OutputFields: []FieldSpec{{Name: "started", Type: PrimBoolean}},
		},
		TypeEnd: {
			Type:        TypeEnd,
			Description: "workflow exit point",
			InputFields: []FieldSpec{{Name: "result", Type: PrimObject}},
		},
		TypeLLM: {
			Type:        TypeLLM,
			Description: "invokes the configured LLM executor",
			InputFields: []FieldSpec{
				{Name: "prompt", Type: PrimString, Required: true},
				{Name: "temperature", Type: PrimNumber, Default: 0.7},
			},
			OutputFields: []FieldSpec{{Name: "text", Type: PrimString}},
			Constraints: []Constraint{
				{Field: "temperature", Min: float64Ptr(0), Max: float64Ptr(2)},
			},
		},
		TypeAPI: {
			Type:        TypeAPI,
			Description: "calls an external HTTP API via the Executor interface",
			InputFields: []FieldSpec{
				{Name: "url", Type: PrimString, Required: true},
				{Name: "method", Type: PrimString, Default: "GET"},
			},
			OutputFields: []FieldSpec{{Name: "body", Type: PrimObject}, {Name: "status_code", Type: PrimInteger}},
			Constraints: []Constraint{
				{Field: "method", Enum: []any{"GET", "POST", "PUT", "PATCH", "DELETE"}},
			},
		},
		TypeCode: {
			Type:        TypeCode,
			Description: "executes a sandboxed code script",
			InputFields: []FieldSpec{{Name: "input_data", Type: PrimObject}},
			OutputFields: []FieldSpec{{Name: "output_data", Type: PrimObject}},
		},
		TypeCondition: {
			Type:        TypeCondition,
			Description: "evaluates a restricted expression to route downstream edges",
			InputFields: []FieldSpec{{Name: "expression", Type: PrimString, Required: true}},
			OutputFields: []FieldSpec{{Name: "result", Type: PrimBoolean}},
		},
		TypeLoop: {
			Type:              TypeLoop,
			Description:       "repeats its children for each item in a collection",
			InputFields:       []FieldSpec{{Name: "items", Type: PrimArray, Required: true}},
			AllowedChildTypes: allBuiltinTypes,
		},
		TypeParallel: {
			Type:              TypeParallel,
			Description:       "executes its children concurrently",
			AllowedChildTypes: allBuiltinTypes,
		},
		TypeKnowledge: {
			Type:        TypeKnowledge,
			Description: "queries a knowledge/document store",
			InputFields: []FieldSpec{{Name: "query", Type: PrimString, Required: true}},
			OutputFields: []FieldSpec{{Name: "results", Type: PrimArray}},
		},
		TypeClassify: {
			Type:        TypeClassify,
			Description: "classifies input into one of a fixed label set",
			InputFields: []FieldSpec{
				{Name: "text", Type: PrimString, Required: true},
				{Name: "labels", Type: PrimArray, Required: true},
			},
			OutputFields: []FieldSpec{{Name: "label", Type: PrimString}},
		},
		TypeTemplate: {
			Type:        TypeTemplate,
			Description: "renders a text template against node inputs",
			InputFields: []FieldSpec{{Name: "template", Type: PrimString, Required: true}},
			OutputFields: []FieldSpec{{Name: "text", Type: PrimString}},
		},
		TypeMCP: {
			Type:        TypeMCP,
			Description: "invokes a Model Context Protocol tool",
			InputFields: []FieldSpec{{Name: "tool", Type: PrimString, Required: true}},
			OutputFields: []FieldSpec{{Name: "result", Type: PrimObject}},
		},
		TypeGeneric: {
			Type:              TypeGeneric,
			Description:       "user-defined or self-describing node behavior",
			AllowedChildTypes: allBuiltinTypes,
		},
		TypeFile: {
			Type:        TypeFile,
			Description: "reads or writes a file via the Executor interface",
			InputFields: []FieldSpec{{Name: "path", Type: PrimString, Required: true}},
			OutputFields: []FieldSpec{{Name: "content", Type: PrimString}},
		},
		TypeDataProcess: {
			Type:        TypeDataProcess,
			Description: "transforms structured data between nodes",
			InputFields: []FieldSpec{{Name: "data", Type: PrimObject, Required: true}},
			OutputFields: []FieldSpec{{Name: "data", Type: PrimObject}},
		},
		TypeHuman: {
			Type:        TypeHuman,
			Description: "suspends for human-in-the-loop input",
			OutputFields: []FieldSpec{{Name: "response", Type: PrimObject}},
		},
		TypeContainer: {
			Type:              TypeContainer,
			Description:       "dispatches its children to a container executor",
			AllowedChildTypes: allBuiltinTypes,
		},
	}
}

// JSONSchema renders s's input contract as a JSON-Schema-compatible
// map[string]any, built from an invopop/jsonschema.Schema value the same
// way the teacher's functiontool.generateSchema renders a Go struct: fill
// the library's own Schema/orderedmap types, then marshal through JSON so
// encoding/json (not hand-written map construction) produces the final
// shape, including field ordering.
func (s *Schema) JSONSchema() map[string]any {
	props := orderedmap.New[string, *jsonschema.Schema]()
	var required []string
	for _, f := range s.InputFields {
		fs := &jsonschema.Schema{Type: string(f.Type)}
		if f.Default != nil {
			fs.Default = f.Default
		}
		for _, c := range s.Constraints {
			if c.Field != f.Name {
				continue
			}
			if c.Min != nil {
				fs.Minimum = json.Number(formatConstraintBound(*c.Min))
			}
			if c.Max != nil {
				fs.Maximum = json.Number(formatConstraintBound(*c.Max))
			}
			if len(c.Enum) > 0 {
				fs.Enum = c.Enum
			}
			if c.Pattern != "" {
				fs.Pattern = c.Pattern
			}
		}
		props.Set(f.Name, fs)
		if f.Required {
			required = append(required, f.Name)
		}
	}

	out := &jsonschema.Schema{
		Type:        "object",
		Description: s.Description,
		Properties:  props,
		Required:    required,
	}

	data, err := json.Marshal(out)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(result, "$schema")
	delete(result, "$id")
	return result
}

func formatConstraintBound(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
