package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryShipsAllBuiltinTypes(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 17, r.Count())

	for _, typ := range allBuiltinTypes {
		_, ok := r.SchemaFor(typ)
		assert.True(t, ok, "missing built-in schema for %s", typ)
	}
}

func TestValidateRequiredFieldMissing(t *testing.T) {
	r := NewRegistry()
	schema, _ := r.SchemaFor(TypeLLM)

	errs := Validate(schema, map[string]any{})
	require.NotEmpty(t, errs)
	assert.Equal(t, "prompt", errs[0].Field)
}

func TestValidateTypeMismatch(t *testing.T) {
	r := NewRegistry()
	schema, _ := r.SchemaFor(TypeLLM)

	errs := Validate(schema, map[string]any{"prompt": 123})
	require.NotEmpty(t, errs)
}

func TestValidateConstraintRange(t *testing.T) {
	r := NewRegistry()
	schema, _ := r.SchemaFor(TypeLLM)

	errs := Validate(schema, map[string]any{"prompt": "hi", "temperature": 5.0})
	require.NotEmpty(t, errs)
}

func TestApplyDefaults(t *testing.T) {
	r := NewRegistry()
	schema, _ := r.SchemaFor(TypeLLM)

	out := ApplyDefaults(schema, map[string]any{"prompt": "hi"})
	assert.Equal(t, 0.7, out["temperature"])
}

func TestValidateAddChildRejectsUnlistedType(t *testing.T) {
	r := NewRegistry()
	end, _ := r.SchemaFor(TypeEnd)
	err := ValidateAddChild(end, TypeCode)
	assert.Error(t, err, "END has no allowed child types")
}

func TestGenericAllowsSelfNesting(t *testing.T) {
	r := NewRegistry()
	generic, _ := r.SchemaFor(TypeGeneric)
	assert.NoError(t, ValidateAddChild(generic, TypeGeneric))
}

func TestJSONSchemaRendersRequiredAndConstraints(t *testing.T) {
	r := NewRegistry()
	schema, _ := r.SchemaFor(TypeLLM)

	out := schema.JSONSchema()
	assert.Equal(t, "object", out["type"])

	props, ok := out["properties"].(map[string]any)
	require.True(t, ok)
	prompt, ok := props["prompt"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", prompt["type"])

	temperature, ok := props["temperature"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(0), temperature["minimum"])
	assert.Equal(t, float64(2), temperature["maximum"])

	required, ok := out["required"].([]any)
	require.True(t, ok)
	assert.Contains(t, required, "prompt")
}
