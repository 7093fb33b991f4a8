package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluatorBasicComparison(t *testing.T) {
	e := NewEvaluator(0)
	ok, err := e.Eval("quality > 0.8", map[string]any{"quality": 0.95})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Eval("quality <= 0.8", map[string]any{"quality": 0.95})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluatorSafeBuiltins(t *testing.T) {
	e := NewEvaluator(0)
	ok, err := e.Eval("abs(x) > 2 and len(items) == 3", map[string]any{
		"x":     -5,
		"items": []any{1, 2, 3},
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluatorNoIdentifierOutsideContext(t *testing.T) {
	// Testable Property 7: no identifier outside the supplied context can
	// be resolved.
	e := NewEvaluator(0)
	_, err := e.Eval("secret_value > 0", map[string]any{"quality": 1})
	assert.Error(t, err)
}

func TestEvaluatorCachesCompiledPrograms(t *testing.T) {
	e := NewEvaluator(0)
	condition := "quality > 0.5"

	_, err := e.Eval(condition, map[string]any{"quality": 0.9})
	require.NoError(t, err)
	assert.Equal(t, 1, e.cache.Len())

	_, err = e.Eval(condition, map[string]any{"quality": 0.1})
	require.NoError(t, err)
	assert.Equal(t, 1, e.cache.Len(), "same condition text must reuse the cached program")
}

func TestEvaluatorEmptyConditionAlwaysTrue(t *testing.T) {
	e := NewEvaluator(0)
	ok, err := e.Eval("", map[string]any{})
	require.NoError(t, err)
	assert.True(t, ok)
}
