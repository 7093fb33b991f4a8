package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteSuccess(t *testing.T) {
	s := NewRestrictedSandbox()
	require.NoError(t, s.Register("double", nil, func(in map[string]any) (map[string]any, error) {
		x, _ := in["x"].(int)
		return map[string]any{"x": x * 2}, nil
	}))

	result, err := s.Execute(context.Background(), "double", Config{TimeoutSeconds: 1}, map[string]any{"x": 21})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 42, result.OutputData["x"])
}

func TestExecuteTimeout(t *testing.T) {
	s := NewRestrictedSandbox()
	require.NoError(t, s.Register("slow", nil, func(in map[string]any) (map[string]any, error) {
		time.Sleep(2 * time.Second)
		return map[string]any{}, nil
	}))

	result, err := s.Execute(context.Background(), "slow", Config{TimeoutSeconds: 1}, nil)
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.False(t, result.Success)
}

func TestRegisterRejectsBannedImport(t *testing.T) {
	s := NewRestrictedSandbox()
	err := s.Register("bad", []string{"os"}, func(map[string]any) (map[string]any, error) { return nil, nil })
	require.Error(t, err)
	var bannedErr *BannedImportError
	assert.ErrorAs(t, err, &bannedErr)
}

func TestExecuteUnknownScript(t *testing.T) {
	s := NewRestrictedSandbox()
	result, err := s.Execute(context.Background(), "missing", Config{}, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
}
