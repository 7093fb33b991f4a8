package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAppliesEveryDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 300.0, cfg.Supervision.MaxWorkflowDurationSeconds)
	assert.Equal(t, 30, cfg.Sandbox.DefaultTimeoutSeconds)
	assert.Contains(t, cfg.Sandbox.BannedImports, "subprocess")
	assert.Equal(t, 100, cfg.Injection.DefaultPriority)
	assert.NotEmpty(t, cfg.Paths.NodeDefinitionsDir)
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveThreshold(t *testing.T) {
	cfg := Default()
	cfg.Supervision.MaxCPUPercent = 0
	assert.Error(t, cfg.Validate())
}

func TestToThresholdsCopiesFields(t *testing.T) {
	cfg := Default()
	th := cfg.Supervision.ToThresholds()
	assert.Equal(t, cfg.Supervision.MaxWorkflowDurationSeconds, th.MaxWorkflowDurationSeconds)
	assert.Equal(t, cfg.Supervision.MaxMemoryMB, th.MaxMemoryMB)
	assert.Equal(t, cfg.Supervision.MaxCPUPercent, th.MaxCPUPercent)
	assert.Equal(t, cfg.Supervision.MaxNodeDurationSeconds, th.MaxNodeDurationSeconds)
}

func TestValidateRejectsCollidingPaths(t *testing.T) {
	cfg := Default()
	cfg.Paths.GeneratedScriptsDir = cfg.Paths.NodeDefinitionsDir
	assert.Error(t, cfg.Validate())
}

func TestLoadExpandsEnvVarsAndAppliesDefaults(t *testing.T) {
	t.Setenv("ORCH_LOG_LEVEL", "debug")
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	content := "log_level: ${ORCH_LOG_LEVEL}\npaths:\n  node_definitions_dir: ${MISSING_VAR:-defs}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "defs", cfg.Paths.NodeDefinitionsDir)
	assert.Equal(t, 30, cfg.Sandbox.DefaultTimeoutSeconds)
}

func TestLoadRejectsInvalidConfigAfterDefaulting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: nonsense\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatcherReloadsOnDebouncedWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o644))

	reloaded := make(chan *AppConfig, 1)
	w, err := NewWatcher(path, func(cfg *AppConfig) { reloaded <- cfg }, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "debug", cfg.LogLevel)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatcherSkipsInvalidReloadAndLogsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o644))

	reloaded := make(chan *AppConfig, 1)
	w, err := NewWatcher(path, func(cfg *AppConfig) { reloaded <- cfg }, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("log_level: bogus\n"), 0o644))

	select {
	case <-reloaded:
		t.Fatal("onChange should not fire for an invalid reload")
	case <-time.After(500 * time.Millisecond):
	}
}
