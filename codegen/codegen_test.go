package codegen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/orchestrator/nodedef"
)

func TestAnalyzeNoGapWhenCapabilityAlreadyRegistered(t *testing.T) {
	a := NewGapAnalyzer()
	result := a.Analyze("please compute the sum of these numbers", map[string]string{
		"summer": "computes the sum total of a list of numbers",
	})
	assert.False(t, result.HasGap)
}

func TestAnalyzeDetectsKnownTemplateGap(t *testing.T) {
	a := NewGapAnalyzer()
	result := a.Analyze("I need a node that computes a moving average over recent values", map[string]string{})
	require.True(t, result.HasGap)
	assert.Equal(t, "moving_average", result.SuggestedNodeName)
	assert.Equal(t, "python", result.SuggestedLanguage)
	assert.Contains(t, result.InferredParameters, "window")
}

func TestAnalyzeInfersJavascriptForWebTerms(t *testing.T) {
	a := NewGapAnalyzer()
	result := a.Analyze("need to sum values extracted from the DOM of a webpage", map[string]string{})
	require.True(t, result.HasGap)
	assert.Equal(t, "javascript", result.SuggestedLanguage)
}

func TestAnalyzeFallsBackToCustomNameForUnknownCapability(t *testing.T) {
	a := NewGapAnalyzer()
	result := a.Analyze("please transcribe audio recordings to text", map[string]string{})
	require.True(t, result.HasGap)
	assert.Contains(t, result.SuggestedNodeName, "custom_")
	assert.Less(t, result.Confidence, 0.5)
}

func TestGeneratePythonBodyPassesSecurityCheck(t *testing.T) {
	analysis := NewGapAnalyzer().Analyze("compute fibonacci numbers", map[string]string{})
	gen, err := NewGenerator().Generate(analysis)
	require.NoError(t, err)
	assert.Empty(t, CheckSecurity(gen.Code))
	assert.Contains(t, gen.Code, "def run")
}

func TestGenerateRejectingNoGapAnalysis(t *testing.T) {
	_, err := NewGenerator().Generate(GapAnalysis{HasGap: false})
	assert.Error(t, err)
}

func TestCheckSecurityFlagsBannedTokens(t *testing.T) {
	violations := CheckSecurity("import os\nos.system('rm -rf /')")
	assert.NotEmpty(t, violations)
}

func TestRegistrationWritesDefinitionAndScript(t *testing.T) {
	dir := t.TempDir()
	defsDir := filepath.Join(dir, "definitions")
	scriptsDir := filepath.Join(dir, "scripts")
	loader := nodedef.NewLoader()

	reg := NewRegistrationService(defsDir, scriptsDir, loader)
	gen := &Generated{NodeName: "my_node", Language: "python", DefinitionYAML: []byte("name: my_node\n"), Code: "def run(input_data):\n    return input_data\n"}

	err := reg.Register(gen)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(defsDir, "my_node.yaml"))
	assert.FileExists(t, filepath.Join(scriptsDir, "my_node.py"))

	_, ok := loader.Get("my_node")
	assert.True(t, ok)
}

func TestRegistrationRollsBackOnFailure(t *testing.T) {
	dir := t.TempDir()
	defsDir := filepath.Join(dir, "definitions")
	scriptsDir := filepath.Join(dir, "scripts")
	loader := nodedef.NewLoader()

	reg := NewRegistrationService(defsDir, scriptsDir, loader)
	// YAML that does not parse fails loader.LoadBytes after files are
	// written, forcing the rollback path.
	gen := &Generated{NodeName: "broken_node", Language: "python", DefinitionYAML: []byte("not: a: valid: node\n"), Code: "def run(input_data):\n    return input_data\n"}

	err := reg.Register(gen)
	require.Error(t, err)

	_, defErr := os.Stat(filepath.Join(defsDir, "broken_node.yaml"))
	assert.True(t, os.IsNotExist(defErr))
	_, scriptErr := os.Stat(filepath.Join(scriptsDir, "broken_node.py"))
	assert.True(t, os.IsNotExist(scriptErr))
}

func TestPipelineEndToEndGeneratesAndRegisters(t *testing.T) {
	dir := t.TempDir()
	loader := nodedef.NewLoader()
	reg := NewRegistrationService(filepath.Join(dir, "defs"), filepath.Join(dir, "scripts"), loader)
	pipeline := NewPipeline(reg)

	analysis, gen, err := pipeline.Run("safely divide two numbers", map[string]string{})
	require.NoError(t, err)
	require.NotNil(t, gen)
	assert.True(t, analysis.HasGap)
	assert.Equal(t, "safe_divide", gen.NodeName)

	_, ok := loader.Get("safe_divide")
	assert.True(t, ok)
}

func TestPipelineSkipsGenerationWhenNoGap(t *testing.T) {
	dir := t.TempDir()
	loader := nodedef.NewLoader()
	reg := NewRegistrationService(filepath.Join(dir, "defs"), filepath.Join(dir, "scripts"), loader)
	pipeline := NewPipeline(reg)

	_, gen, err := pipeline.Run("sum these numbers", map[string]string{"adder": "computes the sum of numbers"})
	require.NoError(t, err)
	assert.Nil(t, gen)
}
