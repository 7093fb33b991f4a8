// Package config loads the runtime's own settings: where the rule
// configuration and self-describing node definitions live on disk, and the
// tunable thresholds the supervision and sandbox components start with.
// This is distinct from rules.LoadFromConfig, which loads the *content* of a
// rule file — this package loads the paths and knobs every other component
// is constructed with.
//
// Grounded on the teacher's config/types.go Validate()/SetDefaults() pair
// applied per struct, and config/env.go's ${VAR:-default} expansion, adapted
// to this module's much smaller settings surface.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/agentmesh/orchestrator/supervision"
)

// Error reports a config-loading failure, mirroring the rules package's own
// component-scoped error shape.
type Error struct {
	Action  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "config: " + e.Action + ": " + e.Message + ": " + e.Err.Error()
	}
	return "config: " + e.Action + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// SupervisionConfig carries the thresholds the Supervision Subsystem
// (supervision.WorkflowEfficiencyMonitor) is constructed with. Field names
// mirror supervision.Thresholds directly so ToThresholds is a straight copy.
type SupervisionConfig struct {
	MaxWorkflowDurationSeconds float64 `yaml:"max_workflow_duration_seconds"`
	MaxMemoryMB                float64 `yaml:"max_memory_mb"`
	MaxCPUPercent              float64 `yaml:"max_cpu_percent"`
	MaxNodeDurationSeconds     float64 `yaml:"max_node_duration_seconds"`
}

// SetDefaults fills in the thresholds the teacher's zero-config philosophy
// expects every deployment to get for free. Values match
// supervision.DefaultThresholds so an omitted section behaves identically
// to constructing the monitor with no config file at all.
func (c *SupervisionConfig) SetDefaults() {
	if c.MaxWorkflowDurationSeconds == 0 {
		c.MaxWorkflowDurationSeconds = 300
	}
	if c.MaxMemoryMB == 0 {
		c.MaxMemoryMB = 2048
	}
	if c.MaxCPUPercent == 0 {
		c.MaxCPUPercent = 90
	}
	if c.MaxNodeDurationSeconds == 0 {
		c.MaxNodeDurationSeconds = 60
	}
}

// Validate rejects zero or negative thresholds, since such a threshold
// would alert on every node.
func (c *SupervisionConfig) Validate() error {
	if c.MaxWorkflowDurationSeconds <= 0 {
		return fmt.Errorf("max_workflow_duration_seconds must be positive")
	}
	if c.MaxMemoryMB <= 0 {
		return fmt.Errorf("max_memory_mb must be positive")
	}
	if c.MaxCPUPercent <= 0 {
		return fmt.Errorf("max_cpu_percent must be positive")
	}
	if c.MaxNodeDurationSeconds <= 0 {
		return fmt.Errorf("max_node_duration_seconds must be positive")
	}
	return nil
}

// ToThresholds converts c into the type supervision.NewWorkflowEfficiencyMonitor
// expects.
func (c SupervisionConfig) ToThresholds() supervision.Thresholds {
	return supervision.Thresholds{
		MaxWorkflowDurationSeconds: c.MaxWorkflowDurationSeconds,
		MaxMemoryMB:                c.MaxMemoryMB,
		MaxCPUPercent:              c.MaxCPUPercent,
		MaxNodeDurationSeconds:     c.MaxNodeDurationSeconds,
	}
}

// SandboxConfig carries sandbox timeout and banned-import settings. These
// values are loaded and defaulted here only: sandbox.NewRestrictedSandbox
// takes no configuration and uses its own built-in banned list and 30-second
// default timeout.
type SandboxConfig struct {
	DefaultTimeoutSeconds int      `yaml:"default_timeout_seconds"`
	BannedImports         []string `yaml:"banned_imports"`
}

// SetDefaults mirrors the banned-import list spec.md §6 requires of every
// RestrictedSandbox, so a config file that omits the field still gets it.
func (c *SandboxConfig) SetDefaults() {
	if c.DefaultTimeoutSeconds == 0 {
		c.DefaultTimeoutSeconds = 30
	}
	if c.BannedImports == nil {
		c.BannedImports = []string{
			"os", "subprocess", "sys", "socket", "eval", "exec", "compile", "__import__",
		}
	}
}

// Validate rejects a non-positive timeout, which would make every sandbox
// execution fail immediately.
func (c *SandboxConfig) Validate() error {
	if c.DefaultTimeoutSeconds <= 0 {
		return fmt.Errorf("default_timeout_seconds must be positive")
	}
	return nil
}

// PathsConfig locates the on-disk roots the nodedef and codegen packages
// read from and write to.
type PathsConfig struct {
	RuleConfigFile      string `yaml:"rule_config_file"`
	NodeDefinitionsDir  string `yaml:"node_definitions_dir"`
	GeneratedScriptsDir string `yaml:"generated_scripts_dir"`
}

// SetDefaults points every path at a conventional subdirectory of the
// current working directory, so a fresh checkout runs without a config file.
func (c *PathsConfig) SetDefaults() {
	if c.RuleConfigFile == "" {
		c.RuleConfigFile = "config/rules.yaml"
	}
	if c.NodeDefinitionsDir == "" {
		c.NodeDefinitionsDir = "definitions"
	}
	if c.GeneratedScriptsDir == "" {
		c.GeneratedScriptsDir = "scripts"
	}
}

// Validate rejects empty paths, which would resolve to the working
// directory itself and collide across roots.
func (c *PathsConfig) Validate() error {
	if c.RuleConfigFile == "" {
		return fmt.Errorf("rule_config_file must not be empty")
	}
	if c.NodeDefinitionsDir == "" {
		return fmt.Errorf("node_definitions_dir must not be empty")
	}
	if c.GeneratedScriptsDir == "" {
		return fmt.Errorf("generated_scripts_dir must not be empty")
	}
	if c.NodeDefinitionsDir == c.GeneratedScriptsDir {
		return fmt.Errorf("node_definitions_dir and generated_scripts_dir must differ")
	}
	return nil
}

// AppConfig is the top-level settings document for a running instance of
// the runtime: where things live on disk, and the thresholds components are
// constructed with.
type AppConfig struct {
	LogLevel    string            `yaml:"log_level"`
	Paths       PathsConfig       `yaml:"paths"`
	Supervision SupervisionConfig `yaml:"supervision"`
	Sandbox     SandboxConfig     `yaml:"sandbox"`
	Injection   InjectionConfig   `yaml:"injection"`
}

// InjectionConfig carries a default injection priority. The value is loaded
// and defaulted here only: injection.Manager does not read it, and its
// Inject* helpers assign injection.DefaultPriority (50) instead.
type InjectionConfig struct {
	DefaultPriority int `yaml:"default_priority"`
}

// SetDefaults fills in a default priority under which no caller-specified
// priority (always an explicit, positive value in this module's callers)
// could accidentally collide.
func (c *InjectionConfig) SetDefaults() {
	if c.DefaultPriority == 0 {
		c.DefaultPriority = 100
	}
}

// SetDefaults fills in every nested section's defaults and the log level.
func (c *AppConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Paths.SetDefaults()
	c.Supervision.SetDefaults()
	c.Sandbox.SetDefaults()
	c.Injection.SetDefaults()
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the top-level log level and delegates to each section.
func (c *AppConfig) Validate() error {
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	if err := c.Paths.Validate(); err != nil {
		return fmt.Errorf("paths: %w", err)
	}
	if err := c.Supervision.Validate(); err != nil {
		return fmt.Errorf("supervision: %w", err)
	}
	if err := c.Sandbox.Validate(); err != nil {
		return fmt.Errorf("sandbox: %w", err)
	}
	return nil
}

// Default returns an AppConfig with every default applied, equivalent to
// Load of an empty document.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.SetDefaults()
	return cfg
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)(:-([^}]*))?\}`)

// expandEnvVars resolves ${VAR} and ${VAR:-default} references in raw
// config bytes before YAML parsing, the same textual pre-pass the teacher's
// config.Load performs.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		groups := envVarPattern.FindSubmatch(match)
		name := string(groups[1])
		if val, ok := os.LookupEnv(name); ok {
			return []byte(val)
		}
		return groups[3]
	})
}

// Load reads, expands, decodes, defaults and validates the config file at
// path, in that order — following the teacher's Loader.Load: parse, expand,
// decode, SetDefaults, Validate, never handing back a config that skipped a
// step.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Action: "load", Message: path, Err: err}
	}

	data = expandEnvVars(data)

	cfg := &AppConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &Error{Action: "load", Message: "parse " + path, Err: err}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, &Error{Action: "load", Message: "validate " + path, Err: err}
	}
	return cfg, nil
}
