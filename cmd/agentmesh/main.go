// Command agentmesh is the CLI for the orchestrator module.
//
// Usage:
//
//	agentmesh run --config config.yaml
//	agentmesh validate definitions/summarize.yaml
//	agentmesh version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/agentmesh/orchestrator/bus"
	"github.com/agentmesh/orchestrator/config"
	"github.com/agentmesh/orchestrator/coordinator"
	"github.com/agentmesh/orchestrator/executor"
	"github.com/agentmesh/orchestrator/nodedef"
	"github.com/agentmesh/orchestrator/pkg/logger"
	"github.com/agentmesh/orchestrator/rules"
	"github.com/agentmesh/orchestrator/workflow"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Run      RunCmd      `cmd:"" help:"Execute a demonstration workflow."`
	Validate ValidateCmd `cmd:"" help:"Validate a node definition file."`

	Config   string `short:"c" help:"Path to the runtime config file." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile  string `help:"Write logs to this file instead of stderr." type:"path"`
}

// VersionCmd prints the module's build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println("agentmesh orchestrator dev")
	return nil
}

// RunCmd wires every subsystem behind a shared bus and executes a small
// built-in workflow end to end, the way the teacher's ServeCmd wires the
// runtime before handing control to its server — except this runtime has no
// server loop of its own, so RunCmd executes once and reports the result.
type RunCmd struct{}

func (c *RunCmd) Run(cli *CLI) error {
	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		return err
	}

	out := os.Stderr
	if cli.LogFile != "" {
		file, cleanup, ferr := logger.OpenLogFile(cli.LogFile)
		if ferr != nil {
			return fmt.Errorf("open log file: %w", ferr)
		}
		defer cleanup()
		out = file
	}
	logger.Init(level, out, "simple")
	log := logger.ForComponent("cmd/agentmesh")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	var cfg *config.AppConfig
	if cli.Config != "" {
		cfg, err = config.Load(cli.Config)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}

	b := bus.New()
	coord := coordinator.New(b, cfg)
	defer coord.Close()

	engine := workflow.NewEngine(executor.EchoExecutor{}, rules.NewEvaluator(128), b)

	plan := workflow.WorkflowPlan{
		Name: "demo-workflow",
		Goal: "greet and summarize",
		Nodes: []workflow.NodeDefinition{
			{Name: "start", Type: workflow.NodeStart},
			{Name: "greet", Type: workflow.NodeGeneric, Config: map[string]any{"text": "hello"}},
			{Name: "summarize", Type: workflow.NodeGeneric, Config: map[string]any{"text": "summary"}},
			{Name: "end", Type: workflow.NodeEnd},
		},
		Edges: []workflow.EdgeDefinition{
			{SourceName: "start", TargetName: "greet"},
			{SourceName: "greet", TargetName: "summarize"},
			{SourceName: "summarize", TargetName: "end"},
		},
	}

	execCtx, err := engine.Execute(ctx, "demo-workflow", plan)
	if err != nil {
		return fmt.Errorf("workflow execution: %w", err)
	}

	results := execCtx.AllResults()
	failed := 0
	for _, r := range results {
		if !r.Ok {
			failed++
		}
	}

	log.Info("workflow finished",
		"nodes", len(results),
		"failed", failed,
		"duration", execCtx.Duration(),
	)
	fmt.Printf("workflow finished: nodes=%d failed=%d duration=%s\n", len(results), failed, execCtx.Duration())

	if state := coord.WorkflowState("demo-workflow"); state != nil {
		fmt.Printf("monitor snapshot: status=%s completed=%d/%d\n", state.Status, len(state.ExecutedNodes), state.NodeCount)
	}

	return nil
}

// ValidateCmd parses and validates a single node definition file, the way
// the teacher's own ValidateCmd checks a config document before it is ever
// used to construct a runtime.
type ValidateCmd struct {
	Path string `arg:"" name:"path" help:"Node definition YAML file." type:"path"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return err
	}

	def, err := nodedef.Parse(data)
	if err != nil {
		fmt.Printf("invalid: %v\n", err)
		return err
	}

	fmt.Printf("valid: %q (executor_type=%s)\n", def.Name, def.ExecutorType)
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("agentmesh"),
		kong.Description("orchestrator runtime CLI"),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
