// Package sandbox declares the Code Sandbox external interface (spec.md §6)
// and ships RestrictedSandbox, an in-process reference implementation used
// by nodedef's "code" executor dispatch. The codegen package does not run
// generated code here; it applies its own textual CheckSecurity scan.
// The sandboxed runner itself (an actual language interpreter with import
// restrictions) is explicitly out of scope per spec.md §1 — this
// implementation runs registered Go closures instead of interpreting
// arbitrary source, since embedding a Python/JS interpreter is not an
// idiomatic Go concern and is outside this spec's stated boundary.
package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config carries the sandbox's resource limits for one execution.
type Config struct {
	TimeoutSeconds int
	MemoryLimitMB  int
}

// Result is the sandbox's uniform execution outcome.
type Result struct {
	Success    bool
	OutputData map[string]any
	Stdout     string
	Stderr     string
	TimedOut   bool
}

// Sandbox is consumed by the self-describing node executor and the
// code-generation pipeline.
type Sandbox interface {
	Execute(ctx context.Context, code string, config Config, inputData map[string]any) (Result, error)
}

// Script is a registered, named unit of sandboxed logic. RestrictedSandbox
// resolves `code` (the script name) to a Script via its registry — this is
// the "registration boundary" where banned-import style restrictions are
// enforced, since there is no source text to scan at call time in a
// statically-compiled host language.
type Script func(inputData map[string]any) (map[string]any, error)

// BannedImportError reports an attempt to register a script whose declared
// imports include a disallowed package, mirroring spec.md §6's
// `os, subprocess, sys, socket` / `eval, exec, compile, __import__` denylist
// for dynamically-interpreted sandboxes.
type BannedImportError struct {
	Name   string
	Import string
}

func (e *BannedImportError) Error() string {
	return fmt.Sprintf("sandbox: script %q declares banned import %q", e.Name, e.Import)
}

var bannedImports = map[string]bool{
	"os": true, "subprocess": true, "sys": true, "socket": true,
	"eval": true, "exec": true, "compile": true, "__import__": true,
}

// RestrictedSandbox runs registered Scripts on their own goroutine, bounded
// by config.TimeoutSeconds via context.WithTimeout — the suspension-point
// discipline spec.md §5 requires for sandbox invocation.
type RestrictedSandbox struct {
	mu      sync.RWMutex
	scripts map[string]Script
}

// NewRestrictedSandbox returns an empty sandbox.
func NewRestrictedSandbox() *RestrictedSandbox {
	return &RestrictedSandbox{scripts: make(map[string]Script)}
}

// Register adds a named script. declaredImports lists the packages/builtins
// this script's author claims to use; any entry on the banned list is
// rejected at registration time, never at execution time.
func (s *RestrictedSandbox) Register(name string, declaredImports []string, fn Script) error {
	for _, imp := range declaredImports {
		if bannedImports[imp] {
			return &BannedImportError{Name: name, Import: imp}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[name] = fn
	return nil
}

// Execute runs the script registered under code (used here as a script
// name, not raw source text) with a timeout derived from config.
func (s *RestrictedSandbox) Execute(ctx context.Context, code string, config Config, inputData map[string]any) (Result, error) {
	s.mu.RLock()
	script, ok := s.scripts[code]
	s.mu.RUnlock()
	if !ok {
		return Result{Success: false, Stderr: "script not found: " + code}, nil
	}

	timeout := time.Duration(config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		output map[string]any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("sandbox: script %q panicked: %v", code, r)}
			}
		}()
		out, err := script(inputData)
		done <- outcome{output: out, err: err}
	}()

	select {
	case <-runCtx.Done():
		return Result{Success: false, TimedOut: true, Stderr: "execution timed out"}, nil
	case o := <-done:
		if o.err != nil {
			return Result{Success: false, Stderr: o.err.Error()}, nil
		}
		return Result{Success: true, OutputData: o.output}, nil
	}
}
