// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger sets up the process-wide slog.Logger: level parsing,
// terminal-aware colored/simple/verbose text formatting, and filtering of
// third-party library noise below DEBUG. It generalizes this to
// component-scoped child loggers, since every package in this module
// (bus, workflow, supervision, coordinator, ...) wants its own "component"
// attribute on every record rather than sharing one undifferentiated
// global logger.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

var defaultLogger *slog.Logger

const modulePackagePrefix = "github.com/agentmesh/orchestrator"

// ParseLevel converts a string log level to slog.Level. Valid levels:
// debug, info, warn, error. An unrecognized level defaults to warn rather
// than erroring, so a typo'd --log-level flag degrades to quieter output
// instead of refusing to start.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, nil
	}
}

// filteringHandler hides third-party library logs unless the level is
// DEBUG, so a workflow run at info level surfaces only this module's own
// records.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel && h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || h.isOwnPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

// isOwnPackage reports whether pc's call site belongs to this module,
// identified either by its fully qualified function name or its source
// file path — the latter catches callers built with -trimpath, where the
// function name alone may not carry the full module path.
func (h *filteringHandler) isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	file, _ := fn.FileLine(pc)
	return strings.Contains(fn.Name(), modulePackagePrefix) || strings.Contains(file, "orchestrator/")
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m" // red
	case level >= slog.LevelWarn:
		return "\033[33m" // yellow
	case level >= slog.LevelInfo:
		return "\033[36m" // cyan
	default:
		return "\033[90m" // gray
	}
}

func isTerminal(file *os.File) bool {
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// textHandler renders records as "LEVEL message key=value ..." (simple) or
// "TIME LEVEL message key=value ..." (verbose), optionally with ANSI color
// on the level token. A single handler covers both the terminal and
// non-terminal cases — useColor is just another field, not a second
// handler type — since the two formats differ only in whether a color
// escape wraps the level token.
type textHandler struct {
	writer   io.Writer
	useColor bool
	verbose  bool
}

func (h *textHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *textHandler) Handle(_ context.Context, record slog.Record) error {
	var buf strings.Builder

	if h.verbose && !record.Time.IsZero() {
		buf.WriteString(record.Time.Format("2006/01/02 15:04:05 "))
	}

	levelStr := record.Level.String()
	if levelStr == "WARNING" {
		levelStr = "WARN"
	}
	levelStr = strings.ToUpper(levelStr)
	if h.useColor {
		buf.WriteString(levelColor(record.Level))
		buf.WriteString(levelStr)
		buf.WriteString("\033[0m")
	} else {
		buf.WriteString(levelStr)
	}
	buf.WriteString(" ")
	buf.WriteString(record.Message)

	record.Attrs(func(a slog.Attr) bool {
		buf.WriteString(" ")
		buf.WriteString(a.Key)
		buf.WriteString("=")
		buf.WriteString(a.Value.String())
		return true
	})
	buf.WriteString("\n")

	_, err := h.writer.Write([]byte(buf.String()))
	return err
}

func (h *textHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *textHandler) WithGroup(string) slog.Handler      { return h }

// Init builds the process-wide logger at level, writing to output in the
// requested format ("simple": level + message; "verbose": time + level +
// message; anything else falls back to slog's own TextHandler encoding).
// Color is applied automatically when output is a terminal. Third-party
// library logs are suppressed below DEBUG.
func Init(level slog.Level, output *os.File, format string) {
	simple := format == "simple" || format == ""
	verbose := format == "verbose"
	useColor := isTerminal(output)

	var handler slog.Handler
	switch {
	case simple || verbose:
		handler = &textHandler{writer: output, useColor: useColor, verbose: verbose}
	default:
		opts := &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Key == slog.LevelKey && a.Value.String() == "WARNING" {
					return slog.String("level", "WARN")
				}
				return a
			},
		}
		handler = slog.NewTextHandler(output, opts)
	}

	defaultLogger = slog.New(&filteringHandler{handler: handler, minLevel: level})
	slog.SetDefault(defaultLogger)
}

// OpenLogFile opens (or creates) a log file for append, returning it and a
// cleanup func suitable for a deferred call at the entrypoint. Used by
// callers that prefer --log-file over stderr.
func OpenLogFile(path string) (*os.File, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { file.Close() }, nil
}

// GetLogger returns the process-wide logger, lazily initializing it at
// info level in simple format if Init was never called.
func GetLogger() *slog.Logger {
	if defaultLogger == nil {
		Init(slog.LevelInfo, os.Stderr, "simple")
	}
	return defaultLogger
}

// ForComponent returns a child logger carrying a "component" attribute,
// so records from workflow, supervision, coordinator, etc. are
// distinguishable in a shared log stream without each package hand-rolling
// its own prefix.
func ForComponent(name string) *slog.Logger {
	return GetLogger().With(slog.String("component", name))
}
