// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging is the structured logger the rest of the IPS depends on.
// It wraps github.com/charmbracelet/log and adds the two levels the core's
// logger contract needs beyond Debug/Info/Warn/Error: Verbose (an alias for
// Debug, named the way the rule loader and matcher call it) and Alert (a
// level above Error that is never filtered, used exclusively for the
// IPS alert line format).
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

// Level mirrors charmbracelet/log's severity ordering.
type Level int32

const (
	LevelDebug Level = Level(charmlog.DebugLevel)
	LevelInfo  Level = Level(charmlog.InfoLevel)
	LevelWarn  Level = Level(charmlog.WarnLevel)
	LevelError Level = Level(charmlog.ErrorLevel)
)

// levelAlert sits above Error so Alert() is emitted at any configured
// threshold except a level set above it, which nothing in this package does.
const levelAlert charmlog.Level = charmlog.ErrorLevel + 1

// Config controls how a Logger is constructed.
type Config struct {
	Output    io.Writer
	Level     Level
	Component string
}

// DefaultConfig logs at LevelInfo to stderr.
func DefaultConfig() Config {
	return Config{Output: os.Stderr, Level: LevelInfo}
}

// Logger is the logging handle passed around the IPS core: Info, Warn,
// Error, Verbose, Alert, and a raw passthrough.
type Logger struct {
	inner *charmlog.Logger
	raw   io.Writer
}

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	inner := charmlog.NewWithOptions(out, charmlog.Options{
		Level:           charmlog.Level(cfg.Level),
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02 15:04:05",
	})
	if cfg.Component != "" {
		inner = inner.With("component", cfg.Component)
	}
	return &Logger{inner: inner, raw: out}
}

// WithComponent returns a child logger tagging every line with component=name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{inner: l.inner.With("component", name), raw: l.raw}
}

// WithError returns a child logger tagging every line with the given error.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{inner: l.inner.With("error", err), raw: l.raw}
}

func (l *Logger) Debug(msg string, kv ...any) { l.inner.Debug(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.inner.Info(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.inner.Warn(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.inner.Error(msg, kv...) }

// Verbose is the rule loader and matcher's name for trace-level detail.
func (l *Logger) Verbose(msg string, kv ...any) { l.inner.Debug(msg, kv...) }

// Alert emits at the IPS-specific level used for rule matches and
// rate-limit/ban events.
func (l *Logger) Alert(msg string, kv ...any) { l.inner.Log(levelAlert, msg, kv...) }

// IsVerbose reports whether Verbose-level messages are currently emitted.
func (l *Logger) IsVerbose() bool {
	return l.inner.GetLevel() <= charmlog.DebugLevel
}

// WriteRaw writes a line straight to the configured output, bypassing level
// filtering and structured key/value formatting. Used for the verbose
// per-rule dump.
func (l *Logger) WriteRaw(line string) {
	fmt.Fprintln(l.raw, line)
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(DefaultConfig())
)

// SetDefault replaces the package-level default logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Default returns the package-level default logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

func WithComponent(name string) *Logger  { return Default().WithComponent(name) }
func Debug(msg string, kv ...any)        { Default().Debug(msg, kv...) }
func Info(msg string, kv ...any)         { Default().Info(msg, kv...) }
func Warn(msg string, kv ...any)         { Default().Warn(msg, kv...) }
func Error(msg string, kv ...any)        { Default().Error(msg, kv...) }
func Verbose(msg string, kv ...any)      { Default().Verbose(msg, kv...) }
func Alert(msg string, kv ...any)        { Default().Alert(msg, kv...) }
