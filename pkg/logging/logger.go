package logging

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
)

// Level is a logger's verbosity threshold. Levels are ordered by value: a
// record is emitted only when its level does not exceed the logger's own, so
// LevelWarn captures errors and warnings while LevelDebug captures
// everything a run produces.
type Level uint

const (
	// LevelDisabled suppresses all output.
	LevelDisabled Level = iota
	// LevelError emits only run-aborting failures.
	LevelError
	// LevelWarn adds recoverable problems (skipped entries, retried
	// uploads).
	LevelWarn
	// LevelInfo adds per-run summaries, the default for the CLI.
	LevelInfo
	// LevelDebug adds per-stage byte accounting and pipeline lifecycle
	// detail.
	LevelDebug
)

// levelNames maps each level to the name accepted on the command line and
// reported by String.
var levelNames = map[Level]string{
	LevelDisabled: "disabled",
	LevelError:    "error",
	LevelWarn:     "warn",
	LevelInfo:     "info",
	LevelDebug:    "debug",
}

// NameToLevel resolves a command-line verbosity name to its Level. The
// boolean result reports whether the name was recognized; unrecognized
// names yield LevelDisabled.
func NameToLevel(name string) (Level, bool) {
	for level, levelName := range levelNames {
		if levelName == name {
			return level, true
		}
	}
	return LevelDisabled, false
}

// String implements fmt.Stringer.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// DebugEnabled controls whether or not Debug-level output is emitted. It is a
// package-level switch (mirroring a global verbosity flag) rather than a
// per-logger setting so that every sublogger created throughout a run
// respects one process-wide decision.
var DebugEnabled = false

// Logger is the main logger type. It has the property that it still
// functions if nil, but doesn't log anything, so components can be
// constructed with a nil logger in tests without nil-checking at every call
// site. Loggers are safe for concurrent use.
type Logger struct {
	// prefix is the accumulated sublogger prefix (dotted, stage-tagged).
	prefix string
	// level is the minimum level this logger (and its subloggers) emit.
	level Level
	// output is the underlying destination.
	output *log.Logger
}

// RootLogger is the root logger from which all other loggers derive. It
// writes to stderr and defaults to LevelInfo.
var RootLogger = &Logger{
	level:  LevelInfo,
	output: log.New(os.Stderr, "", log.LstdFlags),
}

// New creates a new root logger at the given level.
func New(level Level) *Logger {
	return &Logger{
		level:  level,
		output: log.New(os.Stderr, "", log.LstdFlags),
	}
}

// Sublogger creates a new sublogger tagged with name. Stage implementations
// use this to acquire a logger carrying their stage identity (e.g.
// "pipeline.compress") without the caller needing to format prefixes itself.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{prefix: prefix, level: l.level, output: l.output}
}

func (l *Logger) log(level Level, line string) {
	if l == nil || l.output == nil || level > l.level {
		return
	}
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}
	l.output.Output(3, line)
}

// Info logs execution information with fmt.Sprint semantics.
func (l *Logger) Info(v ...any) {
	l.log(LevelInfo, fmt.Sprint(v...))
}

// Infof logs execution information with fmt.Sprintf semantics.
func (l *Logger) Infof(format string, v ...any) {
	l.log(LevelInfo, fmt.Sprintf(format, v...))
}

// Debug logs advanced execution information, gated additionally by
// DebugEnabled so that debug output can be toggled independently of the
// logger's configured level.
func (l *Logger) Debug(v ...any) {
	if !DebugEnabled {
		return
	}
	l.log(LevelDebug, fmt.Sprint(v...))
}

// Debugf logs advanced execution information with fmt.Sprintf semantics.
func (l *Logger) Debugf(format string, v ...any) {
	if !DebugEnabled {
		return
	}
	l.log(LevelDebug, fmt.Sprintf(format, v...))
}

// Warn logs a non-fatal error in yellow.
func (l *Logger) Warn(err error) {
	l.log(LevelWarn, color.YellowString("warning: %v", err))
}

// Warnf logs a formatted non-fatal warning in yellow.
func (l *Logger) Warnf(format string, v ...any) {
	l.log(LevelWarn, color.YellowString(format, v...))
}

// Error logs a fatal error in red.
func (l *Logger) Error(err error) {
	l.log(LevelError, color.RedString("error: %v", err))
}

// Writer returns an io.Writer that logs each line written to it at Info
// level. If the logger is nil, the writer discards everything.
func (l *Logger) Writer() io.Writer {
	if l == nil {
		return io.Discard
	}
	return &lineWriter{log: l.Info}
}

// lineWriter splits writes on newlines and forwards whole lines to a logging
// callback, buffering any trailing partial line between calls.
type lineWriter struct {
	log    func(...any)
	buffer []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buffer = append(w.buffer, p...)
	for {
		idx := -1
		for i, b := range w.buffer {
			if b == '\n' {
				idx = i
				break
			}
		}
		if idx == -1 {
			break
		}
		w.log(string(w.buffer[:idx]))
		w.buffer = w.buffer[idx+1:]
	}
	return len(p), nil
}
