// Package logger provides leveled logging for the stux application.
//
// All output goes to stderr so that stdout stays clean for command output
// and for the MCP stdio transport, which owns stdout exclusively.
//
// The logger uses printf-style formatting and four levels:
//   - Debug: verbose diagnostics, disabled unless SetDebug(true) is called
//   - Info:  normal operational messages
//   - Warn:  recoverable problems
//   - Error: failures that need attention
package logger

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// debugEnabled controls whether Debug messages are emitted.
// Accessed atomically so SetDebug is safe from any goroutine.
var debugEnabled atomic.Bool

// SetDebug enables or disables debug-level output.
//
// Typically called once during startup when the user passes --verbose.
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether debug output is currently enabled.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// Debug logs a debug-level message. No-op unless SetDebug(true) was called.
func Debug(format string, args ...interface{}) {
	if debugEnabled.Load() {
		write("DEBUG", format, args...)
	}
}

// Info logs an informational message.
func Info(format string, args ...interface{}) {
	write("INFO", format, args...)
}

// Warn logs a warning message.
func Warn(format string, args ...interface{}) {
	write("WARN", format, args...)
}

// Error logs an error message.
func Error(format string, args ...interface{}) {
	write("ERROR", format, args...)
}

// write formats and emits a single log line.
//
// Format: [LEVEL] 2026-01-02 15:04:05 | message
func write(level, format string, args ...interface{}) {
	ts := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(os.Stderr, "[%s] %s | %s\n", level, ts, fmt.Sprintf(format, args...))
}
