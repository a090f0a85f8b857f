// Package logger is filer's process-wide diagnostic log.
//
// Debug, info and warning lines reach the output only with --verbose.
// Errors always do. Lines are tagged with their level, for example
// "[WARN] gmail: message 17 skipped".
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

var tags = [...]string{
	levelDebug: "[DEBUG] ",
	levelInfo:  "[INFO] ",
	levelWarn:  "[WARN] ",
	levelError: "[ERROR] ",
}

var (
	mu      sync.RWMutex
	out     io.Writer = os.Stderr
	verbose bool
)

// SetVerbose turns the debug, info and warning levels on or off.
func SetVerbose(v bool) {
	mu.Lock()
	verbose = v
	mu.Unlock()
}

// IsVerbose reports whether --verbose output is on.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput redirects the log. Tests pass a buffer.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

// Debug, Info and Warn print in verbose mode only. Error always prints.
func Debug(format string, args ...any) { emit(levelDebug, format, args) }
func Info(format string, args ...any)  { emit(levelInfo, format, args) }
func Warn(format string, args ...any)  { emit(levelWarn, format, args) }
func Error(format string, args ...any) { emit(levelError, format, args) }

// Section prints a "=== name ===" banner in verbose mode.
func Section(name string) {
	mu.Lock()
	defer mu.Unlock()
	if verbose {
		fmt.Fprintf(out, "\n=== %s ===\n", name)
	}
}

// emit holds the write lock so concurrent lines never interleave.
func emit(l level, format string, args []any) {
	mu.Lock()
	defer mu.Unlock()
	if l < levelError && !verbose {
		return
	}
	fmt.Fprintf(out, tags[l]+format+"\n", args...)
}
