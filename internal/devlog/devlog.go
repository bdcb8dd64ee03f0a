// Package devlog is the small DEBUG/INFO logging facility §6 asks
// every card to consume. The teacher never reaches for a logging
// library anywhere in the pack's go.mod files (it logs ad hoc with
// fmt.Printf/log.Printf at call sites), so this stays a thin stdlib
// wrapper rather than importing one.
package devlog

import (
	"log"
	"os"
)

// Logger is a DEBUG/INFO logger. Create one with New; a nil *Logger
// is safe to call and discards everything.
type Logger struct {
	out   *log.Logger
	debug bool
}

// New creates a Logger. When debug is false, Debugf calls are no-ops.
func New(prefix string, debug bool) *Logger {
	return &Logger{
		out:   log.New(os.Stderr, prefix, log.LstdFlags),
		debug: debug,
	}
}

// Debugf logs at DEBUG severity.
func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || !l.debug {
		return
	}
	l.out.Printf("DEBUG "+format, args...)
}

// Infof logs at INFO severity.
func (l *Logger) Infof(format string, args ...any) {
	if l == nil {
		return
	}
	l.out.Printf("INFO "+format, args...)
}
