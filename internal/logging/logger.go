// Package logging provides the leveled logger shared by the launcher, the
// benchmark sweep, and the web monitor.
package logging

import (
	"fmt"
	"io"
	logpkg "log"
	"os"
)

// Level defines severity for logger output.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// Logger provides leveled logging. A nil *Logger is safe to use and
// discards everything.
type Logger struct {
	level  Level
	logger *logpkg.Logger
}

// New creates a logger writing to stderr with the desired level and prefix.
func New(level Level, prefix string) *Logger {
	return NewWithWriter(os.Stderr, level, prefix)
}

// NewWithWriter creates a logger writing to w. Tests pass io.Discard.
func NewWithWriter(w io.Writer, level Level, prefix string) *Logger {
	return &Logger{
		level:  level,
		logger: logpkg.New(w, prefix, logpkg.LstdFlags|logpkg.Lmicroseconds),
	}
}

// SetLevel adjusts the current logging level.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.level = level
}

func (l *Logger) logf(target Level, format string, args ...any) {
	if l == nil || target > l.level {
		return
	}
	l.logger.Output(3, fmt.Sprintf(format, args...))
}

// Debugf prints debug messages.
func (l *Logger) Debugf(format string, args ...any) {
	l.logf(LevelDebug, format, args...)
}

// Infof prints info messages.
func (l *Logger) Infof(format string, args ...any) {
	l.logf(LevelInfo, format, args...)
}

// Warnf prints warning messages.
func (l *Logger) Warnf(format string, args ...any) {
	l.logf(LevelWarn, format, args...)
}

// Errorf prints error messages.
func (l *Logger) Errorf(format string, args ...any) {
	l.logf(LevelError, format, args...)
}
