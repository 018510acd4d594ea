// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging provides the levelled file logger used across regtech.
//
// The TUI owns the terminal, so log output goes to a file
// (~/.regtech/regtech.log by default) rather than stderr.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level represents the logging level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a config string to a Level. Unknown values map to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ValidLevel reports whether s names a known level.
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// =============================================================================
// LOGGER
// =============================================================================

// Logger is a levelled wrapper around the standard library logger.
// A nil *Logger discards everything.
type Logger struct {
	mu     sync.Mutex
	level  Level
	logger *log.Logger
	closer io.Closer
	prefix string
}

// New creates a logger writing to w.
func New(w io.Writer, level Level) *Logger {
	return &Logger{
		level:  level,
		logger: log.New(w, "", log.LstdFlags|log.Lmicroseconds),
	}
}

// Open creates a logger appending to the file at path.
func Open(path string, level Level) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	l := New(f, level)
	l.closer = f
	return l, nil
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	return New(io.Discard, LevelError+1)
}

// With returns a logger sharing the output whose lines carry a component tag.
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return nil
	}
	prefix := component
	if l.prefix != "" {
		prefix = l.prefix + "." + component
	}
	return &Logger{level: l.Level(), logger: l.logger, prefix: prefix}
}

// SetLevel changes the minimum level.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// Level returns the minimum level.
func (l *Logger) Level() Level {
	if l == nil {
		return LevelError + 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *Logger) logf(level Level, format string, args ...any) {
	if l == nil || level < l.Level() {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.prefix != "" {
		l.logger.Printf("[%s] %s: %s", level, l.prefix, msg)
		return
	}
	l.logger.Printf("[%s] %s", level, msg)
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) { l.logf(LevelDebug, format, args...) }

// Info logs an info message.
func (l *Logger) Info(format string, args ...any) { l.logf(LevelInfo, format, args...) }

// Warn logs a warning.
func (l *Logger) Warn(format string, args ...any) { l.logf(LevelWarn, format, args...) }

// Error logs an error.
func (l *Logger) Error(format string, args ...any) { l.logf(LevelError, format, args...) }
