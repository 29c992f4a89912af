package utils

import (
	"go.uber.org/zap"

	"media_gateway/internal/logging"
)

// Logger is a component logger with key-value fields.
type Logger struct {
	prefix string
	sugar  *zap.SugaredLogger
}

// NewLogger creates a logger named after a component, e.g. "task-service".
func NewLogger(prefix string) *Logger {
	return &Logger{
		prefix: prefix,
		sugar:  logging.L().Named(prefix).Sugar(),
	}
}

// Prefix returns the component name.
func (l *Logger) Prefix() string {
	return l.prefix
}

// With returns a child logger that always carries the given fields.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{prefix: l.prefix, sugar: l.sugar.With(keyvals...)}
}

// Info logs an informational message
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.sugar.Infow(msg, keyvals...)
}

// Error logs an error message
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.sugar.Errorw(msg, keyvals...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.sugar.Warnw(msg, keyvals...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.sugar.Debugw(msg, keyvals...)
}
