// Package logging provides structured logging for the archive codec.
package logging

import (
	"context"
	"log/slog"
)

// Logger provides structured logging for readers, writers and their layers.
// A nil *Logger is valid and discards everything.
type Logger struct {
	logger *slog.Logger
	fields []any
}

// FromSlog wraps an existing slog logger. A nil logger yields a no-op logger.
func FromSlog(l *slog.Logger) *Logger {
	if l == nil {
		return NewNopLogger()
	}
	return &Logger{logger: l}
}

// NewNopLogger creates a no-op logger that discards all log messages.
func NewNopLogger() *Logger {
	return &Logger{}
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	allArgs := make([]any, len(l.fields)+len(args))
	copy(allArgs, l.fields)
	copy(allArgs[len(l.fields):], args)
	l.logger.Log(ctx, level, msg, allArgs...)
}

// Debug logs debug-level messages
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// Info logs info-level messages
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs warning-level messages
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs error-level messages
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

// With returns a logger with additional context fields
func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.logger == nil {
		return l
	}
	newFields := make([]any, len(l.fields)+len(args))
	copy(newFields, l.fields)
	copy(newFields[len(l.fields):], args)
	return &Logger{logger: l.logger, fields: newFields}
}

// WithComponent returns a logger tagged with the layer that logs.
func (l *Logger) WithComponent(component string) *Logger {
	return l.With("component", component)
}

// WithEntry returns a logger with entry context
func (l *Logger) WithEntry(pathname string) *Logger {
	return l.With("entry", pathname)
}

// LogFilterSelected logs the winner of a filter auction round.
func LogFilterSelected(ctx context.Context, logger *Logger, name string, bid, round int) {
	logger.Debug(ctx, "filter selected",
		"filter", name,
		"bid", bid,
		"round", round)
}

// LogFormatSelected logs the winner of the format auction.
func LogFormatSelected(ctx context.Context, logger *Logger, name string, bid int) {
	logger.Debug(ctx, "format selected",
		"format", name,
		"bid", bid)
}

// LogIntegrityWarning logs a recoverable problem with an entry.
func LogIntegrityWarning(ctx context.Context, logger *Logger, pathname string, err error) {
	logger.Warn(ctx, "entry integrity warning",
		"entry", pathname,
		"error", err.Error())
}

// LogFatal logs the transition of an archive object into the fatal state.
func LogFatal(ctx context.Context, logger *Logger, operation string, err error) {
	logger.Error(ctx, "archive unusable",
		"operation", operation,
		"error", err.Error())
}
