package csat

import (
	"io"
	"log/slog"
	"slices"
)

// Logger receives structured key/value logs. *slog.Logger satisfies it, and
// so does any adapter over another logging library.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

func defaultLogger() Logger {
	return slog.Default()
}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withFields returns a Logger adding fields to every entry.
func withFields(l Logger, fields ...any) Logger {
	if sl, ok := l.(*slog.Logger); ok {
		return sl.With(fields...)
	}
	return fieldLogger{l: l, fields: fields}
}

type fieldLogger struct {
	l      Logger
	fields []any
}

func (f fieldLogger) Debug(msg string, args ...any) { f.l.Debug(msg, f.merge(args)...) }
func (f fieldLogger) Info(msg string, args ...any)  { f.l.Info(msg, f.merge(args)...) }
func (f fieldLogger) Warn(msg string, args ...any)  { f.l.Warn(msg, f.merge(args)...) }
func (f fieldLogger) Error(msg string, args ...any) { f.l.Error(msg, f.merge(args)...) }

func (f fieldLogger) merge(args []any) []any {
	return append(slices.Clip(f.fields), args...)
}
