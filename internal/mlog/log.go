// Package mlog defines the logging interface used across the service,
// backed by a zap sugared logger. Modeled on the teacher's common/mlog.
package mlog

import (
	"context"
)

// Logger is the common interface for log implementations.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)

	Error(args ...any)
	Errorf(format string, args ...any)

	Warn(args ...any)
	Warnf(format string, args ...any)

	Debug(args ...any)
	Debugf(format string, args ...any)

	Fatal(args ...any)
	Fatalf(format string, args ...any)

	WithFields(fields ...any) Logger

	Sync() error
}

type ctxKey struct{}

// ContextWithLogger returns a new context carrying the given logger.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// NewLoggerFromContext retrieves the request-scoped logger from ctx, or
// falls back to a no-op logger when none was attached.
func NewLoggerFromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok && l != nil {
		return l
	}

	return noop{}
}

type noop struct{}

func (noop) Info(args ...any)             {}
func (noop) Infof(format string, a ...any) {}
func (noop) Error(args ...any)             {}
func (noop) Errorf(format string, a ...any) {}
func (noop) Warn(args ...any)              {}
func (noop) Warnf(format string, a ...any)  {}
func (noop) Debug(args ...any)             {}
func (noop) Debugf(format string, a ...any) {}
func (noop) Fatal(args ...any)             {}
func (noop) Fatalf(format string, a ...any) {}
func (n noop) WithFields(fields ...any) Logger { return n }
func (noop) Sync() error                    { return nil }
