package util

import (
	"context"
)

type contextKey string

const (
	verboseKey    contextKey = "verbose"
	logHandlerKey contextKey = "logHandler"
)

// WithVerbose adds the verbose flag to the context
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, verboseKey, verbose)
}

// IsVerbose returns true if verbose mode is enabled in the context
func IsVerbose(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, ok := ctx.Value(verboseKey).(bool)
	return ok && v
}

// WithLogHandler attaches a LogHandler to the context.
func WithLogHandler(ctx context.Context, h LogHandler) context.Context {
	return context.WithValue(ctx, logHandlerKey, h)
}

// LogHandlerFrom returns the LogHandler attached to ctx, or a nil handler that drops everything.
func LogHandlerFrom(ctx context.Context) LogHandler {
	if ctx == nil {
		return nil
	}
	h, _ := ctx.Value(logHandlerKey).(LogHandler)
	return h
}
