// Package observability carries the request-scoped logger and correlation ids
// through context.Context.
package observability

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

type requestIDKey struct{}

// ContextWithLogger returns ctx carrying lg. A nil logger leaves ctx unchanged.
func ContextWithLogger(ctx context.Context, lg *slog.Logger) context.Context {
	if ctx == nil || lg == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, lg)
}

// LoggerFromContext returns the logger carried by ctx, or slog.Default().
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if lg, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && lg != nil {
		return lg
	}
	return slog.Default()
}

// WithLogAttrs derives a logger with extra attributes and stores it in ctx,
// so deeper layers log the exercise and learner they work on.
func WithLogAttrs(ctx context.Context, attrs ...any) (context.Context, *slog.Logger) {
	lg := LoggerFromContext(ctx).With(attrs...)
	return ContextWithLogger(ctx, lg), lg
}

// ContextWithRequestID stores the originating request id. Queue handlers
// restore it from event headers so their logs correlate with the HTTP call.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id carried by ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	rid, _ := ctx.Value(requestIDKey{}).(string)
	return rid
}
