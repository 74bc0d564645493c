// Package requestctx carries request-scoped values shared by middleware, handlers and services
// without making them import each other.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type (
	loggerKey      struct{}
	traceKey       struct{}
	errorDetailKey struct{}
	clientIPKey    struct{}
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

func ensure(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ensure(ctx), loggerKey{}, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if logger, ok := ensure(ctx).Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger is the logger returned when none is attached.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores the trace metadata on the context for downstream usage.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(ensure(ctx), traceKey{}, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	info, ok := ensure(ctx).Value(traceKey{}).(TraceInfo)
	return info, ok
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithErrorDetail records whether server error details may be returned to the client.
func WithErrorDetail(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ensure(ctx), errorDetailKey{}, enabled)
}

// ErrorDetail reports whether server error details may be returned to the client.
func ErrorDetail(ctx context.Context) bool {
	enabled, _ := ensure(ctx).Value(errorDetailKey{}).(bool)
	return enabled
}

// WithClientIP records the caller address resolved by the edge middleware.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ensure(ctx)
	}
	return context.WithValue(ensure(ctx), clientIPKey{}, ip)
}

// ClientIP returns the caller address, or "" when no middleware resolved one.
func ClientIP(ctx context.Context) string {
	ip, _ := ensure(ctx).Value(clientIPKey{}).(string)
	return ip
}
