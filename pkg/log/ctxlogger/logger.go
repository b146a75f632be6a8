package ctxlogger

import (
	"context"
	"sync/atomic"

	"github.com/smallbiznis/storefront-ledger/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type orderIDKey struct{}
type userIDKey struct{}

var serviceName atomic.Pointer[string]

// SetServiceName configures the service name added to every log entry.
func SetServiceName(name string) {
	serviceName.Store(&name)
}

// ContextWithOrderID tags log entries with the order being processed.
func ContextWithOrderID(ctx context.Context, orderID string) context.Context {
	if orderID == "" {
		return ctx
	}
	return context.WithValue(ctx, orderIDKey{}, orderID)
}

// ContextWithUserID tags log entries with the acting user.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

// FromContext returns the global logger enriched from ctx.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil {
		return base
	}

	fields := make([]zap.Field, 0, 6)
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		fields = append(fields, zap.String("correlation_id", cid))
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if namePtr := serviceName.Load(); namePtr != nil {
		fields = append(fields, zap.String("service", *namePtr))
	}
	if orderID, ok := ctx.Value(orderIDKey{}).(string); ok {
		fields = append(fields, zap.String("order_id", orderID))
	}
	if userID, ok := ctx.Value(userIDKey{}).(string); ok {
		fields = append(fields, zap.String("user_id", userID))
	}

	return base.With(fields...)
}
