package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

// Header names shared by HTTP requests and Kafka message headers.
const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderTraceID       = "trace_id"
	HeaderSpanID        = "span_id"
)

type correlationKey struct{}

// Inbound is the correlation state an upstream producer attached to a request
// or message. Every field is optional.
type Inbound struct {
	CorrelationID string
	TraceID       string
	SpanID        string
}

// Lookup builds Inbound from a header getter; HTTP and Kafka use different
// header containers.
func Lookup(get func(key string) string) Inbound {
	return Inbound{
		CorrelationID: strings.TrimSpace(get(HeaderCorrelationID)),
		TraceID:       strings.TrimSpace(get(HeaderTraceID)),
		SpanID:        strings.TrimSpace(get(HeaderSpanID)),
	}
}

func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// Attach seeds ctx with the producer's span and correlation id. A ULID is
// minted when the producer sent none.
func Attach(ctx context.Context, in Inbound) (context.Context, string) {
	ctx = withRemoteSpan(ctx, in.TraceID, in.SpanID)

	cid := in.CorrelationID
	if cid == "" {
		cid = ExtractCorrelationID(ctx)
	}
	if cid == "" {
		cid = ulid.Make().String()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}

func withRemoteSpan(ctx context.Context, traceIDHex, spanIDHex string) context.Context {
	if traceIDHex == "" || spanIDHex == "" {
		return ctx
	}
	traceID, err := trace.TraceIDFromHex(traceIDHex)
	if err != nil {
		return ctx
	}
	spanID, err := trace.SpanIDFromHex(spanIDHex)
	if err != nil {
		return ctx
	}
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithSpanContext(ctx, parent)
}
