package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// ContextKey is the type of the request context keys set by the API.
type ContextKey string

const (
	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"

	// CallerKey is the key for the authenticated service caller
	CallerKey ContextKey = "caller"

	// TraceIDLength is the number of random bytes in a generated trace ID
	TraceIDLength = 16
)

// SetTraceID stores a trace ID in the context. The active OpenTelemetry
// trace id is reused when there is one so logs and spans correlate.
func SetTraceID(ctx context.Context) context.Context {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return context.WithValue(ctx, TraceIDKey, sc.TraceID().String())
	}
	return context.WithValue(ctx, TraceIDKey, generateTraceID())
}

// GetTraceID returns the trace ID, or "" when none is set.
func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDKey).(string)
	return traceID
}

// SetCaller records the authenticated caller.
func SetCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}

// GetCaller returns the authenticated caller, or "" for unauthenticated
// requests.
func GetCaller(ctx context.Context) string {
	caller, _ := ctx.Value(CallerKey).(string)
	return caller
}

func generateTraceID() string {
	b := make([]byte, TraceIDLength)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b)
}
