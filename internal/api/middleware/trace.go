package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/traqcheck/bgv-agent/internal/api/shared"
	"github.com/traqcheck/bgv-agent/internal/platform/logger"
)

const tracerName = "github.com/traqcheck/bgv-agent/internal/api"

// TraceMiddleware starts a server span, stores the trace ID and a request
// logger in the context. Apply it early so every later handler sees both.
func TraceMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			))
		defer span.End()

		ctx = shared.SetTraceID(ctx)
		traceID := shared.GetTraceID(ctx)

		log := logger.FromContext(ctx).With("trace_id", traceID)
		ctx = logger.WithContext(ctx, log)

		log.Debug("request started",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr)

		next.ServeHTTP(w, r.WithContext(ctx))

		if rctx := chi.RouteContext(ctx); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				span.SetName(r.Method + " " + pattern)
				span.SetAttributes(attribute.String("http.route", pattern))
			}
		}
	})
}
