// Package tracing installs the OpenTelemetry tracer provider that exports
// agent invocation and work item spans to Jaeger.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/traqcheck/bgv-agent/internal/config"
)

// ShutdownFunc flushes pending spans and stops the exporter.
type ShutdownFunc func(ctx context.Context) error

// DefaultServiceName is used when the configuration leaves it empty.
const DefaultServiceName = "bgv-agent"

// Setup installs a global tracer provider exporting to the configured Jaeger
// collector. When tracing is disabled the global no-op provider is kept.
func Setup(cfg config.TracingConfig) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	tp := NewProvider(exporter, cfg.ServiceName)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// NewProvider builds a batching tracer provider around exporter.
func NewProvider(exporter sdktrace.SpanExporter, serviceName string) *sdktrace.TracerProvider {
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
}
