package tracing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/traqcheck/bgv-agent/internal/config"
	"github.com/traqcheck/bgv-agent/internal/platform/tracing"
)

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := tracing.Setup(config.TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewProvider_ExportsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := tracing.NewProvider(exporter, "")

	_, span := tp.Tracer("test").Start(context.Background(), "escalator.dispatch")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "escalator.dispatch", spans[0].Name)

	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	assert.Equal(t, tracing.DefaultServiceName, service)
	require.NoError(t, tp.Shutdown(context.Background()))
}
