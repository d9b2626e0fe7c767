package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestInit_DiscardExporter(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	shutdown, err := Init(context.Background(), "graphbench-test", "dev", "", 0)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	_, span := Tracer("graphbench/test").Start(context.Background(), "smoke")
	span.End()

	counter, err := Meter("graphbench/test").Int64Counter("graphbench.test.count")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	require.NoError(t, shutdown(context.Background()))
}

func TestInit_InstallsMeterProvider(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	shutdown, err := Init(context.Background(), "graphbench-test", "dev", "", 1)
	require.NoError(t, err)
	defer func() { require.NoError(t, shutdown(context.Background())) }()

	assert.IsType(t, &sdkmetric.MeterProvider{}, otel.GetMeterProvider())
}
