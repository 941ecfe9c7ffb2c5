package adapter

import (
	"go.opentelemetry.io/otel"

	"github.com/srediag/plugin-signal/pkg/signal"
)

const instrumentationName = "github.com/srediag/plugin-signal"

// OTelOptions returns factory options that trace and measure shared memory access
// through the globally registered OpenTelemetry providers.
func OTelOptions() []signal.Option {
	return []signal.Option{
		signal.WithTracer(otel.Tracer(instrumentationName)),
		signal.WithMeter(otel.Meter(instrumentationName)),
	}
}
