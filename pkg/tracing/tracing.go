// Package tracing wires OpenTelemetry into the engine. Hosts that
// already run a TracerProvider just register it globally; the stdout
// provider covers development and tests.
package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a tracer from the globally registered provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// NewStdoutProvider builds a TracerProvider that writes spans to
// stdout (or the writer given via stdouttrace options) and registers
// it globally. The caller owns Shutdown.
func NewStdoutProvider(opts ...stdouttrace.Option) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "stator"),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}
