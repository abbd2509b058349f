// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"

	"github.com/taskflowio/ltq/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Tracer is the shared tracer every package reaches for to start a span. It
// is safe to call before SetupTracing runs; until a real TracerProvider is
// installed, otel's default no-op provider makes every span a cheap no-op.
func Tracer() oteltrace.Tracer {
	return otel.Tracer("ltq")
}

// SetupTracing configures OTEL tracing if an OTLP endpoint is set. Returns a
// shutdown func, or (nil, nil) when tracing is disabled.
func SetupTracing(cfg config.Config) (func(context.Context) error, error) {
	if cfg.OTLPEndpoint == "" {
		slog.Info("OTLP endpoint not set; tracing disabled")
		return nil, nil
	}

	exporter, err := otlptracegrpc.New(context.Background(), otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceNameKey.String("ltq"),
	))
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(1.0))),
	)
	otel.SetTracerProvider(tp)
	slog.Info("tracing configured", slog.String("endpoint", cfg.OTLPEndpoint))
	return tp.Shutdown, nil
}
