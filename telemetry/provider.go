// Package telemetry wires the pipeline's distributed tracing: a tracer
// provider built on OpenTelemetry, and the span/metric helpers every
// worker calls around a stage transition. Safe defaults apply when no
// collector endpoint is configured — spans simply aren't exported.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config controls how the tracer provider exports spans.
type Config struct {
	// ServiceName identifies this process in trace backends.
	ServiceName string
	// Endpoint is an OTLP/gRPC collector address, e.g. "localhost:4317".
	// Empty means "no collector" — spans export to stdout instead, which
	// keeps local and CI runs observable without standing up a collector.
	Endpoint string
	// Insecure disables TLS on the OTLP connection (development only).
	Insecure bool
}

// Provider owns the tracer provider's lifecycle.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// NewProvider builds and installs a global tracer provider per cfg.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("telemetry: service name is required")
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	if cfg.Endpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(context.Background(), opts...)
		if err != nil {
			return nil, fmt.Errorf("telemetry: create otlp exporter: %w", err)
		}
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("telemetry: create stdout exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Provider{
		tp:     tp,
		tracer: tp.Tracer(cfg.ServiceName),
	}, nil
}

// Start begins a span named name and returns the child context plus an
// end function, mirroring the teacher's "start, defer end" call shape.
func (p *Provider) Start(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, func() { span.End() }
}

// Shutdown flushes and stops the exporter. It is safe to call more than
// once; subsequent calls after the first are no-ops.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.tp.Shutdown(shutdownCtx)
}
