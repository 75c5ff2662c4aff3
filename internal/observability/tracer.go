package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerConfig holds configuration for the tracer provider.
type TracerConfig struct {
	Service ServiceInfo

	// OTLPEndpoint enables the OTLP gRPC exporter when non-empty.
	OTLPEndpoint string

	// Processor, if set, receives every span in addition to any exporter.
	Processor sdktrace.SpanProcessor
}

// TracerProvider wraps the SDK tracer provider so callers only see Shutdown.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// InitTracer installs a global tracer provider and the W3C propagators.
// The returned provider must be shut down on exit to flush spans.
func InitTracer(ctx context.Context, cfg TracerConfig) (*TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(newResource(cfg.Service)),
	}

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create OTLP trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	if cfg.Processor != nil {
		opts = append(opts, sdktrace.WithSpanProcessor(cfg.Processor))
	}

	provider := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: provider}, nil
}

// Shutdown flushes any remaining spans and shuts down the provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

// Tracer returns a tracer for the given instrumentation name.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// TraceIDFromContext returns the active trace ID, or "" when there is none.
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.HasTraceID() {
		return ""
	}
	return spanCtx.TraceID().String()
}
