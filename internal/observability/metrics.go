package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig holds configuration for the meter provider.
type MetricsConfig struct {
	Service ServiceInfo

	// OTLPEndpoint enables periodic OTLP gRPC export when non-empty.
	OTLPEndpoint string

	// Reader, if set, is registered alongside any exporter.
	Reader sdkmetric.Reader
}

// MetricsProvider wraps the SDK meter provider so callers only see Shutdown.
type MetricsProvider struct {
	provider *sdkmetric.MeterProvider
}

// InitMetrics installs a global meter provider. The returned provider must be
// shut down on exit to flush pending data points.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*MetricsProvider, error) {
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(newResource(cfg.Service)),
	}

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create OTLP metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	}
	if cfg.Reader != nil {
		opts = append(opts, sdkmetric.WithReader(cfg.Reader))
	}

	provider := sdkmetric.NewMeterProvider(opts...)

	otel.SetMeterProvider(provider)

	return &MetricsProvider{provider: provider}, nil
}

// Shutdown flushes any remaining metrics and shuts down the provider.
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	if mp.provider == nil {
		return nil
	}
	return mp.provider.Shutdown(ctx)
}

// Meter returns a meter for the given instrumentation name.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// HTTPInstruments are the per-request instruments every server records.
type HTTPInstruments struct {
	Requests metric.Int64Counter
	Duration metric.Float64Histogram
}

// NewHTTPInstruments creates the request counter and duration histogram on m.
func NewHTTPInstruments(m metric.Meter) (*HTTPInstruments, error) {
	requests, err := m.Int64Counter("http.server.request.count",
		metric.WithDescription("Requests answered by the server."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create request counter: %w", err)
	}

	duration, err := m.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Time spent answering a request."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return &HTTPInstruments{Requests: requests, Duration: duration}, nil
}
