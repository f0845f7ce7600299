// Package telemetry records pipeline counters with OpenTelemetry metrics.
// When no OTLP endpoint is configured the counters are still collected by a
// manual reader so they can be inspected in-process.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const meterName = "openmrs-interop"

// Config holds the metric exporter configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // host:port of an OTLP gRPC collector; empty disables export
	Insecure       bool
	Interval       time.Duration
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "interop-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Interval == 0 {
		c.Interval = 15 * time.Second
	}
}

// Metrics owns the meter provider and the pipeline instruments.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	manual   *sdkmetric.ManualReader

	events  metric.Int64Counter
	bundles metric.Int64Counter
	grants  metric.Int64Counter
}

// New builds the meter provider. With an OTLP endpoint a periodic reader
// pushes to the collector; otherwise a manual reader keeps the data local.
func New(ctx context.Context, cfg Config) (*Metrics, error) {
	cfg.applyDefaults()

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	m := &Metrics{}
	var reader sdkmetric.Reader
	if cfg.OTLPEndpoint != "" {
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval))
	} else {
		m.manual = sdkmetric.NewManualReader()
		reader = m.manual
	}

	m.provider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	if err := m.initInstruments(m.provider.Meter(meterName)); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initInstruments(meter metric.Meter) error {
	var err error
	m.events, err = meter.Int64Counter("interop.events.handled",
		metric.WithDescription("Domain events handled, by kind, handler and outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return fmt.Errorf("events counter: %w", err)
	}
	m.bundles, err = meter.Int64Counter("interop.bundles.published",
		metric.WithDescription("Bundles handed to the publisher, by kind and outcome"),
		metric.WithUnit("{bundle}"),
	)
	if err != nil {
		return fmt.Errorf("bundles counter: %w", err)
	}
	m.grants, err = meter.Int64Counter("interop.token.grants",
		metric.WithDescription("OAuth2 client-credentials grants, by outcome"),
		metric.WithUnit("{grant}"),
	)
	if err != nil {
		return fmt.Errorf("grants counter: %w", err)
	}
	return nil
}

func outcome(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("outcome", "error")
	}
	return attribute.String("outcome", "ok")
}

// EventHandled counts one handler run for an event kind.
func (m *Metrics) EventHandled(ctx context.Context, kind, handler string, err error) {
	m.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("handler", handler),
		outcome(err),
	))
}

// BundlePublished counts one publish of a bundle built from kind.
func (m *Metrics) BundlePublished(ctx context.Context, kind string, err error) {
	m.bundles.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind), outcome(err)))
}

// TokenGrant counts one token grant attempt.
func (m *Metrics) TokenGrant(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.grants.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", result)))
}

// Collect returns the totals per instrument name for the manual reader.
// It returns nil when metrics are exported to a collector.
func (m *Metrics) Collect(ctx context.Context) (map[string]int64, error) {
	if m.manual == nil {
		return nil, nil
	}
	var rm metricdata.ResourceMetrics
	if err := m.manual.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}
	totals := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[md.Name] += dp.Value
			}
		}
	}
	return totals, nil
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
