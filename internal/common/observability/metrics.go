package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"

	"notification-pipeline/internal/common/logger"
)

// Observability records per-record pipeline instruments through an OpenTelemetry
// meter exported on the default Prometheus registry. A nil *Observability is a no-op.
type Observability struct {
	meterProvider   *metric.MeterProvider
	meter           otelmetric.Meter
	recordCounter   otelmetric.Int64Counter
	recordDuration  otelmetric.Float64Histogram
	dispatchLatency otelmetric.Float64Histogram
}

func New(serviceName string, log logger.Logger) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to create prometheus exporter", map[string]interface{}{"error": err})
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return newWithProvider(provider, serviceName)
}

func newWithProvider(provider *metric.MeterProvider, serviceName string) *Observability {
	meter := provider.Meter(serviceName)

	recordCounter, _ := meter.Int64Counter(
		"records.processed",
		otelmetric.WithDescription("Number of log records processed"),
	)

	recordDuration, _ := meter.Float64Histogram(
		"records.duration",
		otelmetric.WithDescription("Record processing duration"),
		otelmetric.WithUnit("ms"),
	)

	dispatchLatency, _ := meter.Float64Histogram(
		"dispatch.duration",
		otelmetric.WithDescription("Fan-out duration across delivery channels"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:   provider,
		meter:           meter,
		recordCounter:   recordCounter,
		recordDuration:  recordDuration,
		dispatchLatency: dispatchLatency,
	}
}

func (o *Observability) RecordProcessed(ctx context.Context, outcome string) {
	if o == nil || o.recordCounter == nil {
		return
	}
	o.recordCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func (o *Observability) RecordDuration(ctx context.Context, duration time.Duration, outcome string) {
	if o == nil || o.recordDuration == nil {
		return
	}
	o.recordDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func (o *Observability) RecordDispatch(ctx context.Context, duration time.Duration, status string) {
	if o == nil || o.dispatchLatency == nil {
		return
	}
	o.dispatchLatency.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("status", status),
	))
}

func (o *Observability) Shutdown() {
	if o == nil || o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = o.meterProvider.Shutdown(ctx)
}
