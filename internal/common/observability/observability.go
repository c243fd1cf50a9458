package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

const (
	OperationTranscriptFetch = "transcript.fetch"
	OperationUpgrade         = "subscription.upgrade"
)

// Observability records client-level operation metrics through an otel
// meter exported to prometheus.
type Observability struct {
	meterProvider    *metric.MeterProvider
	meter            otelmetric.Meter
	transcriptCount  otelmetric.Int64Counter
	upgradeCount     otelmetric.Int64Counter
	operationLatency otelmetric.Float64Histogram
}

// New registers the exporter with reg. A nil reg uses the prometheus
// default registerer.
func New(serviceName string, reg prometheus.Registerer) (*Observability, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	transcriptCount, err := meter.Int64Counter(
		"transcript.fetches",
		otelmetric.WithDescription("Number of transcript fetches by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("create transcript counter: %w", err)
	}

	upgradeCount, err := meter.Int64Counter(
		"upgrade.attempts",
		otelmetric.WithDescription("Number of settled subscription upgrade attempts by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("create upgrade counter: %w", err)
	}

	operationLatency, err := meter.Float64Histogram(
		"operation.duration",
		otelmetric.WithDescription("Client operation duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return &Observability{
		meterProvider:    provider,
		meter:            meter,
		transcriptCount:  transcriptCount,
		upgradeCount:     upgradeCount,
		operationLatency: operationLatency,
	}, nil
}

// NewNoop returns an Observability whose recorders do nothing.
func NewNoop() *Observability {
	return &Observability{}
}

func (o *Observability) RecordTranscriptFetch(ctx context.Context, result string, duration time.Duration) {
	if o.transcriptCount != nil {
		o.transcriptCount.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("result", result),
		))
	}
	o.recordDuration(ctx, OperationTranscriptFetch, result, duration)
}

func (o *Observability) RecordUpgradeAttempt(ctx context.Context, result string, duration time.Duration) {
	if o.upgradeCount != nil {
		o.upgradeCount.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("result", result),
		))
	}
	o.recordDuration(ctx, OperationUpgrade, result, duration)
}

func (o *Observability) recordDuration(ctx context.Context, operation, result string, duration time.Duration) {
	if o.operationLatency != nil {
		o.operationLatency.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("result", result),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.meterProvider.Shutdown(ctx)
	}
}
