package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/stl/redstone-calldata/internal/ports/outbound"
)

// instrumentationName is the name used for OpenTelemetry instrumentation.
const instrumentationName = "github.com/archon-research/stl/redstone-calldata"

// Compile-time check that Metrics implements outbound.MetricsRecorder.
var _ outbound.MetricsRecorder = (*Metrics)(nil)

// Metrics implements the MetricsRecorder interface using OpenTelemetry.
type Metrics struct {
	batchDuration metric.Float64Histogram
	batchesTotal  metric.Int64Counter
	feedsTotal    metric.Int64Counter
	payloadBytes  metric.Int64Histogram
}

// NewMetrics creates a recorder on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithProvider(otel.GetMeterProvider())
}

// NewMetricsWithProvider creates a recorder on a custom meter provider.
func NewMetricsWithProvider(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(instrumentationName)

	duration, err := meter.Float64Histogram(
		"redstone.batch.duration",
		metric.WithDescription("Time taken to build one batch of update payloads"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redstone.batch.duration histogram: %w", err)
	}

	batches, err := meter.Int64Counter(
		"redstone.batches.total",
		metric.WithDescription("Total number of payload batches built"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redstone.batches.total counter: %w", err)
	}

	feeds, err := meter.Int64Counter(
		"redstone.feeds.total",
		metric.WithDescription("Total number of feeds requested across batches"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redstone.feeds.total counter: %w", err)
	}

	payloadBytes, err := meter.Int64Histogram(
		"redstone.payload.size",
		metric.WithDescription("Size of one feed's update call data"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redstone.payload.size histogram: %w", err)
	}

	return &Metrics{
		batchDuration: duration,
		batchesTotal:  batches,
		feedsTotal:    feeds,
		payloadBytes:  payloadBytes,
	}, nil
}

// RecordBatch records one batch build.
func (m *Metrics) RecordBatch(ctx context.Context, feedCount int, duration time.Duration, status string) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.batchDuration.Record(ctx, duration.Seconds(), attrs)
	m.batchesTotal.Add(ctx, 1, attrs)
	m.feedsTotal.Add(ctx, int64(feedCount), attrs)
}

// RecordPayloadSize records the call data size for one feed.
func (m *Metrics) RecordPayloadSize(ctx context.Context, feed string, size int) {
	m.payloadBytes.Record(ctx, int64(size), metric.WithAttributes(attribute.String("feed", feed)))
}
