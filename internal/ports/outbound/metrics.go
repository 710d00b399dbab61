package outbound

import (
	"context"
	"time"
)

// MetricsRecorder provides an interface for recording application metrics.
// This allows the application layer to record metrics without depending on
// specific telemetry implementations.
type MetricsRecorder interface {
	// RecordBatch records one BuildPayloads call. status is "success" or "error".
	RecordBatch(ctx context.Context, feedCount int, duration time.Duration, status string)

	// RecordPayloadSize records the size in bytes of one feed's call data.
	RecordPayloadSize(ctx context.Context, feed string, size int)
}
