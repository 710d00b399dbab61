package testutil

import (
	"context"
	"sync"
	"time"
)

// BatchRecord is one RecordBatch call captured by MockMetricsRecorder.
type BatchRecord struct {
	FeedCount int
	Duration  time.Duration
	Status    string
}

// MockMetricsRecorder implements outbound.MetricsRecorder for testing.
type MockMetricsRecorder struct {
	mu           sync.Mutex
	Batches      []BatchRecord
	PayloadSizes map[string]int
}

func (m *MockMetricsRecorder) RecordBatch(_ context.Context, feedCount int, duration time.Duration, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Batches = append(m.Batches, BatchRecord{FeedCount: feedCount, Duration: duration, Status: status})
}

func (m *MockMetricsRecorder) RecordPayloadSize(_ context.Context, feed string, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PayloadSizes == nil {
		m.PayloadSizes = make(map[string]int)
	}
	m.PayloadSizes[feed] = size
}
