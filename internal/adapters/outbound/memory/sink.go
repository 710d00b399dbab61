// Package memory provides an in-memory UpdateRequestSink for tests.
//
// Every written batch is stored and can be inspected with Batches and Requests.
// All operations are thread-safe.
package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
	"github.com/archon-research/stl/redstone-calldata/internal/ports/outbound"
)

// Compile-time check that Sink implements outbound.UpdateRequestSink
var _ outbound.UpdateRequestSink = (*Sink)(nil)

// Sink stores written batches in memory.
type Sink struct {
	mu      sync.RWMutex
	batches [][]entity.UpdateRequest
	closed  bool

	// Callback for test assertions
	onWrite func([]entity.UpdateRequest)
}

// NewSink creates a new in-memory sink.
func NewSink() *Sink {
	return &Sink{}
}

// Write stores a copy of the batch.
func (s *Sink) Write(_ context.Context, requests []entity.UpdateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("sink is closed")
	}

	batch := slices.Clone(requests)
	s.batches = append(s.batches, batch)

	if s.onWrite != nil {
		s.onWrite(batch)
	}
	return nil
}

// Close marks the sink as closed.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Batches returns all written batches in write order.
func (s *Sink) Batches() [][]entity.UpdateRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.batches)
}

// Requests returns every written request, flattened across batches.
func (s *Sink) Requests() []entity.UpdateRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.UpdateRequest
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

// OnWrite sets a callback to be called when a batch is written.
func (s *Sink) OnWrite(fn func([]entity.UpdateRequest)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWrite = fn
}
