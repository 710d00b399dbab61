// Package stdout writes update requests as an indented JSON array.
package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
	"github.com/archon-research/stl/redstone-calldata/internal/ports/outbound"
)

// Compile-time check that Sink implements outbound.UpdateRequestSink.
var _ outbound.UpdateRequestSink = (*Sink)(nil)

// Sink writes each batch to an io.Writer as a two-space indented JSON array followed by
// a newline.
type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSink creates a sink writing to w.
func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

// Write renders requests. An empty batch is written as [].
func (s *Sink) Write(_ context.Context, requests []entity.UpdateRequest) error {
	if requests == nil {
		requests = []entity.UpdateRequest{}
	}
	out, err := json.MarshalIndent(requests, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling update requests: %w", err)
	}
	out = append(out, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(out); err != nil {
		return fmt.Errorf("writing update requests: %w", err)
	}
	return nil
}

// Close is a no-op; the writer is owned by the caller.
func (s *Sink) Close() error {
	return nil
}
