package outbound

import (
	"context"

	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
)

// UpdateRequestSink delivers a built batch of update requests to whoever submits them.
type UpdateRequestSink interface {
	// Write delivers the whole batch. Order must be preserved.
	Write(ctx context.Context, requests []entity.UpdateRequest) error

	// Close releases resources held by the sink.
	Close() error
}
