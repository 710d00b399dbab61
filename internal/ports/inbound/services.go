// Package inbound contains the primary/inbound ports.
// These interfaces define the use cases that the application exposes.
package inbound

import (
	"context"

	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
)

// PayloadBuilder builds RedStone Core price update transactions.
// Inbound adapters (the CLI) call these methods.
type PayloadBuilder interface {
	// BuildPayloads returns one update request per feed, in input order.
	// Any failure aborts the whole batch.
	BuildPayloads(ctx context.Context, feedIDs []entity.FeedID) ([]entity.UpdateRequest, error)

	// BuildPayloadsIsolated shares the provider round-trip across the batch but reports
	// per-feed failures instead of aborting. A provider failure is still returned as err.
	BuildPayloadsIsolated(ctx context.Context, feedIDs []entity.FeedID) ([]entity.FeedResult, error)
}
