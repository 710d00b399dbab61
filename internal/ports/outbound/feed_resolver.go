package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
)

// FeedIDResolver reads the feed ids configured on deployed oracle contracts.
type FeedIDResolver interface {
	// ResolveFeedIDs returns one feed id per oracle, in the same order.
	ResolveFeedIDs(ctx context.Context, oracles []common.Address) ([]entity.FeedID, error)
}
