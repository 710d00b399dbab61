package blockchain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
	"github.com/archon-research/stl/redstone-calldata/internal/pkg/blockchain/abis"
	"github.com/archon-research/stl/redstone-calldata/internal/ports/outbound"
)

// Compile-time check that FeedIDResolver implements outbound.FeedIDResolver.
var _ outbound.FeedIDResolver = (*FeedIDResolver)(nil)

// FeedIDResolver reads feedId() from RedStone Core oracle contracts via a single multicall.
type FeedIDResolver struct {
	multicaller outbound.Multicaller
	oracleABI   *abi.ABI
}

// NewFeedIDResolver creates a resolver backed by multicaller.
func NewFeedIDResolver(multicaller outbound.Multicaller) (*FeedIDResolver, error) {
	if multicaller == nil {
		return nil, fmt.Errorf("multicaller cannot be nil")
	}
	oracleABI, err := abis.GetRedstoneCoreOracleABI()
	if err != nil {
		return nil, fmt.Errorf("loading RedStone Core oracle ABI: %w", err)
	}
	return &FeedIDResolver{multicaller: multicaller, oracleABI: oracleABI}, nil
}

// ResolveFeedIDs returns the feed id of each oracle at the latest block, in input order.
func (r *FeedIDResolver) ResolveFeedIDs(ctx context.Context, oracles []common.Address) ([]entity.FeedID, error) {
	if len(oracles) == 0 {
		return nil, nil
	}

	feedIDData, err := r.oracleABI.Pack("feedId")
	if err != nil {
		return nil, fmt.Errorf("packing feedId: %w", err)
	}

	calls := make([]outbound.Call, len(oracles))
	for i, oracle := range oracles {
		calls[i] = outbound.Call{Target: oracle, AllowFailure: false, CallData: feedIDData}
	}

	results, err := r.multicaller.Execute(ctx, calls, nil)
	if err != nil {
		return nil, fmt.Errorf("executing feedId multicall: %w", err)
	}
	if len(results) != len(oracles) {
		return nil, fmt.Errorf("expected %d multicall results, got %d", len(oracles), len(results))
	}

	ids := make([]entity.FeedID, len(oracles))
	for i, res := range results {
		if !res.Success {
			return nil, fmt.Errorf("feedId call failed for oracle %s", oracles[i].Hex())
		}
		unpacked, err := r.oracleABI.Unpack("feedId", res.ReturnData)
		if err != nil {
			return nil, fmt.Errorf("unpacking feedId for oracle %s: %w", oracles[i].Hex(), err)
		}
		id, ok := unpacked[0].([32]byte)
		if !ok {
			return nil, fmt.Errorf("unexpected feedId type %T for oracle %s", unpacked[0], oracles[i].Hex())
		}
		ids[i] = entity.FeedID(id)
	}

	return ids, nil
}
