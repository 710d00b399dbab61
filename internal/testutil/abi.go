package testutil

import (
	"testing"

	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
	"github.com/archon-research/stl/redstone-calldata/internal/pkg/blockchain/abis"
)

// PackFeedID ABI-encodes a feed id as feedId() return data (bytes32).
func PackFeedID(t *testing.T, id entity.FeedID) []byte {
	t.Helper()
	oracleABI, err := abis.GetRedstoneCoreOracleABI()
	if err != nil {
		t.Fatalf("loading oracle ABI: %v", err)
	}
	data, err := oracleABI.Methods["feedId"].Outputs.Pack([32]byte(id))
	if err != nil {
		t.Fatalf("packing feedId: %v", err)
	}
	return data
}
