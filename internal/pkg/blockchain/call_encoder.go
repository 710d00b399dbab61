package blockchain

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/archon-research/stl/redstone-calldata/internal/pkg/blockchain/abis"
	"github.com/archon-research/stl/redstone-calldata/internal/ports/outbound"
)

// Compile-time check that CallEncoder implements outbound.CallEncoder.
var _ outbound.CallEncoder = (*CallEncoder)(nil)

// CallEncoder encodes calls against the RedStone Core oracle.
type CallEncoder struct {
	oracleABI *abi.ABI
}

// NewCallEncoder loads the RedStone Core oracle ABI.
func NewCallEncoder() (*CallEncoder, error) {
	oracleABI, err := abis.GetRedstoneCoreOracleABI()
	if err != nil {
		return nil, fmt.Errorf("loading RedStone Core oracle ABI: %w", err)
	}
	return &CallEncoder{oracleABI: oracleABI}, nil
}

// EncodeUpdatePrice packs updatePrice(uint48 timestamp).
func (e *CallEncoder) EncodeUpdatePrice(timestampSeconds uint64) ([]byte, error) {
	if timestampSeconds > MaxUint48 {
		return nil, fmt.Errorf("timestamp %d does not fit in uint48", timestampSeconds)
	}
	data, err := e.oracleABI.Pack("updatePrice", new(big.Int).SetUint64(timestampSeconds))
	if err != nil {
		return nil, fmt.Errorf("packing updatePrice: %w", err)
	}
	return data, nil
}

// DecodeUpdatePrice reads the timestamp from call data starting with an updatePrice
// call. Bytes after the call (e.g. an appended payload) are ignored.
func (e *CallEncoder) DecodeUpdatePrice(data []byte) (uint64, error) {
	if len(data) < UpdatePriceCallLength {
		return 0, fmt.Errorf("call data too short: %d bytes", len(data))
	}
	method, err := e.oracleABI.MethodById(data[:4])
	if err != nil {
		return 0, fmt.Errorf("looking up selector %x: %w", data[:4], err)
	}
	if method.Name != "updatePrice" {
		return 0, fmt.Errorf("unexpected method %s", method.Name)
	}
	args, err := method.Inputs.Unpack(data[4:UpdatePriceCallLength])
	if err != nil {
		return 0, fmt.Errorf("unpacking updatePrice: %w", err)
	}
	ts, ok := args[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected timestamp type %T", args[0])
	}
	return ts.Uint64(), nil
}

// Concat packs byte strings tightly, without length prefixes or padding.
func Concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}
