package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Multicaller batches read-only contract calls into one eth_call.
type Multicaller interface {
	// Execute runs calls at blockNumber (nil for latest). Results are in call order.
	Execute(ctx context.Context, calls []Call, blockNumber *big.Int) ([]Result, error)

	// Address returns the multicall contract address.
	Address() common.Address
}

// Call is one contract call inside a multicall.
type Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Result is the outcome of one Call.
type Result struct {
	Success    bool
	ReturnData []byte
}
