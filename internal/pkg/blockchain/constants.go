package blockchain

import "github.com/ethereum/go-ethereum/common"

const (
	Multicall3Address = "0xcA11bde05977b3631167028862bE2a173976CA11"

	// MaxUint48 is the largest timestamp updatePrice accepts.
	MaxUint48 = 1<<48 - 1

	// UpdatePriceCallLength is the byte length of an encoded updatePrice call:
	// a 4-byte selector and one 32-byte word.
	UpdatePriceCallLength = 4 + 32
)

var (
	Multicall3 = common.HexToAddress(Multicall3Address)
)
