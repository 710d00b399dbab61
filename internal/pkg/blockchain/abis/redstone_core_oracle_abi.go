package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetRedstoneCoreOracleABI returns the ABI of the pull-based RedStone Core oracle adapter.
// updatePrice expects a RedStone payload appended to its call data; the contract verifies
// the signatures and caches the price for the given timestamp.
func GetRedstoneCoreOracleABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [{"name": "timestamp", "type": "uint48"}],
			"name": "updatePrice",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "feedId",
			"outputs": [{"name": "", "type": "bytes32"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "cache",
			"outputs": [
				{"name": "price", "type": "uint208"},
				{"name": "priceTimestamp", "type": "uint48"}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "maxStaleness",
			"outputs": [{"name": "", "type": "uint32"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}
