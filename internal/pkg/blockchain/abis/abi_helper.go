// Package abis holds the contract ABIs used to encode calls and decode results.
package abis

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ParseABI parses a JSON ABI definition.
func ParseABI(abiJSON string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI JSON: %w", err)
	}
	if len(parsed.Methods) == 0 {
		return nil, fmt.Errorf("ABI defines no methods")
	}
	return &parsed, nil
}
