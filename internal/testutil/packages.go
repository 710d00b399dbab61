package testutil

import (
	"crypto/ecdsa"
	"encoding/base64"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
	"github.com/archon-research/stl/redstone-calldata/internal/pkg/redstone"
)

// GenerateSigners returns n fresh secp256k1 keys.
func GenerateSigners(t *testing.T, n int) []*ecdsa.PrivateKey {
	t.Helper()
	keys := make([]*ecdsa.PrivateKey, n)
	for i := range keys {
		key, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("generating key: %v", err)
		}
		keys[i] = key
	}
	return keys
}

// SignedPackage builds a single-feed data package signed by key. The signature covers
// keccak256 of the package encoding without its signature, as RedStone nodes sign it.
func SignedPackage(t *testing.T, key *ecdsa.PrivateKey, feed string, timestampMs uint64, value *big.Int) entity.SignedDataPackage {
	t.Helper()
	pkg := entity.SignedDataPackage{
		DataPackageID:         feed,
		SignerAddress:         crypto.PubkeyToAddress(key.PublicKey),
		TimestampMilliseconds: timestampMs,
		DataPoints: []entity.DataPoint{
			{DataFeedID: entity.MustFeedIDFromString(feed), Value: math.U256Bytes(new(big.Int).Set(value))},
		},
		Signature: make([]byte, entity.SignatureLength),
	}

	encoded, err := redstone.EncodePackage(&pkg)
	if err != nil {
		t.Fatalf("encoding package: %v", err)
	}
	unsigned := encoded[:len(encoded)-entity.SignatureLength]

	sig, err := crypto.Sign(crypto.Keccak256(unsigned), key)
	if err != nil {
		t.Fatalf("signing package: %v", err)
	}
	sig[64] += 27
	pkg.Signature = sig
	return pkg
}

// SignerAddress returns the address of key.
func SignerAddress(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// Base64 encodes b with standard padding, as the RedStone gateway does.
func Base64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
