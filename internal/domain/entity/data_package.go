package entity

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// SignatureLength is the byte width of a data package signature (r || s || v).
const SignatureLength = 65

// DataPoint is a single feed value carried inside a data package.
// Value is the big-endian, fixed-width encoding of the value.
type DataPoint struct {
	DataFeedID FeedID
	Value      []byte
}

// SignedDataPackage is a set of data points signed by one RedStone node.
type SignedDataPackage struct {
	// DataPackageID is the text identifier used to request the package (usually the feed id).
	DataPackageID string

	// SignerAddress is the address of the node that signed the package.
	SignerAddress common.Address

	// TimestampMilliseconds is the capture time of the data points, in ms since epoch.
	TimestampMilliseconds uint64

	DataPoints []DataPoint

	// Signature is the 65-byte secp256k1 signature with v in {27, 28}.
	Signature []byte
}

// Validate checks the structural invariants the payload encoding relies on.
func (p *SignedDataPackage) Validate() error {
	if p.DataPackageID == "" {
		return fmt.Errorf("data package id must not be empty")
	}
	if len(p.DataPoints) == 0 {
		return fmt.Errorf("data package %s has no data points", p.DataPackageID)
	}
	if len(p.Signature) != SignatureLength {
		return fmt.Errorf("data package %s: invalid signature length: expected %d, got %d",
			p.DataPackageID, SignatureLength, len(p.Signature))
	}
	size := len(p.DataPoints[0].Value)
	if size == 0 {
		return fmt.Errorf("data package %s: empty data point value", p.DataPackageID)
	}
	for _, dp := range p.DataPoints[1:] {
		if len(dp.Value) != size {
			return fmt.Errorf("data package %s: data points must share one value size, got %d and %d",
				p.DataPackageID, size, len(dp.Value))
		}
	}
	return nil
}

// SignedPackages is the result of one provider round-trip: the packages for all
// requested feeds plus the unsigned metadata to embed in every payload.
type SignedPackages struct {
	Packages         []SignedDataPackage
	UnsignedMetadata string
}

// ForFeed returns the packages whose DataPackageID equals feed, in provider order.
func (s *SignedPackages) ForFeed(feed string) []SignedDataPackage {
	var out []SignedDataPackage
	for _, p := range s.Packages {
		if p.DataPackageID == feed {
			out = append(out, p)
		}
	}
	return out
}

// EarliestTimestamp returns the smallest capture timestamp among packages.
// The second return value is false when packages is empty.
func EarliestTimestamp(packages []SignedDataPackage) (uint64, bool) {
	if len(packages) == 0 {
		return 0, false
	}
	earliest := packages[0].TimestampMilliseconds
	for _, p := range packages[1:] {
		if p.TimestampMilliseconds < earliest {
			earliest = p.TimestampMilliseconds
		}
	}
	return earliest, true
}
