// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"

	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
)

// PackageRequest describes one batched request for signed data packages.
type PackageRequest struct {
	// DataServiceID selects the pool of RedStone nodes (e.g. "redstone-primary-prod").
	DataServiceID string

	// DataPackageIDs are the text feed ids to fetch packages for.
	DataPackageIDs []string

	// UniqueSignersCount is the minimum number of distinct signers required per feed.
	UniqueSignersCount int

	// HistoricalTimestamp, when non-zero, requests the packages captured at this
	// timestamp (ms since epoch) instead of the latest ones.
	HistoricalTimestamp uint64
}

// SignedPackageProvider fetches signed data packages from an oracle network.
// Implementations enforce UniqueSignersCount and fail the whole request when any
// requested feed cannot satisfy it.
type SignedPackageProvider interface {
	// Name returns the provider name (e.g., "redstone-gateway").
	Name() string

	// FetchSignedPackages performs one round-trip for all requested feeds.
	FetchSignedPackages(ctx context.Context, req PackageRequest) (*entity.SignedPackages, error)
}

// PayloadSerializer turns the packages of one feed into an opaque signed payload.
type PayloadSerializer interface {
	Serialize(packages []entity.SignedDataPackage, unsignedMetadata string) ([]byte, error)
}

// CallEncoder produces the ABI call data for a price update.
type CallEncoder interface {
	// EncodeUpdatePrice returns the call data for updatePrice(uint48 timestamp).
	EncodeUpdatePrice(timestampSeconds uint64) ([]byte, error)
}
