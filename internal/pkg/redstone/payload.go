// Package redstone implements the RedStone payload binary format.
//
// A payload is appended to the call data of a RedStone-consuming contract and is read
// backwards from the end of the call data:
//
//	signedPackage_1 ... signedPackage_n
//	packagesCount        (2 bytes)
//	unsignedMetadata     (metadataSize bytes, UTF-8)
//	metadataSize         (3 bytes)
//	REDSTONE_MARKER      (9 bytes, 0x000002ed57011e0000)
//
// Each signed package is:
//
//	dataPoint_1 ... dataPoint_k   (each: feedId 32 bytes || value valueSize bytes)
//	timestampMilliseconds         (6 bytes)
//	valueSize                     (4 bytes)
//	dataPointsCount               (3 bytes)
//	signature                     (65 bytes, r || s || v)
//
// Data points are sorted by the bytes of their feed id. All integers are big-endian.
package redstone

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
	"github.com/archon-research/stl/redstone-calldata/internal/ports/outbound"
)

const (
	timestampByteSize        = 6
	valueSizeByteSize        = 4
	dataPointsCountByteSize  = 3
	packagesCountByteSize    = 2
	metadataSizeByteSize     = 3
	packageTrailerByteSize   = timestampByteSize + valueSizeByteSize + dataPointsCountByteSize + entity.SignatureLength
	markerByteSize           = 9
	maxTimestampMilliseconds = 1<<(8*timestampByteSize) - 1
	maxDataPointsCount       = 1<<(8*dataPointsCountByteSize) - 1
	maxPackagesCount         = 1<<(8*packagesCountByteSize) - 1
	maxMetadataSize          = 1<<(8*metadataSizeByteSize) - 1
)

// Marker terminates every RedStone payload.
var Marker = []byte{0x00, 0x00, 0x02, 0xed, 0x57, 0x01, 0x1e, 0x00, 0x00}

// ErrInvalidPayload is returned when a payload cannot be encoded or parsed.
var ErrInvalidPayload = errors.New("invalid redstone payload")

// Compile-time check that Serializer implements outbound.PayloadSerializer.
var _ outbound.PayloadSerializer = Serializer{}

// Serializer implements outbound.PayloadSerializer with the RedStone binary format.
type Serializer struct{}

// Serialize encodes packages and the unsigned metadata into one payload.
func (Serializer) Serialize(packages []entity.SignedDataPackage, unsignedMetadata string) ([]byte, error) {
	return EncodePayload(packages, unsignedMetadata)
}

// EncodePayload encodes packages and the unsigned metadata into one payload.
func EncodePayload(packages []entity.SignedDataPackage, unsignedMetadata string) ([]byte, error) {
	if len(packages) == 0 {
		return nil, fmt.Errorf("%w: no data packages", ErrInvalidPayload)
	}
	if len(packages) > maxPackagesCount {
		return nil, fmt.Errorf("%w: too many data packages: %d", ErrInvalidPayload, len(packages))
	}
	if len(unsignedMetadata) > maxMetadataSize {
		return nil, fmt.Errorf("%w: unsigned metadata too long: %d bytes", ErrInvalidPayload, len(unsignedMetadata))
	}

	var buf bytes.Buffer
	for i := range packages {
		if err := encodePackage(&buf, &packages[i]); err != nil {
			return nil, err
		}
	}
	buf.Write(putUint(uint64(len(packages)), packagesCountByteSize))
	buf.WriteString(unsignedMetadata)
	buf.Write(putUint(uint64(len(unsignedMetadata)), metadataSizeByteSize))
	buf.Write(Marker)

	return buf.Bytes(), nil
}

// EncodePackage encodes a single signed package.
func EncodePackage(p *entity.SignedDataPackage) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodePackage(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodePackage(buf *bytes.Buffer, p *entity.SignedDataPackage) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.TimestampMilliseconds > maxTimestampMilliseconds {
		return fmt.Errorf("%w: data package %s: timestamp %d overflows %d bytes",
			ErrInvalidPayload, p.DataPackageID, p.TimestampMilliseconds, timestampByteSize)
	}
	if len(p.DataPoints) > maxDataPointsCount {
		return fmt.Errorf("%w: data package %s: too many data points: %d",
			ErrInvalidPayload, p.DataPackageID, len(p.DataPoints))
	}

	points := sortedDataPoints(p.DataPoints)
	valueSize := len(points[0].Value)

	for _, dp := range points {
		buf.Write(dp.DataFeedID[:])
		buf.Write(dp.Value)
	}
	buf.Write(putUint(p.TimestampMilliseconds, timestampByteSize))
	buf.Write(putUint(uint64(valueSize), valueSizeByteSize))
	buf.Write(putUint(uint64(len(points)), dataPointsCountByteSize))
	buf.Write(p.Signature)
	return nil
}

// sortedDataPoints returns a copy of points ordered by feed id bytes.
func sortedDataPoints(points []entity.DataPoint) []entity.DataPoint {
	sorted := slices.Clone(points)
	slices.SortStableFunc(sorted, func(a, b entity.DataPoint) int {
		return bytes.Compare(a.DataFeedID[:], b.DataFeedID[:])
	})
	return sorted
}

// putUint encodes v big-endian in exactly size bytes. Callers check the range.
func putUint(v uint64, size int) []byte {
	out := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func readUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
