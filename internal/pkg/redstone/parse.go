package redstone

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
)

// Payload is a decoded RedStone payload.
type Payload struct {
	Packages         []entity.SignedDataPackage
	UnsignedMetadata string

	// PrefixLength is the number of bytes preceding the payload in the parsed input,
	// i.e. the length of the function call the payload was appended to.
	PrefixLength int
}

// ParsePayload decodes the RedStone payload at the end of data. Any bytes preceding
// the payload are reported through Payload.PrefixLength.
//
// Parsed packages carry the text form of their first data point's feed id as
// DataPackageID. SignerAddress is left empty; recovering it needs the signature scheme.
func ParsePayload(data []byte) (*Payload, error) {
	r := &tailReader{data: data, off: len(data)}

	marker, err := r.take(markerByteSize, "marker")
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(marker, Marker) {
		return nil, fmt.Errorf("%w: missing marker", ErrInvalidPayload)
	}

	metadataSize, err := r.uint(metadataSizeByteSize, "metadata size")
	if err != nil {
		return nil, err
	}
	metadata, err := r.take(int(metadataSize), "unsigned metadata")
	if err != nil {
		return nil, err
	}
	count, err := r.uint(packagesCountByteSize, "data packages count")
	if err != nil {
		return nil, err
	}

	packages := make([]entity.SignedDataPackage, 0, count)
	for i := uint64(0); i < count; i++ {
		p, err := r.pkg()
		if err != nil {
			return nil, fmt.Errorf("data package %d from the end: %w", i, err)
		}
		packages = append(packages, p)
	}
	slices.Reverse(packages)

	return &Payload{
		Packages:         packages,
		UnsignedMetadata: string(metadata),
		PrefixLength:     r.off,
	}, nil
}

// SplitCallData separates call data into the function call and the appended payload.
func SplitCallData(data []byte) (call []byte, payload *Payload, err error) {
	payload, err = ParsePayload(data)
	if err != nil {
		return nil, nil, err
	}
	return data[:payload.PrefixLength], payload, nil
}

// tailReader consumes a byte slice from its end towards its start.
type tailReader struct {
	data []byte
	off  int
}

func (r *tailReader) take(n int, what string) ([]byte, error) {
	if n < 0 || n > r.off {
		return nil, fmt.Errorf("%w: truncated %s: need %d bytes, have %d", ErrInvalidPayload, what, n, r.off)
	}
	r.off -= n
	return r.data[r.off : r.off+n], nil
}

func (r *tailReader) uint(n int, what string) (uint64, error) {
	b, err := r.take(n, what)
	if err != nil {
		return 0, err
	}
	return readUint(b), nil
}

func (r *tailReader) pkg() (entity.SignedDataPackage, error) {
	var p entity.SignedDataPackage

	sig, err := r.take(entity.SignatureLength, "signature")
	if err != nil {
		return p, err
	}
	pointsCount, err := r.uint(dataPointsCountByteSize, "data points count")
	if err != nil {
		return p, err
	}
	valueSize, err := r.uint(valueSizeByteSize, "value size")
	if err != nil {
		return p, err
	}
	timestamp, err := r.uint(timestampByteSize, "timestamp")
	if err != nil {
		return p, err
	}
	if pointsCount == 0 || valueSize == 0 {
		return p, fmt.Errorf("%w: empty data package", ErrInvalidPayload)
	}

	pointSize := uint64(entity.FeedIDLength) + valueSize
	if pointSize*pointsCount > uint64(r.off) {
		return p, fmt.Errorf("%w: truncated data points", ErrInvalidPayload)
	}
	raw, err := r.take(int(pointSize*pointsCount), "data points")
	if err != nil {
		return p, err
	}

	p.DataPoints = make([]entity.DataPoint, 0, pointsCount)
	for off := uint64(0); off < uint64(len(raw)); off += pointSize {
		var dp entity.DataPoint
		copy(dp.DataFeedID[:], raw[off:off+entity.FeedIDLength])
		dp.Value = bytes.Clone(raw[off+entity.FeedIDLength : off+pointSize])
		p.DataPoints = append(p.DataPoints, dp)
	}
	p.DataPackageID = p.DataPoints[0].DataFeedID.String()
	p.TimestampMilliseconds = timestamp
	p.Signature = bytes.Clone(sig)
	return p, nil
}
