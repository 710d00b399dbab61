package redstone

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
)

// numericValueByteSize is the width of numeric data point values.
const numericValueByteSize = 32

// toSignedDataPackage converts a gateway package into the domain form.
func toSignedDataPackage(dataPackageID string, raw signedDataPackageJSON, defaultDecimals int32) (entity.SignedDataPackage, error) {
	var pkg entity.SignedDataPackage

	if !common.IsHexAddress(raw.SignerAddress) {
		return pkg, fmt.Errorf("invalid signer address %q", raw.SignerAddress)
	}

	sig, err := decodeSignature(raw.Signature)
	if err != nil {
		return pkg, err
	}

	points := make([]entity.DataPoint, 0, len(raw.DataPoints))
	for _, dp := range raw.DataPoints {
		point, err := toDataPoint(dp, defaultDecimals)
		if err != nil {
			return pkg, fmt.Errorf("data point %s: %w", dp.DataFeedID, err)
		}
		points = append(points, point)
	}

	pkg = entity.SignedDataPackage{
		DataPackageID:         dataPackageID,
		SignerAddress:         common.HexToAddress(raw.SignerAddress),
		TimestampMilliseconds: raw.TimestampMilliseconds,
		DataPoints:            points,
		Signature:             sig,
	}
	if err := pkg.Validate(); err != nil {
		return entity.SignedDataPackage{}, err
	}
	return pkg, nil
}

// decodeSignature decodes a base64 r || s || v signature and normalises v to 27/28.
func decodeSignature(encoded string) ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding signature: %w", err)
	}
	if len(sig) != entity.SignatureLength {
		return nil, fmt.Errorf("invalid signature length: expected %d, got %d", entity.SignatureLength, len(sig))
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

func toDataPoint(dp dataPointJSON, defaultDecimals int32) (entity.DataPoint, error) {
	var point entity.DataPoint

	feedID, err := entity.FeedIDFromString(dp.DataFeedID)
	if err != nil {
		return point, err
	}
	point.DataFeedID = feedID

	raw := bytes.TrimSpace(dp.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return point, fmt.Errorf("missing value")
	}

	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return point, fmt.Errorf("parsing string value: %w", err)
		}
		value, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return point, fmt.Errorf("decoding base64 value: %w", err)
		}
		if len(value) == 0 {
			return point, fmt.Errorf("empty value")
		}
		point.Value = value
		return point, nil
	}

	decimals := defaultDecimals
	if dp.Decimals != nil {
		decimals = *dp.Decimals
	}
	value, err := scaleNumericValue(string(raw), decimals)
	if err != nil {
		return point, err
	}
	point.Value = value
	return point, nil
}

// scaleNumericValue converts a decimal number to round(value * 10^decimals) encoded as
// a 32-byte big-endian unsigned integer.
func scaleNumericValue(raw string, decimals int32) ([]byte, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing numeric value %q: %w", raw, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative value %s", raw)
	}
	scaled, overflow := uint256.FromBig(d.Shift(decimals).Round(0).BigInt())
	if overflow {
		return nil, fmt.Errorf("value %s overflows %d bytes", raw, numericValueByteSize)
	}
	out := scaled.Bytes32()
	return out[:], nil
}
