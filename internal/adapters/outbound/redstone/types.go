package redstone

import "encoding/json"

// dataPackagesResponse is the body of /data-packages/latest/{dataServiceId} and
// /data-packages/historical/{dataServiceId}/{timestamp}.
// Example response:
//
//	{
//	  "BTC": [
//	    {
//	      "timestampMilliseconds": 1700000000000,
//	      "signature": "nVKmH1a...GwE=",
//	      "dataPoints": [{"dataFeedId": "BTC", "value": 37012.5}],
//	      "dataPackageId": "BTC",
//	      "dataServiceId": "redstone-primary-prod",
//	      "signerAddress": "0x8BB8F32Df04c8b654987DAaeD53D6B6091e3B774"
//	    }
//	  ]
//	}
type dataPackagesResponse map[string][]signedDataPackageJSON

type signedDataPackageJSON struct {
	TimestampMilliseconds uint64          `json:"timestampMilliseconds"`
	Signature             string          `json:"signature"`
	DataPoints            []dataPointJSON `json:"dataPoints"`
	DataPackageID         string          `json:"dataPackageId"`
	DataServiceID         string          `json:"dataServiceId"`
	SignerAddress         string          `json:"signerAddress"`
	IsSignatureValid      *bool           `json:"isSignatureValid,omitempty"`
}

// dataPointJSON holds either a numeric value (scaled by Decimals when encoded) or a
// base64 string with the raw value bytes.
type dataPointJSON struct {
	DataFeedID string          `json:"dataFeedId"`
	Value      json.RawMessage `json:"value"`
	Decimals   *int32          `json:"decimals,omitempty"`
}
