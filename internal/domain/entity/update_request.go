package entity

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// descriptionPrefix is prepended to the feed's text id in UpdateRequest.Description.
const descriptionPrefix = "Update RedStone Core price for "

// UpdateRequest is a ready-to-send transaction body for one feed: the updatePrice call
// followed by the RedStone payload.
type UpdateRequest struct {
	Description string        `json:"description"`
	Data        hexutil.Bytes `json:"data"`
}

// NewUpdateRequest builds the request for feed with the given call data.
func NewUpdateRequest(feed string, data []byte) UpdateRequest {
	return UpdateRequest{
		Description: DescribeUpdate(feed),
		Data:        data,
	}
}

// DescribeUpdate returns the human-readable description for a feed update.
func DescribeUpdate(feed string) string {
	return descriptionPrefix + feed
}

// FeedResult is the outcome for a single feed when a batch is built with isolated
// failures. Exactly one of Request and Err is set.
type FeedResult struct {
	FeedID  FeedID
	Request *UpdateRequest
	Err     error
}
