// Package entity contains the core domain entities for the RedStone calldata builder.
// These entities represent the fundamental objects exchanged between ports and have no
// behaviour beyond validation and formatting.
package entity

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// FeedIDLength is the byte width of a feed identifier (a Solidity bytes32).
const FeedIDLength = 32

// ErrInvalidFeedID is returned when a feed identifier is malformed.
var ErrInvalidFeedID = errors.New("invalid feed id")

// FeedID identifies a RedStone price feed. It is the bytes32 form of the feed's text
// identifier, right-padded with zero bytes (e.g. "BTC" -> 0x4254430000...).
type FeedID [FeedIDLength]byte

// ParseFeedID parses a 0x-prefixed hex string holding exactly 32 bytes.
func ParseFeedID(s string) (FeedID, error) {
	var id FeedID
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return id, fmt.Errorf("%w: %q: %v", ErrInvalidFeedID, s, err)
	}
	if len(raw) != FeedIDLength {
		return id, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidFeedID, FeedIDLength, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// FeedIDFromString builds the bytes32 form of a text feed identifier.
func FeedIDFromString(name string) (FeedID, error) {
	var id FeedID
	if name == "" {
		return id, fmt.Errorf("%w: empty name", ErrInvalidFeedID)
	}
	if len(name) > FeedIDLength {
		return id, fmt.Errorf("%w: %q is longer than %d bytes", ErrInvalidFeedID, name, FeedIDLength)
	}
	copy(id[:], name)
	return id, nil
}

// MustFeedIDFromString is like FeedIDFromString but panics on error.
// Intended for constants and tests.
func MustFeedIDFromString(name string) FeedID {
	id, err := FeedIDFromString(name)
	if err != nil {
		panic(err)
	}
	return id
}

// Text decodes the identifier into its text form: trailing zero bytes are trimmed and the
// remainder must be non-empty UTF-8.
func (f FeedID) Text() (string, error) {
	trimmed := bytes.TrimRight(f[:], "\x00")
	if len(trimmed) == 0 {
		return "", fmt.Errorf("%w: zero value", ErrInvalidFeedID)
	}
	if !utf8.Valid(trimmed) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidFeedID, f.Hex())
	}
	return string(trimmed), nil
}

// String returns the text form when it decodes, the hex form otherwise.
func (f FeedID) String() string {
	if text, err := f.Text(); err == nil {
		return text
	}
	return f.Hex()
}

// Hex returns the identifier as a 0x-prefixed hex string.
func (f FeedID) Hex() string {
	return hexutil.Encode(f[:])
}

// Bytes returns a copy of the identifier bytes.
func (f FeedID) Bytes() []byte {
	return bytes.Clone(f[:])
}

// MarshalText encodes the identifier in its hex form.
func (f FeedID) MarshalText() ([]byte, error) {
	return []byte(f.Hex()), nil
}

// UnmarshalText parses the hex form.
func (f *FeedID) UnmarshalText(text []byte) error {
	id, err := ParseFeedID(string(text))
	if err != nil {
		return err
	}
	*f = id
	return nil
}
