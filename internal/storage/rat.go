package storage

import (
	"fmt"
	"math/big"
)

// Rationals are persisted as "num/den" text. Floating point columns would
// round token amounts, and the decimal width varies per token, so the exact
// textual form is the only lossless representation.

// EncodeRat renders a rational as "num/den" text. Nil encodes as the empty
// string.
func EncodeRat(r *big.Rat) string {
	if r == nil {
		return ""
	}
	return r.RatString()
}

// DecodeRat parses "num/den" text produced by EncodeRat. The empty string
// decodes as nil.
func DecodeRat(s string) (*big.Rat, error) {
	if s == "" {
		return nil, nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("%w: malformed rational %q", ErrInvalidInput, s)
	}
	return r, nil
}
