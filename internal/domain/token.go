package domain

import "strings"

// Address is a 20-byte EVM address in lowercase 0x-prefixed hex.
type Address string

// NativeAsset is the conventional pseudo-address for the chain's native
// asset in transfer records.
const NativeAsset Address = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

// HexToAddress normalizes a hex string into an Address.
func HexToAddress(s string) Address {
	s = strings.ToLower(s)
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return Address(s)
}

// String returns the hex representation.
func (a Address) String() string {
	return string(a)
}

// Token identifies an ERC20 token together with its display metadata.
// Decimals drive the scaling from raw on-chain units to human units.
type Token struct {
	Address  Address // token contract address
	Symbol   string  // ticker symbol, may be empty for unknown tokens
	Decimals uint8   // number of decimal places (6, 8, 18, ...)
}

// Pair is an ordered (base, quote) token pair used for reference pricing.
// Prices are expressed as quote units per base unit.
type Pair struct {
	Base  Address
	Quote Address
}
