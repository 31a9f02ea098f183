package domain

import "math/big"

// Token amounts and prices are exact rationals. Token decimal counts vary
// per token and profit comparisons chain multiplications and divisions, so
// floating point would drift; big.Rat never loses precision.

// NewRat returns an exact rational from an int64 numerator and denominator.
func NewRat(num, denom int64) *big.Rat {
	return big.NewRat(num, denom)
}

// RatFromInt returns an exact rational from a big integer.
func RatFromInt(v *big.Int) *big.Rat {
	return new(big.Rat).SetInt(v)
}

// RatFromWord interprets a big-endian unsigned byte slice (an ABI word or a
// raw token amount) as an exact rational.
func RatFromWord(b []byte) *big.Rat {
	return new(big.Rat).SetInt(new(big.Int).SetBytes(b))
}

// ScaleDecimals divides a raw on-chain amount by 10^decimals, yielding the
// human-unit amount as an exact rational.
func ScaleDecimals(raw *big.Rat, decimals uint8) *big.Rat {
	pow := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Rat).Quo(raw, new(big.Rat).SetInt(pow))
}

// TokenAmount couples a token with an exact human-unit amount.
type TokenAmount struct {
	Token  Token
	Amount *big.Rat
}

// Clone returns a deep copy; the amount is never shared.
func (ta TokenAmount) Clone() TokenAmount {
	out := TokenAmount{Token: ta.Token}
	if ta.Amount != nil {
		out.Amount = new(big.Rat).Set(ta.Amount)
	}
	return out
}
