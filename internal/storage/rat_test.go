package storage

import (
	"errors"
	"math/big"
	"testing"
)

func TestRatRoundTrip(t *testing.T) {
	cases := []*big.Rat{
		big.NewRat(3, 2),
		big.NewRat(-48, 1000),
		new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)),
		nil,
	}
	for _, want := range cases {
		got, err := DecodeRat(EncodeRat(want))
		if err != nil {
			t.Fatalf("DecodeRat failed: %v", err)
		}
		if want == nil {
			if got != nil {
				t.Errorf("Expected nil, got %s", got.RatString())
			}
			continue
		}
		if got.Cmp(want) != 0 {
			t.Errorf("Round trip mismatch: got %s, want %s", got.RatString(), want.RatString())
		}
	}
}

func TestDecodeRatMalformed(t *testing.T) {
	for _, s := range []string{"abc", "1/0", "1/2/3"} {
		if _, err := DecodeRat(s); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("DecodeRat(%q): expected ErrInvalidInput, got %v", s, err)
		}
	}
}
