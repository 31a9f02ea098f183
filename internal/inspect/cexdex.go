package inspect

import (
	"context"
	"math/big"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/idhash"
)

// DefaultCexDexThreshold is the minimum absolute relative deviation of a
// swap's execution price from the reference price: 1%.
var DefaultCexDexThreshold = big.NewRat(1, 100)

// CexDexInspector flags swaps whose realized execution price deviates
// from the external reference beyond a threshold, in the direction that
// captures the deviation. Profit is swap size times the deviation in the
// quote token; the estimate carries no gas term, so bundles are tagged
// gross.
type CexDexInspector struct {
	threshold *big.Rat
}

// NewCexDexInspector creates the detector. A nil threshold uses the 1%
// default.
func NewCexDexInspector(threshold *big.Rat) *CexDexInspector {
	if threshold == nil {
		threshold = DefaultCexDexThreshold
	}
	return &CexDexInspector{threshold: threshold}
}

// Name implements Inspector.
func (i *CexDexInspector) Name() string { return string(domain.BundleCexDex) }

// Inspect implements Inspector. Without pricing metadata the block is
// undeterminable and yields no bundles.
func (i *CexDexInspector) Inspect(_ context.Context, set *domain.BlockActionSet) ([]*domain.Bundle, error) {
	meta := set.Metadata
	if meta == nil || meta.Prices == nil {
		return nil, nil
	}

	var bundles []*domain.Bundle
	for ti := range set.Transactions {
		tx := &set.Transactions[ti]
		for _, swap := range tx.Swaps() {
			if b := i.evaluate(set, tx, swap); b != nil {
				bundles = append(bundles, b)
			}
		}
	}
	return bundles, nil
}

func (i *CexDexInspector) evaluate(set *domain.BlockActionSet, tx *domain.TransactionActions, swap domain.Swap) *domain.Bundle {
	if swap.TokenIn.Amount == nil || swap.TokenOut.Amount == nil || swap.TokenOut.Amount.Sign() == 0 {
		return nil
	}
	// Realized acquisition price: input paid per unit of output bought.
	exec := new(big.Rat).Quo(swap.TokenIn.Amount, swap.TokenOut.Amount)

	// Reference for the same orientation: output token priced in the
	// input token.
	pair := domain.Pair{
		Base:  swap.TokenOut.Token.Address,
		Quote: swap.TokenIn.Token.Address,
	}
	ref, ok := set.Metadata.RefPrice(pair)
	if !ok || ref.Sign() <= 0 {
		// No reference for the pair at this timestamp: undeterminable,
		// never a zero-deviation default.
		return nil
	}

	// Relative deviation of execution vs reference.
	deviation := new(big.Rat).Sub(exec, ref)
	deviation.Quo(deviation, ref)

	absDev := new(big.Rat).Abs(deviation)
	if absDev.Cmp(i.threshold) <= 0 {
		return nil
	}
	// Direction consistency: the deviation is captured only by buying
	// the token that is cheaper on-chain than the reference, i.e. the
	// swap acquired its output below the reference price.
	if deviation.Sign() >= 0 {
		return nil
	}

	// Profit in the quote (input) token: size bought * (ref - exec).
	diff := new(big.Rat).Sub(ref, exec)
	profit := new(big.Rat).Mul(swap.TokenOut.Amount, diff)
	quote := swap.TokenIn.Token

	txHashes := []string{tx.TxHash}
	return &domain.Bundle{
		ID:             idhash.ComputeBundleID(string(domain.BundleCexDex), set.BlockNumber, txHashes),
		Kind:           domain.BundleCexDex,
		BlockNumber:    set.BlockNumber,
		TxHashes:       txHashes,
		Profit:         domain.TokenAmount{Token: quote, Amount: profit},
		ProfitUSD:      usdEquivalent(set.Metadata, quote, profit),
		Classification: domain.ProfitGross,
	}
}
