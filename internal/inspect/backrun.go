package inspect

import (
	"context"
	"math/big"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/idhash"
)

// BackrunInspector detects atomic arbitrage: a cyclic chain of two or
// more swaps fully contained in one transaction whose closing output
// token equals the opening input token with a net gain after gas.
type BackrunInspector struct{}

// NewBackrunInspector creates the detector.
func NewBackrunInspector() *BackrunInspector {
	return &BackrunInspector{}
}

// Name implements Inspector.
func (i *BackrunInspector) Name() string { return string(domain.BundleBackrun) }

// Inspect implements Inspector.
func (i *BackrunInspector) Inspect(_ context.Context, set *domain.BlockActionSet) ([]*domain.Bundle, error) {
	var bundles []*domain.Bundle
	for ti := range set.Transactions {
		tx := &set.Transactions[ti]
		if b := i.evaluate(set, tx); b != nil {
			bundles = append(bundles, b)
		}
	}
	return bundles, nil
}

// evaluate scans the transaction's swaps in trace order for the longest
// token-chained cycle.
func (i *BackrunInspector) evaluate(set *domain.BlockActionSet, tx *domain.TransactionActions) *domain.Bundle {
	swaps := tx.Swaps()

	for start := 0; start < len(swaps); start++ {
		first := swaps[start]
		if first.TokenIn.Amount == nil {
			continue
		}

		// Extend the chain greedily, remembering the last point where it
		// returns to the opening token. A chain that never closes may
		// still hide a shorter cycle opening mid-chain, so the scan
		// resumes at the next swap rather than past the chain.
		end := start
		closeAt := -1
		for end+1 < len(swaps) &&
			swaps[end+1].TokenIn.Token.Address == swaps[end].TokenOut.Token.Address {
			end++
			if swaps[end].TokenOut.Token.Address == first.TokenIn.Token.Address {
				closeAt = end
			}
		}
		if closeAt < 0 {
			continue
		}
		last := swaps[closeAt]
		if last.TokenOut.Amount == nil {
			continue
		}

		net := new(big.Rat).Sub(last.TokenOut.Amount, first.TokenIn.Amount)

		token := first.TokenIn.Token
		classification := domain.ProfitGross
		if gas, ok := gasCostInToken(set.Metadata, tx, token); ok {
			net.Sub(net, gas)
			classification = domain.ProfitNet
		}
		if net.Sign() <= 0 {
			continue
		}

		txHashes := []string{tx.TxHash}
		return &domain.Bundle{
			ID:             idhash.ComputeBundleID(string(domain.BundleBackrun), set.BlockNumber, txHashes),
			Kind:           domain.BundleBackrun,
			BlockNumber:    set.BlockNumber,
			TxHashes:       txHashes,
			Profit:         domain.TokenAmount{Token: token, Amount: net},
			ProfitUSD:      usdEquivalent(set.Metadata, token, net),
			Classification: classification,
		}
	}
	return nil
}
