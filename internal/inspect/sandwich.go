package inspect

import (
	"context"
	"math/big"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/idhash"
)

// SandwichInspector detects front-run / victim / back-run triplets around
// one pool: A and B by the same actor closing a round trip in the shared
// token, with at least one opposite-direction victim strictly between.
type SandwichInspector struct {
	group ActorGrouper
}

// NewSandwichInspector creates the detector. A nil grouper falls back to
// same-sender attribution.
func NewSandwichInspector(group ActorGrouper) *SandwichInspector {
	if group == nil {
		group = SenderGrouper
	}
	return &SandwichInspector{group: group}
}

// Name implements Inspector.
func (i *SandwichInspector) Name() string { return string(domain.BundleSandwich) }

// Inspect implements Inspector.
func (i *SandwichInspector) Inspect(_ context.Context, set *domain.BlockActionSet) ([]*domain.Bundle, error) {
	pools := swapsByPool(set, i.group)

	var bundles []*domain.Bundle
	for _, pool := range sortedPools(pools) {
		entries := pools[pool]
		used := make(map[int]bool)

		for ai := 0; ai < len(entries); ai++ {
			if used[ai] {
				continue
			}
			a := entries[ai]

			for bi := ai + 1; bi < len(entries); bi++ {
				if used[bi] {
					continue
				}
				b := entries[bi]
				if b.txIndex <= a.txIndex {
					continue
				}
				if b.actor != a.actor {
					continue
				}
				// Round trip: B unwinds A in the shared token.
				if b.swap.TokenIn.Token.Address != a.swap.TokenOut.Token.Address {
					continue
				}
				if b.swap.TokenOut.Token.Address != a.swap.TokenIn.Token.Address {
					continue
				}

				victims := victimsBetween(entries, a, b)
				if len(victims) == 0 {
					continue
				}

				bundle, ok := i.buildBundle(set, pool, a, b, victims)
				if !ok {
					continue
				}
				bundles = append(bundles, bundle)
				used[ai], used[bi] = true, true
				break
			}
		}
	}
	return bundles, nil
}

// victimsBetween collects opposite-direction swaps by other actors with a
// block position strictly between A and B. Unrelated same-direction swaps
// on the pool do not disqualify the match; only direction and ownership
// conditions matter. Multiple victims all join the same bundle.
func victimsBetween(entries []poolSwap, a, b poolSwap) []poolSwap {
	var victims []poolSwap
	for _, v := range entries {
		if v.txIndex <= a.txIndex || v.txIndex >= b.txIndex {
			continue
		}
		if v.actor == a.actor {
			continue
		}
		// Opposite direction to A on this pool.
		if v.swap.TokenIn.Token.Address != a.swap.TokenOut.Token.Address {
			continue
		}
		victims = append(victims, v)
	}
	return victims
}

// buildBundle computes round-trip profit in A's input token and keeps the
// triplet only when the attacker nets a strict gain.
func (i *SandwichInspector) buildBundle(set *domain.BlockActionSet, pool domain.Address, a, b poolSwap, victims []poolSwap) (*domain.Bundle, bool) {
	profitToken := a.swap.TokenIn.Token

	// B's return minus A's spend, both in the shared token.
	profit := new(big.Rat).Sub(b.swap.TokenOut.Amount, a.swap.TokenIn.Amount)

	classification := domain.ProfitGross
	gasA, okA := gasCostInToken(set.Metadata, a.tx, profitToken)
	gasB, okB := gasCostInToken(set.Metadata, b.tx, profitToken)
	if okA && okB {
		profit.Sub(profit, gasA)
		profit.Sub(profit, gasB)
		classification = domain.ProfitNet
	}

	if profit.Sign() <= 0 {
		return nil, false
	}

	txHashes := make([]string, 0, len(victims)+2)
	txHashes = append(txHashes, a.txHash)
	for _, v := range victims {
		txHashes = append(txHashes, v.txHash)
	}
	txHashes = append(txHashes, b.txHash)

	return &domain.Bundle{
		ID:             idhash.ComputeBundleID(string(domain.BundleSandwich), set.BlockNumber, txHashes),
		Kind:           domain.BundleSandwich,
		BlockNumber:    set.BlockNumber,
		TxHashes:       txHashes,
		Profit:         domain.TokenAmount{Token: profitToken, Amount: profit},
		ProfitUSD:      usdEquivalent(set.Metadata, profitToken, profit),
		Classification: classification,
	}, true
}
