package inspect

import (
	"context"
	"sort"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/idhash"
)

// JitInspector detects just-in-time liquidity: a Mint, one or more swaps
// against the pool, then a Burn of the same tick range with equal or
// greater liquidity, all by one actor within the block. Same-block mint
// and burn is the defining trait; a burn in a later block never appears
// in this action set, so the requirement holds by construction.
type JitInspector struct {
	group ActorGrouper
}

// NewJitInspector creates the detector. A nil grouper falls back to
// same-sender attribution.
func NewJitInspector(group ActorGrouper) *JitInspector {
	if group == nil {
		group = SenderGrouper
	}
	return &JitInspector{group: group}
}

// Name implements Inspector.
func (i *JitInspector) Name() string { return string(domain.BundleJit) }

// poolEvent is a mint/burn/collect with block-position context.
type poolEvent struct {
	txIndex int
	txHash  string
	actor   string
	tx      *domain.TransactionActions
	action  domain.Action
}

// Inspect implements Inspector.
func (i *JitInspector) Inspect(_ context.Context, set *domain.BlockActionSet) ([]*domain.Bundle, error) {
	events := i.liquidityEventsByPool(set)
	swaps := swapsByPool(set, i.group)

	var bundles []*domain.Bundle
	for _, pool := range sortedPoolEvents(events) {
		poolEvents := events[pool]
		usedBurns := make(map[int]bool)

		for mi, me := range poolEvents {
			mint, ok := me.action.(domain.Mint)
			if !ok {
				continue
			}
			for bi := mi + 1; bi < len(poolEvents); bi++ {
				if usedBurns[bi] {
					continue
				}
				be := poolEvents[bi]
				burn, ok := be.action.(domain.Burn)
				if !ok {
					continue
				}
				if be.txIndex <= me.txIndex || be.actor != me.actor {
					continue
				}
				if burn.TickLower != mint.TickLower || burn.TickUpper != mint.TickUpper {
					continue
				}
				if mint.Liquidity != nil && burn.Liquidity != nil && burn.Liquidity.Cmp(mint.Liquidity) < 0 {
					continue
				}

				victims := interveningSwaps(swaps[pool], me.txIndex, be.txIndex, me.actor)
				if len(victims) == 0 {
					continue
				}

				bundles = append(bundles, i.buildBundle(set, pool, me, be, mint, burn, poolEvents, victims))
				usedBurns[bi] = true
				break
			}
		}
	}
	return bundles, nil
}

// interveningSwaps returns other actors' swaps strictly between the mint
// and burn transactions.
func interveningSwaps(entries []poolSwap, mintTx, burnTx int, actor string) []poolSwap {
	var out []poolSwap
	for _, s := range entries {
		if s.txIndex <= mintTx || s.txIndex >= burnTx {
			continue
		}
		if s.actor == actor {
			continue
		}
		out = append(out, s)
	}
	return out
}

// buildBundle estimates profit as the position's round trip: everything
// the burn returned plus fees collected by the actor, minus everything
// the mint deposited. That nets swap fees against burn-side slippage.
func (i *JitInspector) buildBundle(set *domain.BlockActionSet, pool domain.Address, me, be poolEvent, mint domain.Mint, burn domain.Burn, events []poolEvent, victims []poolSwap) *domain.Bundle {
	inflows := append([]domain.TokenAmount{}, burn.Withdrawn...)
	for _, e := range events {
		c, ok := e.action.(domain.Collect)
		if !ok {
			continue
		}
		if e.actor != me.actor || e.txIndex < me.txIndex || e.txIndex > be.txIndex {
			continue
		}
		if c.TickLower != mint.TickLower || c.TickUpper != mint.TickUpper {
			continue
		}
		inflows = append(inflows, c.Collected...)
	}

	profitToken, profit, ok := netTokenDelta(inflows, mint.Deposited)
	if !ok {
		// Position closed at a loss; report zero in the first deposited
		// token so the bundle still records the extraction attempt.
		if len(mint.Deposited) > 0 {
			profitToken = mint.Deposited[0].Token
		}
		profit = domain.NewRat(0, 1)
	}

	seen := make(map[string]bool)
	txHashes := []string{me.txHash}
	seen[me.txHash] = true
	for _, v := range victims {
		if !seen[v.txHash] {
			txHashes = append(txHashes, v.txHash)
			seen[v.txHash] = true
		}
	}
	if !seen[be.txHash] {
		txHashes = append(txHashes, be.txHash)
	}

	return &domain.Bundle{
		ID:             idhash.ComputeBundleID(string(domain.BundleJit), set.BlockNumber, txHashes),
		Kind:           domain.BundleJit,
		BlockNumber:    set.BlockNumber,
		TxHashes:       txHashes,
		Profit:         domain.TokenAmount{Token: profitToken, Amount: profit},
		ProfitUSD:      usdEquivalent(set.Metadata, profitToken, profit),
		Classification: domain.ProfitGross,
	}
}

// liquidityEventsByPool indexes mint/burn/collect actions per pool in
// block order.
func (i *JitInspector) liquidityEventsByPool(set *domain.BlockActionSet) map[domain.Address][]poolEvent {
	events := make(map[domain.Address][]poolEvent)
	for ti := range set.Transactions {
		tx := &set.Transactions[ti]
		for _, a := range tx.Actions {
			switch a.Kind() {
			case domain.ActionMint, domain.ActionBurn, domain.ActionCollect:
				pool := a.Base().Pool
				events[pool] = append(events[pool], poolEvent{
					txIndex: tx.TxIndex,
					txHash:  tx.TxHash,
					actor:   i.group(tx),
					tx:      tx,
					action:  a,
				})
			}
		}
	}
	for _, list := range events {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].txIndex != list[j].txIndex {
				return list[i].txIndex < list[j].txIndex
			}
			return list[i].action.Base().TraceIndex < list[j].action.Base().TraceIndex
		})
	}
	return events
}

func sortedPoolEvents(events map[domain.Address][]poolEvent) []domain.Address {
	keys := make([]domain.Address, 0, len(events))
	for k := range events {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
