package inspect

import (
	"math/big"
	"sort"

	"evm-mev-lab/internal/domain"
)

// ActorGrouper maps a transaction to the actor controlling it. The
// baseline is the sender EOA; a bundle-attribution heuristic can be
// plugged in through Config without changing detector logic.
type ActorGrouper func(tx *domain.TransactionActions) string

// SenderGrouper groups transactions by sender address.
func SenderGrouper(tx *domain.TransactionActions) string {
	return string(tx.Sender)
}

// Config carries detector tunables.
type Config struct {
	// CexDexThreshold is the minimum absolute relative price deviation
	// flagged by the CEX-DEX detector. Defaults to 1%.
	CexDexThreshold *big.Rat
	// Grouper attributes transactions to actors. Defaults to sender.
	Grouper ActorGrouper
}

// poolSwap is one swap with its block-position context attached.
type poolSwap struct {
	txIndex int
	txHash  string
	actor   string
	tx      *domain.TransactionActions
	swap    domain.Swap
}

// swapsByPool indexes a block's swaps per pool, ordered by transaction
// index then trace index.
func swapsByPool(set *domain.BlockActionSet, group ActorGrouper) map[domain.Address][]poolSwap {
	pools := make(map[domain.Address][]poolSwap)
	for i := range set.Transactions {
		tx := &set.Transactions[i]
		for _, s := range tx.Swaps() {
			pools[s.Pool] = append(pools[s.Pool], poolSwap{
				txIndex: tx.TxIndex,
				txHash:  tx.TxHash,
				actor:   group(tx),
				tx:      tx,
				swap:    s,
			})
		}
	}
	for _, entries := range pools {
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].txIndex != entries[j].txIndex {
				return entries[i].txIndex < entries[j].txIndex
			}
			return entries[i].swap.TraceIndex < entries[j].swap.TraceIndex
		})
	}
	return pools
}

// sortedPools returns pool addresses in deterministic order.
func sortedPools(pools map[domain.Address][]poolSwap) []domain.Address {
	keys := make([]domain.Address, 0, len(pools))
	for k := range pools {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// gasCostInToken converts a transaction's gas cost into units of the
// given token via the reference table. Returns false when neither the
// (native, token) nor the (token, native) pair is priced.
func gasCostInToken(meta *domain.Metadata, tx *domain.TransactionActions, token domain.Token) (*big.Rat, bool) {
	costNative := domain.ScaleDecimals(tx.GasCostWei(), 18)
	if token.Address == domain.NativeAsset {
		return costNative, true
	}
	if meta == nil {
		return nil, false
	}
	if price, ok := meta.RefPrice(domain.Pair{Base: domain.NativeAsset, Quote: token.Address}); ok {
		return new(big.Rat).Mul(costNative, price), true
	}
	if price, ok := meta.RefPrice(domain.Pair{Base: token.Address, Quote: domain.NativeAsset}); ok && price.Sign() > 0 {
		return new(big.Rat).Quo(costNative, price), true
	}
	return nil, false
}

// usdEquivalent converts a token amount to USD via the reference table,
// or nil when the token has no USD reference.
func usdEquivalent(meta *domain.Metadata, token domain.Token, amount *big.Rat) *big.Rat {
	if meta == nil || amount == nil {
		return nil
	}
	price, ok := meta.USDPrice(token.Address)
	if !ok {
		return nil
	}
	return new(big.Rat).Mul(amount, price)
}

// netTokenDelta sums per-token inflows minus outflows and returns the
// token with the largest positive net, if any.
func netTokenDelta(in, out []domain.TokenAmount) (domain.Token, *big.Rat, bool) {
	net := make(map[domain.Address]*big.Rat)
	tokens := make(map[domain.Address]domain.Token)
	for _, ta := range in {
		if ta.Amount == nil {
			continue
		}
		tokens[ta.Token.Address] = ta.Token
		cur, ok := net[ta.Token.Address]
		if !ok {
			cur = new(big.Rat)
			net[ta.Token.Address] = cur
		}
		cur.Add(cur, ta.Amount)
	}
	for _, ta := range out {
		if ta.Amount == nil {
			continue
		}
		tokens[ta.Token.Address] = ta.Token
		cur, ok := net[ta.Token.Address]
		if !ok {
			cur = new(big.Rat)
			net[ta.Token.Address] = cur
		}
		cur.Sub(cur, ta.Amount)
	}

	var bestAddr domain.Address
	var best *big.Rat
	for addr, v := range net {
		if v.Sign() <= 0 {
			continue
		}
		if best == nil || v.Cmp(best) > 0 || (v.Cmp(best) == 0 && addr < bestAddr) {
			best = v
			bestAddr = addr
		}
	}
	if best == nil {
		return domain.Token{}, nil, false
	}
	return tokens[bestAddr], best, true
}
