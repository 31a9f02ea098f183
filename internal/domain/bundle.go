package domain

import "math/big"

// BundleKind identifies the detector that produced a bundle.
type BundleKind string

const (
	BundleSandwich BundleKind = "sandwich"
	BundleCexDex   BundleKind = "cex_dex"
	BundleJit      BundleKind = "jit_liquidity"
	BundleBackrun  BundleKind = "atomic_backrun"
)

// Bundle classification tags.
const (
	ProfitNet   = "profit_net"   // gas subtracted in the profit token
	ProfitGross = "profit_gross" // gas unpriced in the profit token, reported gross
)

// Bundle is a detected MEV strategy instance. Created only by a detector
// and never mutated after creation.
type Bundle struct {
	ID             string     // deterministic hash, see idhash
	Kind           BundleKind
	BlockNumber    uint64
	TxHashes       []string // contributing transactions in block order
	Profit         TokenAmount
	ProfitUSD      *big.Rat // nil when no USD reference exists for the profit token
	Classification string   // ProfitNet or ProfitGross
}
