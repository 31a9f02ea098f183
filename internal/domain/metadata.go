package domain

import "math/big"

// PricePoint is one externally observed reference price for a pair at an
// approximate timestamp. Price is quote units per base unit.
type PricePoint struct {
	Pair        Pair
	TimestampMs int64
	Price       *big.Rat
}

// RefPriceWindowMs bounds how stale a reference price may be relative to
// the block timestamp before a pair is treated as unpriced.
const RefPriceWindowMs = 5 * 60 * 1000

// PriceTable holds reference prices keyed by pair, each as a series of
// timestamped points sorted ascending. Read-only once built.
type PriceTable struct {
	points map[Pair][]PricePoint
}

// NewPriceTable builds a table from unordered points.
func NewPriceTable(points []PricePoint) *PriceTable {
	t := &PriceTable{points: make(map[Pair][]PricePoint)}
	for _, p := range points {
		t.points[p.Pair] = append(t.points[p.Pair], p)
	}
	for pair, series := range t.points {
		sorted := series
		for i := 1; i < len(sorted); i++ {
			for j := i; j > 0 && sorted[j-1].TimestampMs > sorted[j].TimestampMs; j-- {
				sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
			}
		}
		t.points[pair] = sorted
	}
	return t
}

// At returns the reference price for a pair nearest at-or-before tsMs
// within RefPriceWindowMs. Absence means "undeterminable", never zero.
func (t *PriceTable) At(pair Pair, tsMs int64) (*big.Rat, bool) {
	if t == nil {
		return nil, false
	}
	series := t.points[pair]
	var best *PricePoint
	for i := range series {
		if series[i].TimestampMs > tsMs {
			break
		}
		best = &series[i]
	}
	if best == nil || tsMs-best.TimestampMs > RefPriceWindowMs {
		return nil, false
	}
	return new(big.Rat).Set(best.Price), true
}

// Pairs returns every pair with at least one point.
func (t *PriceTable) Pairs() []Pair {
	if t == nil {
		return nil
	}
	out := make([]Pair, 0, len(t.points))
	for p := range t.points {
		out = append(out, p)
	}
	return out
}

// Metadata is per-block external context. Supplied by the metadata store;
// the pipeline treats it as read-only.
type Metadata struct {
	BlockNumber      uint64
	BlockTimestampMs int64
	BaseFeeWei       *big.Rat
	Prices           *PriceTable
	Builder          string // builder/searcher attribution when known
	USDStable        Token  // stable token used for USD-equivalent conversion
}

// RefPrice returns the reference price for pair at the block timestamp.
func (m *Metadata) RefPrice(pair Pair) (*big.Rat, bool) {
	if m == nil {
		return nil, false
	}
	return m.Prices.At(pair, m.BlockTimestampMs)
}

// USDPrice returns the USD-stable price of one unit of token, or false
// when the table has no (token, stable) reference.
func (m *Metadata) USDPrice(token Address) (*big.Rat, bool) {
	if m == nil {
		return nil, false
	}
	if token == m.USDStable.Address {
		return big.NewRat(1, 1), true
	}
	return m.Prices.At(Pair{Base: token, Quote: m.USDStable.Address}, m.BlockTimestampMs)
}
