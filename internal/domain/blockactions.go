package domain

import "math/big"

// TransactionActions is the ordered normalized-action sequence for one
// transaction. Invariant: non-decreasing trace index.
type TransactionActions struct {
	TxHash      string
	TxIndex     int
	Sender      Address
	GasUsed     uint64
	GasPriceWei *big.Int
	Actions     []Action
}

// GasCostWei returns the transaction's gas cost in wei as a rational.
func (t *TransactionActions) GasCostWei() *big.Rat {
	if t.GasPriceWei == nil {
		return new(big.Rat)
	}
	cost := new(big.Int).Mul(new(big.Int).SetUint64(t.GasUsed), t.GasPriceWei)
	return new(big.Rat).SetInt(cost)
}

// Swaps returns the swap actions in trace order.
func (t *TransactionActions) Swaps() []Swap {
	var out []Swap
	for _, a := range t.Actions {
		if s, ok := a.(Swap); ok {
			out = append(out, s)
		}
	}
	return out
}

// BlockActionSet is the per-block unit the inspectors consume: the block's
// transactions in original order plus its metadata.
type BlockActionSet struct {
	BlockNumber  uint64
	Metadata     *Metadata
	Transactions []TransactionActions
}

// Validate checks the ordering invariants: transactions ascending by index
// and actions non-decreasing by trace index within each transaction.
// A violation is fatal for this block's processing.
func (s *BlockActionSet) Validate() error {
	lastTx := -1
	for _, tx := range s.Transactions {
		if tx.TxIndex <= lastTx {
			return ErrMalformedTrace
		}
		lastTx = tx.TxIndex
		var lastTrace int64 = -1
		for _, a := range tx.Actions {
			idx := int64(a.Base().TraceIndex)
			if idx < lastTrace {
				return ErrMalformedTrace
			}
			lastTrace = idx
		}
	}
	return nil
}

// ActionCount returns the total number of normalized actions in the block.
func (s *BlockActionSet) ActionCount() int {
	n := 0
	for _, tx := range s.Transactions {
		n += len(tx.Actions)
	}
	return n
}
