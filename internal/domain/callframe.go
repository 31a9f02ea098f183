package domain

import (
	"errors"
	"math/big"
)

// ErrMalformedTrace indicates a trace that violates the ordering invariant
// (non-monotonic trace_index). Fatal for the containing block only.
var ErrMalformedTrace = errors.New("malformed trace: non-monotonic trace index")

// CallFrame is one node of a transaction's execution call tree. Immutable
// once produced by the trace source.
type CallFrame struct {
	Contract   Address      // called contract address
	Caller     Address      // calling address
	Input      []byte       // selector + ABI-encoded arguments
	Output     []byte       // raw return data
	Value      *big.Int     // native value transferred, wei
	Success    bool         // false when this frame reverted
	TraceIndex uint64       // depth-first execution order, unique per transaction
	Children   []*CallFrame // sub-calls in execution order
}

// Selector returns the leading 4 bytes of call data, or false when the
// input is too short to carry one.
func (f *CallFrame) Selector() ([4]byte, bool) {
	var sel [4]byte
	if len(f.Input) < 4 {
		return sel, false
	}
	copy(sel[:], f.Input[:4])
	return sel, true
}

// TransactionTrace is the full call tree of one transaction plus the
// execution context detectors need for gas accounting.
type TransactionTrace struct {
	Hash        string     // transaction hash
	Index       int        // position within the block
	Sender      Address    // EOA that signed the transaction
	GasUsed     uint64     // total gas consumed
	GasPriceWei *big.Int   // effective gas price in wei
	Frames      *CallFrame // root call frame
}

// GasCostWei returns the total gas cost in wei as an exact rational.
func (t *TransactionTrace) GasCostWei() *big.Rat {
	if t.GasPriceWei == nil {
		return new(big.Rat)
	}
	cost := new(big.Int).Mul(new(big.Int).SetUint64(t.GasUsed), t.GasPriceWei)
	return new(big.Rat).SetInt(cost)
}

// WalkFrames visits every frame depth-first in execution order. The visitor
// returns false to skip the frame's subtree.
func WalkFrames(root *CallFrame, visit func(*CallFrame) bool) {
	if root == nil {
		return
	}
	if !visit(root) {
		return
	}
	for _, child := range root.Children {
		WalkFrames(child, visit)
	}
}

// ValidateTrace checks the trace_index ordering invariant: depth-first
// traversal must observe strictly increasing indexes.
func ValidateTrace(t *TransactionTrace) error {
	if t == nil || t.Frames == nil {
		return nil
	}
	last := int64(-1)
	ok := true
	WalkFrames(t.Frames, func(f *CallFrame) bool {
		if int64(f.TraceIndex) <= last {
			ok = false
			return false
		}
		last = int64(f.TraceIndex)
		return true
	})
	if !ok {
		return ErrMalformedTrace
	}
	return nil
}
