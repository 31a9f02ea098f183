// Package classifier turns decoded call trees into ordered normalized
// action sequences. Classification is pure: identical trace input always
// yields identical output, and no I/O happens here.
package classifier

import (
	"math/big"
	"sort"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/registry"
)

// Classifier normalizes transaction call trees into action sequences.
type Classifier struct {
	registry *registry.Registry
	tokens   map[domain.Address]domain.Token
}

// New creates a classifier. tokens supplies decimals/symbols for amount
// scaling; tokens absent from the map are scaled with 18 decimals.
func New(reg *registry.Registry, tokens map[domain.Address]domain.Token) *Classifier {
	if tokens == nil {
		tokens = make(map[domain.Address]domain.Token)
	}
	return &Classifier{registry: reg, tokens: tokens}
}

// Stats records contained per-frame decode failures so the caller can log
// them with block/transaction identifiers. Not part of the action output.
type Stats struct {
	DecodeFailures []uint64 // trace indexes of frames degraded to Unrecognized
	FramesVisited  int
}

// ClassifyBlock classifies every transaction of a block and assembles the
// BlockActionSet. A malformed trace fails the whole block.
func (c *Classifier) ClassifyBlock(blockNumber uint64, traces []*domain.TransactionTrace, meta *domain.Metadata) (*domain.BlockActionSet, *Stats, error) {
	stats := &Stats{}
	set := &domain.BlockActionSet{BlockNumber: blockNumber, Metadata: meta}

	for _, trace := range traces {
		tx, err := c.ClassifyTransaction(trace, stats)
		if err != nil {
			return nil, stats, err
		}
		set.Transactions = append(set.Transactions, *tx)
	}

	sort.Slice(set.Transactions, func(i, j int) bool {
		return set.Transactions[i].TxIndex < set.Transactions[j].TxIndex
	})

	if err := set.Validate(); err != nil {
		return nil, stats, err
	}
	return set, stats, nil
}

// ClassifyTransaction normalizes one transaction's call tree.
func (c *Classifier) ClassifyTransaction(trace *domain.TransactionTrace, stats *Stats) (*domain.TransactionActions, error) {
	if stats == nil {
		stats = &Stats{}
	}
	if err := domain.ValidateTrace(trace); err != nil {
		return nil, err
	}

	actions := c.classifyFrame(trace.Frames, stats)
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Base().TraceIndex < actions[j].Base().TraceIndex
	})

	return &domain.TransactionActions{
		TxHash:      trace.Hash,
		TxIndex:     trace.Index,
		Sender:      trace.Sender,
		GasUsed:     trace.GasUsed,
		GasPriceWei: trace.GasPriceWei,
		Actions:     actions,
	}, nil
}

// classifyFrame walks one frame depth-first. Children are classified
// first so that the innermost protocol frame claims its own transfers;
// a wrapping router never sees transfers a nested pool call absorbed.
func (c *Classifier) classifyFrame(frame *domain.CallFrame, stats *Stats) []domain.Action {
	if frame == nil {
		return nil
	}
	// A reverted frame and its whole subtree have no economic effect.
	if !frame.Success {
		return nil
	}
	stats.FramesVisited++

	var childActions []domain.Action
	for _, child := range frame.Children {
		childActions = append(childActions, c.classifyFrame(child, stats)...)
	}

	call, err := c.registry.Decode(frame)
	if err != nil {
		stats.DecodeFailures = append(stats.DecodeFailures, frame.TraceIndex)
		call = domain.UnrecognizedCall()
	}

	switch call.Kind {
	case domain.CallSwap, domain.CallMint, domain.CallBurn, domain.CallCollect, domain.CallFlash:
		action, rest := c.buildProtocolAction(frame, call, childActions)
		return append([]domain.Action{action}, rest...)

	case domain.CallTransfer, domain.CallTransferFrom:
		return append([]domain.Action{c.buildTokenTransfer(frame, call)}, childActions...)

	default:
		if frame.Value != nil && frame.Value.Sign() > 0 {
			return append([]domain.Action{c.buildNativeTransfer(frame)}, childActions...)
		}
		// Internal bookkeeping: no action of its own.
		return childActions
	}
}

// buildProtocolAction emits the action for a protocol frame, absorbing the
// already-classified child transfers that satisfy its token movement.
// Absorbed transfers do not appear as independent actions.
func (c *Classifier) buildProtocolAction(frame *domain.CallFrame, call domain.DecodedCall, childActions []domain.Action) (domain.Action, []domain.Action) {
	incoming, outgoing, rest := splitPoolTransfers(frame.Contract, childActions)

	base := domain.ActionBase{
		TraceIndex: frame.TraceIndex,
		Protocol:   call.Protocol,
		Pool:       frame.Contract,
		From:       frame.Caller,
		To:         recipientOf(call, frame.Caller),
	}

	switch call.Kind {
	case domain.CallSwap:
		if len(incoming) == 0 || len(outgoing) == 0 {
			// Token movement unresolvable without the transfer legs.
			return domain.Unclassified{ActionBase: base}, rest
		}
		in, out := incoming[0], outgoing[0]
		return domain.Swap{
			ActionBase: base,
			TokenIn:    domain.TokenAmount{Token: in.Token, Amount: in.Amount},
			TokenOut:   domain.TokenAmount{Token: out.Token, Amount: out.Amount},
		}, rest

	case domain.CallMint:
		return domain.Mint{
			ActionBase: base,
			TickLower:  tickOf(call, "tickLower"),
			TickUpper:  tickOf(call, "tickUpper"),
			Liquidity:  liquidityOf(call),
			Deposited:  amountsOf(incoming),
		}, rest

	case domain.CallBurn:
		return domain.Burn{
			ActionBase: base,
			TickLower:  tickOf(call, "tickLower"),
			TickUpper:  tickOf(call, "tickUpper"),
			Liquidity:  liquidityOf(call),
			Withdrawn:  amountsOf(outgoing),
		}, rest

	case domain.CallCollect:
		return domain.Collect{
			ActionBase: base,
			TickLower:  tickOf(call, "tickLower"),
			TickUpper:  tickOf(call, "tickUpper"),
			Collected:  amountsOf(outgoing),
		}, rest

	default: // domain.CallFlash
		return domain.FlashLoan{
			ActionBase: base,
			Borrowed:   amountsOf(outgoing),
			Repaid:     amountsOf(incoming),
		}, rest
	}
}

// buildTokenTransfer emits a Transfer for an ERC20 transfer/transferFrom
// frame. The token is the called contract itself.
func (c *Classifier) buildTokenTransfer(frame *domain.CallFrame, call domain.DecodedCall) domain.Transfer {
	from := frame.Caller
	if call.Kind == domain.CallTransferFrom {
		if a, ok := call.Arg("from"); ok {
			from = a.Addr
		}
	}
	to := domain.Address("")
	if a, ok := call.Arg("to"); ok {
		to = a.Addr
	}

	token := c.tokenFor(frame.Contract)
	amount := new(big.Rat)
	if a, ok := call.Arg("amount"); ok && a.Int != nil {
		amount = domain.ScaleDecimals(domain.RatFromInt(a.Int), token.Decimals)
	}

	return domain.Transfer{
		ActionBase: domain.ActionBase{
			TraceIndex: frame.TraceIndex,
			Protocol:   domain.ProtocolERC20,
			Pool:       frame.Contract,
			From:       from,
			To:         to,
		},
		Token:  token,
		Amount: amount,
		Fee:    new(big.Rat),
	}
}

// buildNativeTransfer emits a Transfer for a plain value-carrying frame
// with no matched protocol schema.
func (c *Classifier) buildNativeTransfer(frame *domain.CallFrame) domain.Transfer {
	return domain.Transfer{
		ActionBase: domain.ActionBase{
			TraceIndex: frame.TraceIndex,
			Protocol:   domain.ProtocolUnknown,
			Pool:       frame.Contract,
			From:       frame.Caller,
			To:         frame.Contract,
		},
		Token:  domain.Token{Address: domain.NativeAsset, Symbol: "ETH", Decimals: 18},
		Amount: domain.ScaleDecimals(domain.RatFromInt(frame.Value), 18),
		Fee:    new(big.Rat),
	}
}

func (c *Classifier) tokenFor(addr domain.Address) domain.Token {
	if t, ok := c.tokens[addr]; ok {
		return t
	}
	return domain.Token{Address: addr, Decimals: 18}
}

// splitPoolTransfers partitions unclaimed child transfers into those
// moving tokens into the pool, out of the pool, and everything else.
// Pool-touching transfers are the ones the protocol action absorbs.
func splitPoolTransfers(pool domain.Address, actions []domain.Action) (incoming, outgoing []domain.Transfer, rest []domain.Action) {
	for _, a := range actions {
		t, ok := a.(domain.Transfer)
		if !ok {
			rest = append(rest, a)
			continue
		}
		switch {
		case t.To == pool:
			incoming = append(incoming, t)
		case t.From == pool:
			outgoing = append(outgoing, t)
		default:
			rest = append(rest, a)
		}
	}
	return incoming, outgoing, rest
}

func recipientOf(call domain.DecodedCall, fallback domain.Address) domain.Address {
	for _, name := range []string{"recipient", "to"} {
		if a, ok := call.Arg(name); ok && a.Addr != "" {
			return a.Addr
		}
	}
	return fallback
}

func tickOf(call domain.DecodedCall, name string) int32 {
	if a, ok := call.Arg(name); ok && a.Int != nil {
		return int32(a.Int.Int64())
	}
	return 0
}

func liquidityOf(call domain.DecodedCall) *big.Int {
	if a, ok := call.Arg("amount"); ok && a.Int != nil {
		return new(big.Int).Set(a.Int)
	}
	return nil
}

func amountsOf(transfers []domain.Transfer) []domain.TokenAmount {
	out := make([]domain.TokenAmount, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, domain.TokenAmount{Token: t.Token, Amount: t.Amount})
	}
	return out
}
