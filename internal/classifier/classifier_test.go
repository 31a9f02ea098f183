package classifier

import (
	"math/big"
	"reflect"
	"testing"

	"evm-mev-lab/internal/domain"
	"evm-mev-lab/internal/registry"
)

var (
	pool    = domain.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	router  = domain.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	tokenX  = domain.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	tokenY  = domain.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	trader  = domain.HexToAddress("0x1000000000000000000000000000000000000001")
	someone = domain.HexToAddress("0x1000000000000000000000000000000000000002")
)

func testClassifier(t *testing.T, entries ...registry.Entry) *Classifier {
	t.Helper()
	if entries == nil {
		entries = []registry.Entry{{Address: pool, Protocol: domain.ProtocolUniswapV2}}
	}
	reg := registry.New(entries)
	tokens := map[domain.Address]domain.Token{
		tokenX: {Address: tokenX, Symbol: "TKX", Decimals: 0},
		tokenY: {Address: tokenY, Symbol: "TKY", Decimals: 0},
	}
	return New(reg, tokens)
}

func encode(t *testing.T, schemas []registry.CallSchema, name string, args []domain.DecodedArg) []byte {
	t.Helper()
	for _, s := range schemas {
		if s.Name != name {
			continue
		}
		body, err := registry.EncodeArgs(s, args)
		if err != nil {
			t.Fatalf("encode %s: %v", name, err)
		}
		sel := registry.Selector(s.Signature())
		return append(sel[:], body...)
	}
	t.Fatalf("no schema %q", name)
	return nil
}

// transferFrame builds an ERC20 transfer call from caller to `to`.
func transferFrame(t *testing.T, idx uint64, token, caller, to domain.Address, amount int64) *domain.CallFrame {
	return &domain.CallFrame{
		Contract:   token,
		Caller:     caller,
		Success:    true,
		TraceIndex: idx,
		Input: encode(t, registry.SchemasFor(domain.ProtocolERC20), "transfer", []domain.DecodedArg{
			{Name: "to", Kind: domain.ArgAddress, Addr: to},
			{Name: "amount", Kind: domain.ArgUint256, Int: big.NewInt(amount)},
		}),
	}
}

// swapFrame builds a V2 pool swap with the given transfer children.
func swapFrame(t *testing.T, idx uint64, poolAddr, caller, to domain.Address, children ...*domain.CallFrame) *domain.CallFrame {
	return &domain.CallFrame{
		Contract:   poolAddr,
		Caller:     caller,
		Success:    true,
		TraceIndex: idx,
		Children:   children,
		Input: encode(t, registry.SchemasFor(domain.ProtocolUniswapV2), "swap", []domain.DecodedArg{
			{Name: "amount0Out", Kind: domain.ArgUint256, Int: big.NewInt(0)},
			{Name: "amount1Out", Kind: domain.ArgUint256, Int: big.NewInt(0)},
			{Name: "to", Kind: domain.ArgAddress, Addr: to},
			{Name: "data", Kind: domain.ArgBytes},
		}),
	}
}

func trace(root *domain.CallFrame) *domain.TransactionTrace {
	return &domain.TransactionTrace{
		Hash:        "0xtx1",
		Index:       0,
		Sender:      trader,
		GasUsed:     100_000,
		GasPriceWei: big.NewInt(10),
		Frames:      root,
	}
}

func TestClassify_SwapAbsorbsChildTransfers(t *testing.T) {
	c := testClassifier(t)

	root := swapFrame(t, 0, pool, trader, trader,
		transferFrame(t, 1, tokenX, trader, pool, 10),
		transferFrame(t, 2, tokenY, pool, trader, 500),
	)

	tx, err := c.ClassifyTransaction(trace(root), nil)
	if err != nil {
		t.Fatalf("ClassifyTransaction: %v", err)
	}

	if len(tx.Actions) != 1 {
		t.Fatalf("expected 1 action (transfers absorbed), got %d", len(tx.Actions))
	}
	swap, ok := tx.Actions[0].(domain.Swap)
	if !ok {
		t.Fatalf("expected Swap, got %T", tx.Actions[0])
	}
	if swap.TokenIn.Token.Address != tokenX || swap.TokenIn.Amount.Cmp(big.NewRat(10, 1)) != 0 {
		t.Errorf("token in: got %s %s", swap.TokenIn.Token.Address, swap.TokenIn.Amount)
	}
	if swap.TokenOut.Token.Address != tokenY || swap.TokenOut.Amount.Cmp(big.NewRat(500, 1)) != 0 {
		t.Errorf("token out: got %s %s", swap.TokenOut.Token.Address, swap.TokenOut.Amount)
	}
	if swap.Pool != pool || swap.Protocol != domain.ProtocolUniswapV2 {
		t.Errorf("attribution: pool=%s protocol=%s", swap.Pool, swap.Protocol)
	}
}

func TestClassify_FailedSubtreeEmitsNothing(t *testing.T) {
	c := testClassifier(t)

	failed := swapFrame(t, 1, pool, trader, trader,
		transferFrame(t, 2, tokenX, trader, pool, 10),
	)
	failed.Success = false

	root := &domain.CallFrame{
		Contract:   router,
		Caller:     trader,
		Success:    true,
		TraceIndex: 0,
		Children: []*domain.CallFrame{
			failed,
			transferFrame(t, 3, tokenY, trader, someone, 7),
		},
	}

	tx, err := c.ClassifyTransaction(trace(root), nil)
	if err != nil {
		t.Fatalf("ClassifyTransaction: %v", err)
	}

	// Only the successful sibling transfer survives; nothing from the
	// reverted swap or its descendant.
	if len(tx.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(tx.Actions))
	}
	tr, ok := tx.Actions[0].(domain.Transfer)
	if !ok || tr.Token.Address != tokenY {
		t.Errorf("expected surviving tokenY transfer, got %#v", tx.Actions[0])
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := testClassifier(t)

	root := swapFrame(t, 0, pool, trader, trader,
		transferFrame(t, 1, tokenX, trader, pool, 10),
		transferFrame(t, 2, tokenY, pool, trader, 500),
	)

	first, err := c.ClassifyTransaction(trace(root), nil)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := c.ClassifyTransaction(trace(root), nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("classifying the same trace twice must yield identical output")
	}
}

func TestClassify_InnermostFrameClaimsTransfers(t *testing.T) {
	// Router-style wrapper: an outer bound pool whose only children are a
	// nested pool call and its transfers. The nested (innermost) pool
	// claims the transfers touching it; the wrapper gets none.
	wrapper := domain.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee1111")
	c := testClassifier(t,
		registry.Entry{Address: pool, Protocol: domain.ProtocolUniswapV2},
		registry.Entry{Address: wrapper, Protocol: domain.ProtocolUniswapV2},
	)

	inner := swapFrame(t, 1, pool, wrapper, trader,
		transferFrame(t, 2, tokenX, wrapper, pool, 10),
		transferFrame(t, 3, tokenY, pool, trader, 500),
	)
	outer := swapFrame(t, 0, wrapper, trader, trader, inner)

	tx, err := c.ClassifyTransaction(trace(outer), nil)
	if err != nil {
		t.Fatalf("ClassifyTransaction: %v", err)
	}

	var swaps []domain.Swap
	var unclassified int
	for _, a := range tx.Actions {
		switch v := a.(type) {
		case domain.Swap:
			swaps = append(swaps, v)
		case domain.Unclassified:
			unclassified++
		}
	}
	if len(swaps) != 1 {
		t.Fatalf("expected exactly 1 swap, got %d", len(swaps))
	}
	if swaps[0].Pool != pool {
		t.Errorf("swap attributed to %s, want innermost pool %s", swaps[0].Pool, pool)
	}
	// The wrapper frame resolves to no token movement of its own.
	if unclassified != 1 {
		t.Errorf("expected the wrapper to be unclassified, got %d", unclassified)
	}
}

func TestClassify_NativeValueTransfer(t *testing.T) {
	c := testClassifier(t)

	root := &domain.CallFrame{
		Contract:   someone,
		Caller:     trader,
		Success:    true,
		TraceIndex: 0,
		Value:      big.NewInt(2_000_000_000_000_000_000), // 2 ETH
	}

	tx, err := c.ClassifyTransaction(trace(root), nil)
	if err != nil {
		t.Fatalf("ClassifyTransaction: %v", err)
	}
	if len(tx.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(tx.Actions))
	}
	tr, ok := tx.Actions[0].(domain.Transfer)
	if !ok {
		t.Fatalf("expected Transfer, got %T", tx.Actions[0])
	}
	if tr.Token.Address != domain.NativeAsset {
		t.Errorf("token: got %s, want native asset", tr.Token.Address)
	}
	if tr.Amount.Cmp(big.NewRat(2, 1)) != 0 {
		t.Errorf("amount: got %s, want 2", tr.Amount)
	}
}

func TestClassify_ActionCountBoundedByFrames(t *testing.T) {
	c := testClassifier(t)

	root := swapFrame(t, 0, pool, trader, trader,
		transferFrame(t, 1, tokenX, trader, pool, 10),
		transferFrame(t, 2, tokenY, pool, trader, 500),
		&domain.CallFrame{Contract: someone, Caller: pool, Success: true, TraceIndex: 3},
	)

	frames := 0
	domain.WalkFrames(root, func(*domain.CallFrame) bool { frames++; return true })

	set, _, err := c.ClassifyBlock(1, []*domain.TransactionTrace{trace(root)}, nil)
	if err != nil {
		t.Fatalf("ClassifyBlock: %v", err)
	}
	if set.ActionCount() > frames {
		t.Errorf("action count %d exceeds frame count %d", set.ActionCount(), frames)
	}
}

func TestClassify_MalformedTraceIsFatalForBlock(t *testing.T) {
	c := testClassifier(t)

	// Child index not greater than parent's: ordering invariant broken.
	root := &domain.CallFrame{
		Contract:   pool,
		Caller:     trader,
		Success:    true,
		TraceIndex: 5,
		Children: []*domain.CallFrame{
			{Contract: tokenX, Caller: pool, Success: true, TraceIndex: 2},
		},
	}

	_, _, err := c.ClassifyBlock(1, []*domain.TransactionTrace{trace(root)}, nil)
	if err == nil {
		t.Fatal("expected error for non-monotonic trace index")
	}
}

func TestClassify_ContainedDecodeFailure(t *testing.T) {
	c := testClassifier(t)

	// Matched swap selector with a truncated payload: the frame degrades
	// to Unrecognized but its sibling still classifies.
	sel := registry.Selector("swap(uint256,uint256,address,bytes)")
	broken := &domain.CallFrame{
		Contract:   pool,
		Caller:     trader,
		Success:    true,
		TraceIndex: 1,
		Input:      append(sel[:], make([]byte, 16)...),
	}
	root := &domain.CallFrame{
		Contract:   router,
		Caller:     trader,
		Success:    true,
		TraceIndex: 0,
		Children: []*domain.CallFrame{
			broken,
			transferFrame(t, 2, tokenX, trader, someone, 3),
		},
	}

	stats := &Stats{}
	tx, err := c.ClassifyTransaction(trace(root), stats)
	if err != nil {
		t.Fatalf("decode failure must not abort the transaction: %v", err)
	}
	if len(stats.DecodeFailures) != 1 || stats.DecodeFailures[0] != 1 {
		t.Errorf("expected decode failure recorded for trace index 1, got %v", stats.DecodeFailures)
	}
	if len(tx.Actions) != 1 {
		t.Fatalf("sibling transfer must survive, got %d actions", len(tx.Actions))
	}
}
