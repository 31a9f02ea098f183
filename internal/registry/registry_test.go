package registry

import (
	"errors"
	"math/big"
	"testing"

	"evm-mev-lab/internal/domain"
)

var (
	poolV2 = domain.HexToAddress("0x1111111111111111111111111111111111111111")
	poolV3 = domain.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenA = domain.HexToAddress("0x3333333333333333333333333333333333333333")
	userA  = domain.HexToAddress("0x4444444444444444444444444444444444444444")
)

func testRegistry() *Registry {
	return New([]Entry{
		{Address: poolV2, Protocol: domain.ProtocolUniswapV2},
		{Address: poolV3, Protocol: domain.ProtocolUniswapV3},
	})
}

// calldata builds selector-prefixed input for a schema.
func calldata(t *testing.T, schema CallSchema, args []domain.DecodedArg) []byte {
	t.Helper()
	body, err := EncodeArgs(schema, args)
	if err != nil {
		t.Fatalf("EncodeArgs failed: %v", err)
	}
	sel := Selector(schema.Signature())
	return append(sel[:], body...)
}

func findSchema(t *testing.T, schemas []CallSchema, name string) CallSchema {
	t.Helper()
	for _, s := range schemas {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("schema %q not found", name)
	return CallSchema{}
}

func TestSelector_KnownValues(t *testing.T) {
	// erc20 transfer selector is the canonical 0xa9059cbb
	sel := Selector("transfer(address,uint256)")
	want := [4]byte{0xa9, 0x05, 0x9c, 0xbb}
	if sel != want {
		t.Errorf("transfer selector: got %x, want %x", sel, want)
	}
}

func TestDecode_V2Swap(t *testing.T) {
	r := testRegistry()
	schema := findSchema(t, uniswapV2Schemas(), "swap")

	frame := &domain.CallFrame{
		Contract: poolV2,
		Caller:   userA,
		Input: calldata(t, schema, []domain.DecodedArg{
			{Name: "amount0Out", Kind: domain.ArgUint256, Int: big.NewInt(0)},
			{Name: "amount1Out", Kind: domain.ArgUint256, Int: big.NewInt(500)},
			{Name: "to", Kind: domain.ArgAddress, Addr: userA},
			{Name: "data", Kind: domain.ArgBytes},
		}),
	}

	call, err := r.Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if call.Protocol != domain.ProtocolUniswapV2 {
		t.Errorf("protocol: got %s, want %s", call.Protocol, domain.ProtocolUniswapV2)
	}
	if call.Kind != domain.CallSwap {
		t.Errorf("kind: got %s, want %s", call.Kind, domain.CallSwap)
	}

	out1, ok := call.Arg("amount1Out")
	if !ok || out1.Int.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("amount1Out: got %v, want 500", out1.Int)
	}
	to, ok := call.Arg("to")
	if !ok || to.Addr != userA {
		t.Errorf("to: got %s, want %s", to.Addr, userA)
	}
}

func TestDecode_UnknownAddressIsUnrecognized(t *testing.T) {
	r := testRegistry()
	schema := findSchema(t, uniswapV2Schemas(), "swap")

	frame := &domain.CallFrame{
		Contract: tokenA, // not registered, not an ERC20 transfer selector
		Input: calldata(t, schema, []domain.DecodedArg{
			{Name: "amount0Out", Kind: domain.ArgUint256, Int: big.NewInt(1)},
			{Name: "amount1Out", Kind: domain.ArgUint256, Int: big.NewInt(2)},
			{Name: "to", Kind: domain.ArgAddress, Addr: userA},
			{Name: "data", Kind: domain.ArgBytes},
		}),
	}

	call, err := r.Decode(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if call.Recognized() {
		t.Errorf("expected Unrecognized, got %s/%s", call.Protocol, call.Kind)
	}
}

func TestDecode_UnknownSelectorOnBoundAddress(t *testing.T) {
	r := testRegistry()

	sel := Selector("skim(address)")
	input := append(sel[:], make([]byte, 32)...)
	call, err := r.Decode(&domain.CallFrame{Contract: poolV2, Input: input})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if call.Recognized() {
		t.Errorf("selector without schema entry must be Unrecognized, got %s", call.Kind)
	}
}

func TestDecode_TruncatedPayload(t *testing.T) {
	r := testRegistry()
	schema := findSchema(t, uniswapV2Schemas(), "swap")
	sel := Selector(schema.Signature())

	// Matched selector, payload one word short of the schema layout.
	input := append(sel[:], make([]byte, 3*32)...)
	frame := &domain.CallFrame{Contract: poolV2, Input: input}

	_, err := r.Decode(frame)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}

	// Containment: DecodeFrame degrades the failure to Unrecognized.
	call := r.DecodeFrame(frame)
	if call.Recognized() {
		t.Errorf("DecodeFrame must contain decode failures, got %s", call.Kind)
	}
}

func TestDecode_ERC20ClassFallback(t *testing.T) {
	r := testRegistry()
	schema := findSchema(t, erc20Schemas(), "transfer")

	frame := &domain.CallFrame{
		Contract: tokenA, // unknown address; transfer selector still decodes
		Input: calldata(t, schema, []domain.DecodedArg{
			{Name: "to", Kind: domain.ArgAddress, Addr: userA},
			{Name: "amount", Kind: domain.ArgUint256, Int: big.NewInt(1234)},
		}),
	}

	call, err := r.Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if call.Kind != domain.CallTransfer || call.Protocol != domain.ProtocolERC20 {
		t.Errorf("got %s/%s, want erc20/transfer", call.Protocol, call.Kind)
	}
}

func TestDecode_RoundTripStaticSchema(t *testing.T) {
	r := testRegistry()
	schema := findSchema(t, uniswapV3Schemas(), "burn")

	args := []domain.DecodedArg{
		{Name: "tickLower", Kind: domain.ArgInt24, Int: big.NewInt(-887220)},
		{Name: "tickUpper", Kind: domain.ArgInt24, Int: big.NewInt(887220)},
		{Name: "amount", Kind: domain.ArgUint128, Int: big.NewInt(1_000_000)},
	}
	if !schema.Static() {
		t.Fatal("burn schema must be static")
	}

	frame := &domain.CallFrame{Contract: poolV3, Input: calldata(t, schema, args)}
	first, err := r.Decode(frame)
	if err != nil {
		t.Fatalf("first decode failed: %v", err)
	}

	// Re-encode the decoded arguments and decode again.
	reencoded, err := EncodeArgs(schema, first.Args)
	if err != nil {
		t.Fatalf("re-encode failed: %v", err)
	}
	sel := Selector(schema.Signature())
	second, err := r.Decode(&domain.CallFrame{Contract: poolV3, Input: append(sel[:], reencoded...)})
	if err != nil {
		t.Fatalf("second decode failed: %v", err)
	}

	if len(first.Args) != len(second.Args) {
		t.Fatalf("arg count mismatch: %d vs %d", len(first.Args), len(second.Args))
	}
	for i := range first.Args {
		a, b := first.Args[i], second.Args[i]
		if a.Name != b.Name || a.Kind != b.Kind || a.Int.Cmp(b.Int) != 0 {
			t.Errorf("arg %d mismatch: %+v vs %+v", i, a, b)
		}
	}
}

func TestAddressFilter(t *testing.T) {
	r := testRegistry()
	filter := r.AddressFilter()

	if !filter(poolV2) || !filter(poolV3) {
		t.Error("registered pools must pass the filter")
	}
	if filter(tokenA) {
		t.Error("unregistered address must not pass the filter")
	}
}
