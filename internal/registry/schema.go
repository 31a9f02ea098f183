package registry

import (
	"evm-mev-lab/internal/domain"
)

// ArgSpec declares one argument of a decodable function.
type ArgSpec struct {
	Name string
	Kind domain.ArgKind
}

// CallSchema is the decode table entry for one function selector: the
// canonical name, the economic call kind, and the argument layout.
// Dynamic `bytes` arguments are permitted only in the tail and their
// content is not decoded.
type CallSchema struct {
	Name string
	Kind domain.CallKind
	Args []ArgSpec
}

// Signature returns the canonical ABI signature, e.g.
// "swap(uint256,uint256,address,bytes)".
func (s CallSchema) Signature() string {
	sig := s.Name + "("
	for i, a := range s.Args {
		if i > 0 {
			sig += ","
		}
		sig += string(a.Kind)
	}
	return sig + ")"
}

// Static reports whether every argument occupies a fixed head word, which
// makes decode/encode a bijection over the argument tuple.
func (s CallSchema) Static() bool {
	for _, a := range s.Args {
		if a.Kind == domain.ArgBytes {
			return false
		}
	}
	return true
}

// uniswapV2Schemas covers the V2 pair ABI. SushiSwapV2 pairs are
// ABI-identical and share this table under their own protocol identity.
func uniswapV2Schemas() []CallSchema {
	return []CallSchema{
		{Name: "swap", Kind: domain.CallSwap, Args: []ArgSpec{
			{Name: "amount0Out", Kind: domain.ArgUint256},
			{Name: "amount1Out", Kind: domain.ArgUint256},
			{Name: "to", Kind: domain.ArgAddress},
			{Name: "data", Kind: domain.ArgBytes},
		}},
		{Name: "mint", Kind: domain.CallMint, Args: []ArgSpec{
			{Name: "to", Kind: domain.ArgAddress},
		}},
		{Name: "burn", Kind: domain.CallBurn, Args: []ArgSpec{
			{Name: "to", Kind: domain.ArgAddress},
		}},
	}
}

// uniswapV3Schemas covers the V3 pool ABI.
func uniswapV3Schemas() []CallSchema {
	return []CallSchema{
		{Name: "swap", Kind: domain.CallSwap, Args: []ArgSpec{
			{Name: "recipient", Kind: domain.ArgAddress},
			{Name: "zeroForOne", Kind: domain.ArgBool},
			{Name: "amountSpecified", Kind: domain.ArgInt256},
			{Name: "sqrtPriceLimitX96", Kind: domain.ArgUint160},
			{Name: "data", Kind: domain.ArgBytes},
		}},
		{Name: "mint", Kind: domain.CallMint, Args: []ArgSpec{
			{Name: "recipient", Kind: domain.ArgAddress},
			{Name: "tickLower", Kind: domain.ArgInt24},
			{Name: "tickUpper", Kind: domain.ArgInt24},
			{Name: "amount", Kind: domain.ArgUint128},
			{Name: "data", Kind: domain.ArgBytes},
		}},
		{Name: "burn", Kind: domain.CallBurn, Args: []ArgSpec{
			{Name: "tickLower", Kind: domain.ArgInt24},
			{Name: "tickUpper", Kind: domain.ArgInt24},
			{Name: "amount", Kind: domain.ArgUint128},
		}},
		{Name: "collect", Kind: domain.CallCollect, Args: []ArgSpec{
			{Name: "recipient", Kind: domain.ArgAddress},
			{Name: "tickLower", Kind: domain.ArgInt24},
			{Name: "tickUpper", Kind: domain.ArgInt24},
			{Name: "amount0Requested", Kind: domain.ArgUint128},
			{Name: "amount1Requested", Kind: domain.ArgUint128},
		}},
		{Name: "flash", Kind: domain.CallFlash, Args: []ArgSpec{
			{Name: "recipient", Kind: domain.ArgAddress},
			{Name: "amount0", Kind: domain.ArgUint256},
			{Name: "amount1", Kind: domain.ArgUint256},
			{Name: "data", Kind: domain.ArgBytes},
		}},
	}
}

// erc20Schemas covers the transfer surface of the ERC20 ABI. It backs the
// address-class binding: any contract, known or not, decodes these.
func erc20Schemas() []CallSchema {
	return []CallSchema{
		{Name: "transfer", Kind: domain.CallTransfer, Args: []ArgSpec{
			{Name: "to", Kind: domain.ArgAddress},
			{Name: "amount", Kind: domain.ArgUint256},
		}},
		{Name: "transferFrom", Kind: domain.CallTransferFrom, Args: []ArgSpec{
			{Name: "from", Kind: domain.ArgAddress},
			{Name: "to", Kind: domain.ArgAddress},
			{Name: "amount", Kind: domain.ArgUint256},
		}},
	}
}

// SchemasFor returns the decode table for a protocol identifier, or nil
// for protocols without a static table.
func SchemasFor(p domain.Protocol) []CallSchema {
	switch p {
	case domain.ProtocolUniswapV2, domain.ProtocolSushiSwapV2:
		return uniswapV2Schemas()
	case domain.ProtocolUniswapV3:
		return uniswapV3Schemas()
	case domain.ProtocolERC20:
		return erc20Schemas()
	default:
		return nil
	}
}
