package domain

// Protocol identifies the protocol family a contract belongs to. Binding
// identity determines attribution; ABI-identical protocols (UniswapV2 and
// SushiSwapV2) share decode schemas but keep distinct identifiers.
type Protocol string

const (
	ProtocolUniswapV2   Protocol = "uniswap_v2"
	ProtocolUniswapV3   Protocol = "uniswap_v3"
	ProtocolSushiSwapV2 Protocol = "sushiswap_v2"
	ProtocolERC20       Protocol = "erc20"
	ProtocolUnknown     Protocol = "unknown"
)

// String returns the string representation of Protocol.
func (p Protocol) String() string {
	return string(p)
}
