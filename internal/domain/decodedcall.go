package domain

import "math/big"

// CallKind classifies what a decoded contract call does economically.
type CallKind string

const (
	CallSwap         CallKind = "swap"
	CallMint         CallKind = "mint"
	CallBurn         CallKind = "burn"
	CallCollect      CallKind = "collect"
	CallFlash        CallKind = "flash"
	CallTransfer     CallKind = "transfer"
	CallTransferFrom CallKind = "transfer_from"
	CallUnrecognized CallKind = "unrecognized"
)

// ArgKind is the ABI type of a decoded argument.
type ArgKind string

const (
	ArgAddress ArgKind = "address"
	ArgUint256 ArgKind = "uint256"
	ArgInt256  ArgKind = "int256"
	ArgUint160 ArgKind = "uint160"
	ArgUint128 ArgKind = "uint128"
	ArgInt24   ArgKind = "int24"
	ArgBool    ArgKind = "bool"
	ArgBytes   ArgKind = "bytes"
)

// DecodedArg is one strongly-typed argument of a decoded call. Exactly one
// of the value fields is meaningful, selected by Kind.
type DecodedArg struct {
	Name string
	Kind ArgKind
	Addr Address  // ArgAddress
	Int  *big.Int // integer kinds; sign-extended for int types
	Bool bool     // ArgBool
}

// DecodedCall is the result of matching a CallFrame against a protocol
// binding. An unmatched frame yields the Unrecognized call, never an error.
type DecodedCall struct {
	Protocol Protocol
	Kind     CallKind
	Name     string // function name from the schema, e.g. "swap"
	Args     []DecodedArg
}

// Recognized reports whether the call matched a binding schema.
func (c DecodedCall) Recognized() bool {
	return c.Kind != CallUnrecognized
}

// Arg returns the named argument, or false when absent.
func (c DecodedCall) Arg(name string) (DecodedArg, bool) {
	for _, a := range c.Args {
		if a.Name == name {
			return a, true
		}
	}
	return DecodedArg{}, false
}

// UnrecognizedCall is the explicit non-match outcome.
func UnrecognizedCall() DecodedCall {
	return DecodedCall{Protocol: ProtocolUnknown, Kind: CallUnrecognized}
}
