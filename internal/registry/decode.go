package registry

import (
	"fmt"
	"math/big"

	"evm-mev-lab/internal/domain"
)

const wordSize = 32

// DecodeError reports a malformed payload under a matched selector. It is
// contained to the one frame it occurred in; callers convert it into the
// Unrecognized outcome at the frame boundary.
type DecodeError struct {
	Protocol domain.Protocol
	Call     string
	Reason   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s.%s: %s", e.Protocol, e.Call, e.Reason)
}

// decodeArgs decodes the ABI-encoded argument words following the selector.
// Every argument, dynamic ones included, occupies one 32-byte head word;
// dynamic content past the head is not interpreted.
func decodeArgs(schema CallSchema, protocol domain.Protocol, payload []byte) ([]domain.DecodedArg, error) {
	need := len(schema.Args) * wordSize
	if len(payload) < need {
		return nil, &DecodeError{
			Protocol: protocol,
			Call:     schema.Name,
			Reason:   fmt.Sprintf("payload %d bytes, need %d", len(payload), need),
		}
	}

	args := make([]domain.DecodedArg, 0, len(schema.Args))
	for i, spec := range schema.Args {
		word := payload[i*wordSize : (i+1)*wordSize]
		arg := domain.DecodedArg{Name: spec.Name, Kind: spec.Kind}
		switch spec.Kind {
		case domain.ArgAddress:
			arg.Addr = wordToAddress(word)
		case domain.ArgUint256, domain.ArgUint160, domain.ArgUint128:
			arg.Int = new(big.Int).SetBytes(word)
		case domain.ArgInt256, domain.ArgInt24:
			arg.Int = wordToSigned(word)
		case domain.ArgBool:
			arg.Bool = word[wordSize-1] != 0
		case domain.ArgBytes:
			// head word is the tail offset; content is opaque here
		default:
			return nil, &DecodeError{
				Protocol: protocol,
				Call:     schema.Name,
				Reason:   fmt.Sprintf("unsupported argument kind %q", spec.Kind),
			}
		}
		args = append(args, arg)
	}
	return args, nil
}

// wordToAddress takes the low 20 bytes of a word.
func wordToAddress(word []byte) domain.Address {
	return domain.HexToAddress(fmt.Sprintf("%040x", word[12:]))
}

// wordToSigned interprets a word as two's-complement.
func wordToSigned(word []byte) *big.Int {
	v := new(big.Int).SetBytes(word)
	if word[0]&0x80 != 0 {
		max := new(big.Int).Lsh(big.NewInt(1), 256)
		v.Sub(v, max)
	}
	return v
}

// EncodeArgs re-encodes decoded arguments per the schema. For static
// schemas this is the inverse of decodeArgs.
func EncodeArgs(schema CallSchema, args []domain.DecodedArg) ([]byte, error) {
	if len(args) != len(schema.Args) {
		return nil, fmt.Errorf("encode %s: %d args, schema has %d", schema.Name, len(args), len(schema.Args))
	}
	out := make([]byte, len(args)*wordSize)
	for i, arg := range args {
		word := out[i*wordSize : (i+1)*wordSize]
		switch arg.Kind {
		case domain.ArgAddress:
			b, err := addressBytes(arg.Addr)
			if err != nil {
				return nil, err
			}
			copy(word[12:], b)
		case domain.ArgUint256, domain.ArgUint160, domain.ArgUint128:
			arg.Int.FillBytes(word)
		case domain.ArgInt256, domain.ArgInt24:
			v := arg.Int
			if v.Sign() < 0 {
				max := new(big.Int).Lsh(big.NewInt(1), 256)
				v = new(big.Int).Add(v, max)
			}
			v.FillBytes(word)
		case domain.ArgBool:
			if arg.Bool {
				word[wordSize-1] = 1
			}
		case domain.ArgBytes:
			// offset word left zero; content not carried
		default:
			return nil, fmt.Errorf("encode %s: unsupported argument kind %q", schema.Name, arg.Kind)
		}
	}
	return out, nil
}

func addressBytes(a domain.Address) ([]byte, error) {
	s := string(a)
	if len(s) >= 2 && s[:2] == "0x" {
		s = s[2:]
	}
	if len(s) != 40 {
		return nil, fmt.Errorf("address %q: want 40 hex chars", a)
	}
	b := make([]byte, 20)
	for i := 0; i < 20; i++ {
		hi, ok1 := hexNibble(s[2*i])
		lo, ok2 := hexNibble(s[2*i+1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("address %q: invalid hex", a)
		}
		b[i] = hi<<4 | lo
	}
	return b, nil
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
