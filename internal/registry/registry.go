// Package registry maps contract addresses to protocol bindings and
// decodes 4-byte-selector call data against each binding's schema table.
// The registry is built once at startup and is read-only afterwards, which
// makes unsynchronized concurrent reads safe.
package registry

import (
	"evm-mev-lab/internal/domain"
)

// Binding ties a protocol identity to its selector decode table.
type Binding struct {
	Protocol domain.Protocol
	schemas  map[[4]byte]CallSchema
}

// NewBinding builds a binding from a schema list, keying each schema by
// the keccak selector of its canonical signature.
func NewBinding(protocol domain.Protocol, schemas []CallSchema) *Binding {
	b := &Binding{Protocol: protocol, schemas: make(map[[4]byte]CallSchema, len(schemas))}
	for _, s := range schemas {
		b.schemas[Selector(s.Signature())] = s
	}
	return b
}

// Schema returns the decode entry for a selector.
func (b *Binding) Schema(sel [4]byte) (CallSchema, bool) {
	s, ok := b.schemas[sel]
	return s, ok
}

// Entry is one registry row: a known protocol contract address.
type Entry struct {
	Address  domain.Address
	Protocol domain.Protocol
}

// Registry is the process-wide source of truth for which addresses are
// known protocol contracts. Lookup order is exact address match first,
// then address-class bindings (ERC20 transfer surface).
type Registry struct {
	byAddress map[domain.Address]*Binding
	erc20     *Binding
}

// New builds a registry from entries. Entries with protocols that have no
// static schema table are ignored.
func New(entries []Entry) *Registry {
	r := &Registry{
		byAddress: make(map[domain.Address]*Binding, len(entries)),
		erc20:     NewBinding(domain.ProtocolERC20, erc20Schemas()),
	}
	bindings := make(map[domain.Protocol]*Binding)
	for _, e := range entries {
		schemas := SchemasFor(e.Protocol)
		if schemas == nil {
			continue
		}
		b, ok := bindings[e.Protocol]
		if !ok {
			b = NewBinding(e.Protocol, schemas)
			bindings[e.Protocol] = b
		}
		r.byAddress[domain.HexToAddress(string(e.Address))] = b
	}
	return r
}

// Lookup returns the binding for an exact contract address.
func (r *Registry) Lookup(addr domain.Address) (*Binding, bool) {
	b, ok := r.byAddress[addr]
	return b, ok
}

// Contains reports registry membership for an address.
func (r *Registry) Contains(addr domain.Address) bool {
	_, ok := r.byAddress[addr]
	return ok
}

// AddressFilter returns a predicate over addresses worth tracing, derived
// from registry membership. Handed to the trace source as a pre-filter.
func (r *Registry) AddressFilter() func(domain.Address) bool {
	return r.Contains
}

// Len returns the number of registered addresses.
func (r *Registry) Len() int {
	return len(r.byAddress)
}

// Decode matches a frame's selector against the bindings and decodes its
// arguments. No binding or no schema entry yields the Unrecognized call
// with a nil error; a malformed payload under a matched selector returns
// a *DecodeError.
func (r *Registry) Decode(frame *domain.CallFrame) (domain.DecodedCall, error) {
	sel, ok := frame.Selector()
	if !ok {
		return domain.UnrecognizedCall(), nil
	}

	binding, bound := r.byAddress[frame.Contract]
	if !bound {
		// Address-class fallback: any contract may be an ERC20 token.
		binding = r.erc20
	}

	schema, ok := binding.Schema(sel)
	if !ok {
		return domain.UnrecognizedCall(), nil
	}

	args, err := decodeArgs(schema, binding.Protocol, frame.Input[4:])
	if err != nil {
		return domain.UnrecognizedCall(), err
	}

	return domain.DecodedCall{
		Protocol: binding.Protocol,
		Kind:     schema.Kind,
		Name:     schema.Name,
		Args:     args,
	}, nil
}

// DecodeFrame is Decode with the per-frame containment applied: a decode
// failure degrades to Unrecognized so sibling and parent frames proceed.
func (r *Registry) DecodeFrame(frame *domain.CallFrame) domain.DecodedCall {
	call, err := r.Decode(frame)
	if err != nil {
		return domain.UnrecognizedCall()
	}
	return call
}
