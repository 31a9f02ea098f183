package registry

import "golang.org/x/crypto/sha3"

// Selector computes the 4-byte function selector: the leading bytes of the
// keccak-256 hash of the canonical signature.
func Selector(signature string) [4]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	var sel [4]byte
	copy(sel[:], h.Sum(nil)[:4])
	return sel
}
