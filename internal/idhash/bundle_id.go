package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeBundleID computes a deterministic bundle identifier using SHA256.
// Formula: SHA256(kind|block_number|tx_hash_1,tx_hash_2,...)
// Returns hex-encoded hash (64 characters).
func ComputeBundleID(kind string, blockNumber uint64, txHashes []string) string {
	data := fmt.Sprintf("%s|%d|%s",
		kind,
		blockNumber,
		strings.Join(txHashes, ","),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
