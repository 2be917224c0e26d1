package bundle

import (
	"crypto/sha256"
	"encoding/binary"
)

// Bucket maps a context id deterministically into [0,100). It truncates a
// SHA-256 hash rather than using any language-specific hash so the mapping is
// stable across processes, restarts, and implementations.
func Bucket(contextID string) int {
	sum := sha256.Sum256([]byte(contextID))
	return int(binary.BigEndian.Uint64(sum[:8]) % 100)
}
