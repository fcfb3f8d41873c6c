package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"strings"
)

// HashIdentity returns a stable, non-reversible key for an email address or
// network address. Inputs are case-folded and trimmed first.
func HashIdentity(input string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(input))))
	return hex.EncodeToString(sum[:16])
}

// Seed derives a deterministic int64 from the given parts.
func Seed(parts ...string) int64 {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return int64(h.Sum64())
}
