package utils

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// KeccakHash32 returns the first 32 hex characters of the keccak256 hash of s.
func KeccakHash32(s string) string {
	return KeccakHash32Bytes([]byte(s))
}

// KeccakHash32Bytes hashes the concatenation of parts.
func KeccakHash32Bytes(parts ...[]byte) string {
	hash := sha3.NewLegacyKeccak256()
	for _, part := range parts {
		hash.Write(part)
	}

	return hex.EncodeToString(hash.Sum(nil))[:32]
}
