// Package crypto provides the integrity primitives for cockpit:
// content hashing, canonical serialization, detached Ed25519 signing
// and authenticated snapshot encryption.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashString returns the SHA-256 digest of s as a 64-character
// lowercase hex string.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashBytes returns the SHA-256 digest of b as lowercase hex.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
