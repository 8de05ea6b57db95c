// Package md5 provides the fingerprint hasher used for result dedup.
package md5

import (
	"crypto/md5" //nolint:gosec // fingerprints, not security
	"encoding/hex"
)

// Hasher implements game.Hasher using MD5, which yields the 32-hex digests
// the upstream site uses for its own result_md5 field.
type Hasher struct{}

// New returns an MD5 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := md5.Sum(data) //nolint:gosec
	return hex.EncodeToString(sum[:]), nil
}

// String hashes s and returns the hex digest.
func (h *Hasher) String(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
