// Package hash computes the content digest stored with each record.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256 hex-encodes the SHA-256 digest of extracted document text.
type SHA256 struct{}

// Hash returns the hex digest of data. Empty content hashes like any other input.
func (SHA256) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
