// Package checksum provides content and source-reference hashing.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SourceSum hashes a normalized source reference: surrounding whitespace
// stripped, lowercased. Two header blocks pointing at the same origin in
// different casing produce the same digest.
func SourceSum(source string) string {
	norm := strings.ToLower(strings.TrimSpace(source))
	if norm == "" {
		return ""
	}
	return Sum([]byte(norm))
}
