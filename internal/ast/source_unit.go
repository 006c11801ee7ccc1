package ast

import (
	"crypto/sha256"
	"encoding/hex"
)

// NewSourceUnit creates an immutable Source Unit, hashing its text with
// SHA-256 for use as the analysis cache key.
func NewSourceUnit(name, text string) *SourceUnit {
	sum := sha256.Sum256([]byte(text))
	return &SourceUnit{
		Name: name,
		Text: text,
		Hash: hex.EncodeToString(sum[:]),
	}
}
