package security

import (
	"crypto/rand"
	"encoding/hex"
)

// NewAPIKey generates a 32-byte random hex key used to authenticate a
// service or workspace
func NewAPIKey() string {
	return randomHex(32)
}

// NewVersion generates an opaque 8-byte hex version token. Versions guard
// optimistic concurrency and cache invalidation; two successive calls never
// collide in practice.
func NewVersion() string {
	return randomHex(8)
}

// NewEntityID generates a default entity id when the caller does not supply one
func NewEntityID() string {
	return randomHex(8)
}

func randomHex(n int) string {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		// crypto/rand only fails when the OS entropy source is broken
		panic("security: random source unavailable: " + err.Error())
	}
	return hex.EncodeToString(bytes)
}
