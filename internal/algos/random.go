package algos

import (
	"crypto/rand"
)

const (
	// NonceSize is the size of the freshness nonce of a session key request.
	NonceSize = 8
)

// NewSymmetricKey returns 32 random bytes suitable as an AES-256 key.
func NewSymmetricKey() [KeySize]byte {
	var key [KeySize]byte
	rand.Read(key[:])
	return key
}

// NewNonce returns 8 random bytes.
func NewNonce() [NonceSize]byte {
	var nonce [NonceSize]byte
	rand.Read(nonce[:])
	return nonce
}

// NewIV returns 16 random bytes suitable as an AES-CBC IV.
func NewIV() [IVSize]byte {
	var iv [IVSize]byte
	rand.Read(iv[:])
	return iv
}
