package algos

import (
	"crypto/sha256"
)

const (
	// HashSize is the size of a password hash.
	HashSize = sha256.Size
)

// HashPassword returns the SHA-256 digest of password.
// The auth server only ever stores this digest, never the raw password.
func HashPassword(password string) [HashSize]byte {
	return sha256.Sum256([]byte(password))
}
