// Package algos provides the symmetric primitives of the ticket protocol:
// AES-256-CBC with PKCS#7 padding, SHA-256 password hashing and generation
// of keys & nonces from a cryptographically secure source.
package algos

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"code.kerpass.org/ticketauth/internal/utils"
)

const (
	// KeySize is the size of all symmetric keys of the protocol.
	KeySize = 32

	// IVSize is the AES block size, each encrypted field carries its own IV.
	IVSize = aes.BlockSize
)

// EncryptAESCBC encrypts plaintext under key using AES-CBC after applying
// PKCS#7 padding. If iv is nil a random 16 bytes IV is generated.
// It returns the ciphertext and the IV that was used.
func EncryptAESCBC(key, plaintext, iv []byte) ([]byte, []byte, error) {
	if KeySize != len(key) {
		return nil, nil, newError("invalid key, len != %d", KeySize)
	}
	if nil == iv {
		iv = make([]byte, IVSize)
		rand.Read(iv)
	}
	if IVSize != len(iv) {
		return nil, nil, newError("invalid iv, len != %d", IVSize)
	}

	block, err := aes.NewCipher(key)
	if nil != err {
		return nil, nil, wrapError(err, "failed cipher construction")
	}

	padded := pkcs7Pad(plaintext)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return ciphertext, iv, nil
}

// DecryptAESCBC decrypts ciphertext and removes PKCS#7 padding.
// It errors with ErrDecryption if the ciphertext length is not block aligned
// or if unpadding fails, which is how a wrong key or tampering shows up.
func DecryptAESCBC(key, ciphertext, iv []byte) ([]byte, error) {
	if KeySize != len(key) {
		return nil, newError("invalid key, len != %d", KeySize)
	}
	if IVSize != len(iv) {
		return nil, newError("invalid iv, len != %d", IVSize)
	}
	if 0 == len(ciphertext) || 0 != len(ciphertext)%aes.BlockSize {
		return nil, utils.NewError(0, ErrDecryption, "ciphertext len %d not block aligned", len(ciphertext))
	}

	block, err := aes.NewCipher(key)
	if nil != err {
		return nil, wrapError(err, "failed cipher construction")
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded)
	if nil != err {
		return nil, utils.WrapError(err, 0, ErrDecryption, "failed unpadding")
	}

	return plaintext, nil
}

// pkcs7Pad extends src to the next block boundary.
// A full block of padding is added when src is already aligned.
func pkcs7Pad(src []byte) []byte {
	padding := aes.BlockSize - len(src)%aes.BlockSize
	dst := make([]byte, len(src)+padding)
	copy(dst, src)
	for i := len(src); i < len(dst); i++ {
		dst[i] = byte(padding)
	}
	return dst
}

func pkcs7Unpad(src []byte) ([]byte, error) {
	if 0 == len(src) {
		return nil, newError("empty padded input")
	}
	padding := int(src[len(src)-1])
	if padding < 1 || padding > aes.BlockSize || padding > len(src) {
		return nil, newError("invalid padding length %d", padding)
	}
	for _, b := range src[len(src)-padding:] {
		if int(b) != padding {
			return nil, newError("inconsistent padding bytes")
		}
	}
	return src[:len(src)-padding], nil
}
