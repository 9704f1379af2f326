package algos

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := NewSymmetricKey()

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{name: "short text", plaintext: []byte("my encrypted text")},
		{name: "empty", plaintext: []byte{}},
		{name: "one byte", plaintext: []byte{0x42}},
		{name: "block aligned", plaintext: bytes.Repeat([]byte{0xAA}, 32)},
		{name: "large", plaintext: bytes.Repeat([]byte("0123456789abcdef"), 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, iv, err := EncryptAESCBC(key[:], tt.plaintext, nil)
			if nil != err {
				t.Fatalf("failed EncryptAESCBC, got error %v", err)
			}
			if IVSize != len(iv) {
				t.Fatalf("invalid generated iv length %d", len(iv))
			}
			if bytes.Equal(tt.plaintext, ciphertext) {
				t.Error("ciphertext equals plaintext")
			}
			if 0 != len(ciphertext)%16 {
				t.Errorf("ciphertext length %d not block aligned", len(ciphertext))
			}

			plaintext, err := DecryptAESCBC(key[:], ciphertext, iv)
			if nil != err {
				t.Fatalf("failed DecryptAESCBC, got error %v", err)
			}
			if !bytes.Equal(tt.plaintext, plaintext) {
				t.Errorf("round trip mismatch % X != % X", tt.plaintext, plaintext)
			}
		})
	}
}

func TestEncryptWithProvidedIV(t *testing.T) {
	key := NewSymmetricKey()
	iv := NewIV()

	c1, iv1, err := EncryptAESCBC(key[:], []byte("deterministic"), iv[:])
	if nil != err {
		t.Fatalf("failed EncryptAESCBC, got error %v", err)
	}
	if !bytes.Equal(iv[:], iv1) {
		t.Error("returned iv differs from provided iv")
	}

	c2, _, err := EncryptAESCBC(key[:], []byte("deterministic"), iv[:])
	if nil != err {
		t.Fatalf("failed EncryptAESCBC, got error %v", err)
	}
	if !bytes.Equal(c1, c2) {
		t.Error("same key/iv/plaintext produced different ciphertexts")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key := NewSymmetricKey()
	wrong := NewSymmetricKey()

	ciphertext, iv, err := EncryptAESCBC(key[:], []byte("guarded payload"), nil)
	if nil != err {
		t.Fatalf("failed EncryptAESCBC, got error %v", err)
	}

	plaintext, err := DecryptAESCBC(wrong[:], ciphertext, iv)
	if nil == err {
		// unpadding may by chance succeed (~1/255), but never with the original text
		if bytes.Equal([]byte("guarded payload"), plaintext) {
			t.Fatal("wrong key recovered the original plaintext")
		}
		t.Skip("unpadding succeeded by chance on wrong key")
	}
	if !errors.Is(err, ErrDecryption) {
		t.Errorf("error is not ErrDecryption, got %v", err)
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	key := NewSymmetricKey()

	ciphertext, iv, err := EncryptAESCBC(key[:], []byte("do not touch"), nil)
	if nil != err {
		t.Fatalf("failed EncryptAESCBC, got error %v", err)
	}

	// flipping a byte of the last block corrupts the padding
	tampered := bytes.Clone(ciphertext)
	tampered[len(tampered)-1] ^= 0x01

	plaintext, err := DecryptAESCBC(key[:], tampered, iv)
	if nil == err {
		if bytes.Equal([]byte("do not touch"), plaintext) {
			t.Fatal("tampered ciphertext recovered the original plaintext")
		}
		t.Skip("unpadding succeeded by chance on tampered ciphertext")
	}
	if !errors.Is(err, ErrDecryption) {
		t.Errorf("error is not ErrDecryption, got %v", err)
	}
}

func TestDecryptMisalignedCiphertext(t *testing.T) {
	key := NewSymmetricKey()
	iv := NewIV()

	for _, size := range []int{0, 1, 15, 17, 31} {
		_, err := DecryptAESCBC(key[:], make([]byte, size), iv[:])
		if !errors.Is(err, ErrDecryption) {
			t.Errorf("size %d: error is not ErrDecryption, got %v", size, err)
		}
	}
}

func TestPkcs7Padding(t *testing.T) {
	for size := range 33 {
		src := bytes.Repeat([]byte{0x5A}, size)
		padded := pkcs7Pad(src)
		if 0 != len(padded)%16 {
			t.Fatalf("size %d: padded length %d not aligned", size, len(padded))
		}
		if len(padded) == len(src) {
			t.Fatalf("size %d: no padding was added", size)
		}
		unpadded, err := pkcs7Unpad(padded)
		if nil != err {
			t.Fatalf("size %d: failed pkcs7Unpad, got error %v", size, err)
		}
		if !bytes.Equal(src, unpadded) {
			t.Fatalf("size %d: unpadded data mismatch", size)
		}
	}
}

func TestHashPassword(t *testing.T) {
	h1 := HashPassword("s3cret")
	h2 := HashPassword("s3cret")
	h3 := HashPassword("s3cret ")

	if h1 != h2 {
		t.Error("hash of identical passwords differ")
	}
	if h1 == h3 {
		t.Error("hash of distinct passwords collide")
	}
	if HashSize != len(h1) {
		t.Errorf("unexpected hash size %d", len(h1))
	}
}

func TestRandomGeneration(t *testing.T) {
	k1 := NewSymmetricKey()
	k2 := NewSymmetricKey()
	if k1 == k2 {
		t.Error("two generated keys are equal")
	}

	n1 := NewNonce()
	n2 := NewNonce()
	if n1 == n2 {
		t.Error("two generated nonces are equal")
	}
}
