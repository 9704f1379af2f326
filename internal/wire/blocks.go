package wire

import (
	"encoding/binary"
	"time"
)

// Sizes of the fixed-width encrypted blocks. Plaintext fields grow to the next
// AES block boundary under PKCS#7 padding, hence 8 -> 16, 16 -> 32, 32 -> 48.
const (
	EncVersionSize    = 16 // 1 byte version, padded
	EncTimestampSize  = 16 // 8 bytes timestamp, padded
	EncNonceSize      = 16 // 8 bytes nonce, padded
	EncIdSize         = 32 // 16 bytes id, padded
	EncSessionKeySize = 48 // 32 bytes key, padded

	TicketSize              = 1 + IdSize + IdSize + 8 + 16 + EncSessionKeySize + EncTimestampSize
	AuthenticatorSize       = 16 + EncVersionSize + EncIdSize + EncIdSize + EncTimestampSize
	EncryptedSessionKeySize = 16 + EncNonceSize + EncSessionKeySize
)

// EncodeTimestamp returns t as 8 bytes big-endian Unix seconds.
func EncodeTimestamp(t time.Time) [8]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t.Unix()))
	return buf
}

// DecodeTimestamp is the inverse of EncodeTimestamp. The result is UTC.
func DecodeTimestamp(buf []byte) time.Time {
	return time.Unix(int64(binary.BigEndian.Uint64(buf)), 0).UTC()
}

// Ticket is the auth-server-issued proof of session key possession.
// It is opaque to the client, which forwards it verbatim: the encrypted fields
// only decrypt under the target message server long-term key.
type Ticket struct {
	Version       byte
	ClientId      [IdSize]byte
	ServerId      [IdSize]byte
	Creation      time.Time
	IV            [16]byte
	EncSessionKey [EncSessionKeySize]byte
	EncExpiration [EncTimestampSize]byte
}

// Pack returns the 121 bytes wire form of the Ticket.
func (self Ticket) Pack() []byte {
	buf := make([]byte, 0, TicketSize)
	buf = append(buf, self.Version)
	buf = append(buf, self.ClientId[:]...)
	buf = append(buf, self.ServerId[:]...)
	ts := EncodeTimestamp(self.Creation)
	buf = append(buf, ts[:]...)
	buf = append(buf, self.IV[:]...)
	buf = append(buf, self.EncSessionKey[:]...)
	buf = append(buf, self.EncExpiration[:]...)
	return buf
}

// UnpackTicket parses the 121 bytes wire form of a Ticket.
func UnpackTicket(data []byte) (Ticket, error) {
	var tk Ticket
	if TicketSize != len(data) {
		return tk, newFramingError("invalid ticket length %d != %d", len(data), TicketSize)
	}
	tk.Version = data[0]
	copy(tk.ClientId[:], data[1:])
	copy(tk.ServerId[:], data[17:])
	tk.Creation = DecodeTimestamp(data[33:41])
	copy(tk.IV[:], data[41:])
	copy(tk.EncSessionKey[:], data[57:])
	copy(tk.EncExpiration[:], data[105:])
	return tk, nil
}

// Authenticator is the client-built, session-key-encrypted proof of freshness
// presented together with a Ticket. All four fields are encrypted under the
// session key with the Authenticator's own IV.
type Authenticator struct {
	IV          [16]byte
	EncVersion  [EncVersionSize]byte
	EncClientId [EncIdSize]byte
	EncServerId [EncIdSize]byte
	EncCreation [EncTimestampSize]byte
}

// Pack returns the 112 bytes wire form of the Authenticator.
func (self Authenticator) Pack() []byte {
	buf := make([]byte, 0, AuthenticatorSize)
	buf = append(buf, self.IV[:]...)
	buf = append(buf, self.EncVersion[:]...)
	buf = append(buf, self.EncClientId[:]...)
	buf = append(buf, self.EncServerId[:]...)
	buf = append(buf, self.EncCreation[:]...)
	return buf
}

// UnpackAuthenticator parses the 112 bytes wire form of an Authenticator.
func UnpackAuthenticator(data []byte) (Authenticator, error) {
	var au Authenticator
	if AuthenticatorSize != len(data) {
		return au, newFramingError("invalid authenticator length %d != %d", len(data), AuthenticatorSize)
	}
	copy(au.IV[:], data[0:])
	copy(au.EncVersion[:], data[16:])
	copy(au.EncClientId[:], data[32:])
	copy(au.EncServerId[:], data[64:])
	copy(au.EncCreation[:], data[96:])
	return au, nil
}

// EncryptedSessionKey delivers the session key to the client.
// Nonce echo & session key are encrypted under the client's password hash, so
// only the rightful client can open it.
type EncryptedSessionKey struct {
	IV            [16]byte
	EncNonce      [EncNonceSize]byte
	EncSessionKey [EncSessionKeySize]byte
}

// Pack returns the 80 bytes wire form of the EncryptedSessionKey.
func (self EncryptedSessionKey) Pack() []byte {
	buf := make([]byte, 0, EncryptedSessionKeySize)
	buf = append(buf, self.IV[:]...)
	buf = append(buf, self.EncNonce[:]...)
	buf = append(buf, self.EncSessionKey[:]...)
	return buf
}

// UnpackEncryptedSessionKey parses the 80 bytes wire form of an EncryptedSessionKey.
func UnpackEncryptedSessionKey(data []byte) (EncryptedSessionKey, error) {
	var esk EncryptedSessionKey
	if EncryptedSessionKeySize != len(data) {
		return esk, newFramingError("invalid session key block length %d != %d", len(data), EncryptedSessionKeySize)
	}
	copy(esk.IV[:], data[0:])
	copy(esk.EncNonce[:], data[16:])
	copy(esk.EncSessionKey[:], data[32:])
	return esk, nil
}
