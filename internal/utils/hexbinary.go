package utils

import (
	"encoding/hex"
)

// HexBinary is a byte slice that marshals to/from hexadecimal text.
// The persisted registry line formats and the identity files carry all binary
// fields (ids, keys, password hashes) in this form.
type HexBinary []byte

func (self *HexBinary) UnmarshalText(text []byte) error {
	var dst []byte
	hxsz := hex.DecodedLen(len(text))
	if cap([]byte(*self)) >= hxsz {
		dst = []byte(*self)[:0]
	} else {
		dst = make([]byte, 0, hxsz)
	}

	dst, err := hex.AppendDecode(dst, text)
	if nil != err {
		return err
	}

	*self = HexBinary(dst)
	return nil
}

func (self HexBinary) MarshalText() ([]byte, error) {
	var dst []byte
	dst = hex.AppendEncode(dst, []byte(self))
	return dst, nil
}

// String returns the hexadecimal encoding of the HexBinary.
func (self HexBinary) String() string {
	return hex.EncodeToString([]byte(self))
}
