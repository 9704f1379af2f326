// Package wire implements the fixed-header, variable-payload framing shared by
// the auth server, the message servers and the clients, plus the fixed-width
// payload blocks exchanged inside it (tickets, authenticators, key blocks).
//
// All multi-byte header integers are little-endian; embedded timestamps are
// 8 bytes big-endian Unix seconds, UTC.
package wire

import (
	"encoding/binary"
	"io"
)

const (
	// IdSize is the size of client & message server identifiers.
	IdSize = 16

	reqHeaderSize  = IdSize + 1 + 2 + 4
	respHeaderSize = 1 + 2 + 4
)

// Request is the envelope sent by a client or a message server.
//
// Wire layout: senderId:16 | version:1 | code:2 (i16 LE) | payloadLen:4 (u32 LE) | payload.
type Request struct {
	SenderId [IdSize]byte
	Version  byte
	Code     int16
	Payload  []byte
}

// Encode returns the packed Request bytes.
func (self Request) Encode() []byte {
	buf := make([]byte, reqHeaderSize+len(self.Payload))
	copy(buf, self.SenderId[:])
	buf[IdSize] = self.Version
	binary.LittleEndian.PutUint16(buf[IdSize+1:], uint16(self.Code))
	binary.LittleEndian.PutUint32(buf[IdSize+3:], uint32(len(self.Payload)))
	copy(buf[reqHeaderSize:], self.Payload)
	return buf
}

// ReadRequest reads one Request envelope from r.
//
// maxPayload clamps the accepted payload length so that a connection can not
// make the server allocate arbitrary memory. Truncated reads and oversized
// declarations are ErrFraming.
func ReadRequest(r io.Reader, maxPayload uint32) (Request, error) {
	var req Request

	var hdr [reqHeaderSize]byte
	_, err := io.ReadFull(r, hdr[:])
	if nil != err {
		return req, wrapFramingError(err, "failed reading request header")
	}

	copy(req.SenderId[:], hdr[:IdSize])
	req.Version = hdr[IdSize]
	req.Code = int16(binary.LittleEndian.Uint16(hdr[IdSize+1:]))
	psz := binary.LittleEndian.Uint32(hdr[IdSize+3:])
	if psz > maxPayload {
		return req, newFramingError("declared payload length %d exceeds limit %d", psz, maxPayload)
	}
	if psz > 0 {
		req.Payload = make([]byte, psz)
		_, err = io.ReadFull(r, req.Payload)
		if nil != err {
			return req, wrapFramingError(err, "failed reading request payload, declared %d bytes", psz)
		}
	}

	return req, nil
}

// Response is the envelope sent back by the auth server or a message server.
//
// Wire layout: version:1 | code:2 (i16 LE) | payloadLen:4 (u32 LE) | payload.
// A zero payloadLen is a valid, distinct state meaning "no payload".
type Response struct {
	Version byte
	Code    int16
	Payload []byte
}

// Encode returns the packed Response bytes.
func (self Response) Encode() []byte {
	buf := make([]byte, respHeaderSize+len(self.Payload))
	buf[0] = self.Version
	binary.LittleEndian.PutUint16(buf[1:], uint16(self.Code))
	binary.LittleEndian.PutUint32(buf[3:], uint32(len(self.Payload)))
	copy(buf[respHeaderSize:], self.Payload)
	return buf
}

// ReadResponse reads one Response envelope from r.
// Truncated reads and oversized declarations are ErrFraming.
func ReadResponse(r io.Reader, maxPayload uint32) (Response, error) {
	var resp Response

	var hdr [respHeaderSize]byte
	_, err := io.ReadFull(r, hdr[:])
	if nil != err {
		return resp, wrapFramingError(err, "failed reading response header")
	}

	resp.Version = hdr[0]
	resp.Code = int16(binary.LittleEndian.Uint16(hdr[1:]))
	psz := binary.LittleEndian.Uint32(hdr[3:])
	if psz > maxPayload {
		return resp, newFramingError("declared payload length %d exceeds limit %d", psz, maxPayload)
	}
	if psz > 0 {
		resp.Payload = make([]byte, psz)
		_, err = io.ReadFull(r, resp.Payload)
		if nil != err {
			return resp, wrapFramingError(err, "failed reading response payload, declared %d bytes", psz)
		}
	}

	return resp, nil
}
