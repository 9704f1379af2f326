package wire

import (
	"encoding/binary"
	"fmt"
	"strings"

	"code.kerpass.org/ticketauth/internal/utils"
)

const (
	// NameSize is the fixed width of name & password fields.
	// Shorter values are NUL padded, trailing NULs are stripped on decode.
	NameSize = 255

	// SymKeySize is the wire size of a message server long-term key.
	SymKeySize = 32

	// NonceSize is the wire size of a session key request nonce.
	NonceSize = 8

	registerClientReqSize = 2 * NameSize
	registerServerReqSize = NameSize + SymKeySize + 4
	sessionKeyReqSize     = IdSize + NonceSize
	presentTicketReqSize  = AuthenticatorSize + TicketSize
	sendMessageReqMinSize = 4 + 16
	sessionKeyRespSize    = IdSize + EncryptedSessionKeySize + TicketSize
)

// Payload is the closed set of typed envelope payloads. Decoding never infers
// the shape from the bytes: the caller selects it through the numeric code via
// DecodeRequestPayload / DecodeResponsePayload and pattern-matches the result.
// A nil Payload is the explicit "no payload" state of zero-length envelopes.
//
// Variants: [RegisterClientReq], [RegisterServerReq], [SessionKeyReq],
// [PresentTicketReq], [SendMessageReq], [RegisterClientResp],
// [RegisterServerResp], [ServerListResp], [SessionKeyResp].
type Payload interface {
	// Pack returns the payload wire bytes.
	Pack() []byte

	// isPayload seals the variant set.
	isPayload()
}

// DecodeRequestPayload parses data into the payload variant registered for a
// request code. Codes carrying no payload decode to a nil Payload; for them a
// non-empty data is an ErrFraming.
func DecodeRequestPayload(code int16, data []byte) (Payload, error) {
	switch code {
	case CodeRegisterClient:
		p, err := UnpackRegisterClientReq(data)
		return payloadOrNil(p, err)
	case CodeRegisterServer:
		p, err := UnpackRegisterServerReq(data)
		return payloadOrNil(p, err)
	case CodeGetSessionKey:
		p, err := UnpackSessionKeyReq(data)
		return payloadOrNil(p, err)
	case CodePresentTicket:
		p, err := UnpackPresentTicketReq(data)
		return payloadOrNil(p, err)
	case CodeSendMessage:
		p, err := UnpackSendMessageReq(data)
		return payloadOrNil(p, err)
	case CodeListServers:
		return nil, requireEmpty(data)
	default:
		return nil, utils.NewError(0, ErrUnknownCode, "no request payload registered for code %d", code)
	}
}

// DecodeResponsePayload parses data into the payload variant registered for a
// response code. Codes carrying no payload decode to a nil Payload.
func DecodeResponsePayload(code int16, data []byte) (Payload, error) {
	switch code {
	case CodeRegisterClientOK:
		p, err := UnpackRegisterClientResp(data)
		return payloadOrNil(p, err)
	case CodeRegisterServerOK:
		p, err := UnpackRegisterServerResp(data)
		return payloadOrNil(p, err)
	case CodeServerList:
		p, err := UnpackServerListResp(data)
		return payloadOrNil(p, err)
	case CodeSessionKey:
		p, err := UnpackSessionKeyResp(data)
		return payloadOrNil(p, err)
	case CodeRegisterClientFail, CodeTicketAccepted, CodeMessageAccepted, CodeGeneralError:
		return nil, requireEmpty(data)
	default:
		return nil, utils.NewError(0, ErrUnknownCode, "no response payload registered for code %d", code)
	}
}

func payloadOrNil(p Payload, err error) (Payload, error) {
	if nil != err {
		return nil, err
	}
	return p, nil
}

func requireEmpty(data []byte) error {
	if len(data) > 0 {
		return newFramingError("unexpected %d bytes payload on payload-less code", len(data))
	}
	return nil
}

// ---- request payloads

// RegisterClientReq is the payload of a client registration request.
type RegisterClientReq struct {
	Name     string
	Password string
}

func (self RegisterClientReq) Pack() []byte {
	buf := make([]byte, registerClientReqSize)
	packFixedString(buf[:NameSize], self.Name)
	packFixedString(buf[NameSize:], self.Password)
	return buf
}

func (self RegisterClientReq) isPayload() {}

// Check validates field bounds and that the name can not corrupt the
// colon-separated registry line & listing formats.
func (self RegisterClientReq) Check() error {
	err := checkName(self.Name)
	if nil != err {
		return wrapError(err, "invalid name")
	}
	if "" == self.Password || len(self.Password) > NameSize {
		return newError("invalid password length %d", len(self.Password))
	}
	return nil
}

// UnpackRegisterClientReq parses the 510 bytes registration payload.
func UnpackRegisterClientReq(data []byte) (RegisterClientReq, error) {
	var req RegisterClientReq
	if registerClientReqSize != len(data) {
		return req, newFramingError("invalid registration payload length %d != %d", len(data), registerClientReqSize)
	}
	req.Name = unpackFixedString(data[:NameSize])
	req.Password = unpackFixedString(data[NameSize:])
	return req, nil
}

// RegisterServerReq is the payload of a message server registration request.
// The server's IP is never part of the payload, the auth server takes it from
// the observed peer address.
type RegisterServerReq struct {
	Name string
	Key  [SymKeySize]byte
	Port uint32
}

func (self RegisterServerReq) Pack() []byte {
	buf := make([]byte, registerServerReqSize)
	packFixedString(buf[:NameSize], self.Name)
	copy(buf[NameSize:], self.Key[:])
	binary.LittleEndian.PutUint32(buf[NameSize+SymKeySize:], self.Port)
	return buf
}

func (self RegisterServerReq) isPayload() {}

func (self RegisterServerReq) Check() error {
	err := checkName(self.Name)
	if nil != err {
		return wrapError(err, "invalid name")
	}
	if 0 == self.Port || self.Port > 0xFFFF {
		return newError("invalid port %d", self.Port)
	}
	return nil
}

// UnpackRegisterServerReq parses the 291 bytes server registration payload.
func UnpackRegisterServerReq(data []byte) (RegisterServerReq, error) {
	var req RegisterServerReq
	if registerServerReqSize != len(data) {
		return req, newFramingError("invalid server registration payload length %d != %d", len(data), registerServerReqSize)
	}
	req.Name = unpackFixedString(data[:NameSize])
	copy(req.Key[:], data[NameSize:])
	req.Port = binary.LittleEndian.Uint32(data[NameSize+SymKeySize:])
	return req, nil
}

// SessionKeyReq is the payload of a session key & ticket request.
type SessionKeyReq struct {
	ServerId [IdSize]byte
	Nonce    [NonceSize]byte
}

func (self SessionKeyReq) Pack() []byte {
	buf := make([]byte, 0, sessionKeyReqSize)
	buf = append(buf, self.ServerId[:]...)
	buf = append(buf, self.Nonce[:]...)
	return buf
}

func (self SessionKeyReq) isPayload() {}

// UnpackSessionKeyReq parses the 24 bytes session key request payload.
func UnpackSessionKeyReq(data []byte) (SessionKeyReq, error) {
	var req SessionKeyReq
	if sessionKeyReqSize != len(data) {
		return req, newFramingError("invalid session key payload length %d != %d", len(data), sessionKeyReqSize)
	}
	copy(req.ServerId[:], data[:IdSize])
	copy(req.Nonce[:], data[IdSize:])
	return req, nil
}

// PresentTicketReq is the payload forwarding a Ticket with its Authenticator
// to a message server.
type PresentTicketReq struct {
	Authenticator Authenticator
	Ticket        Ticket
}

func (self PresentTicketReq) Pack() []byte {
	buf := make([]byte, 0, presentTicketReqSize)
	buf = append(buf, self.Authenticator.Pack()...)
	buf = append(buf, self.Ticket.Pack()...)
	return buf
}

func (self PresentTicketReq) isPayload() {}

// UnpackPresentTicketReq parses the 233 bytes ticket presentation payload.
func UnpackPresentTicketReq(data []byte) (PresentTicketReq, error) {
	var req PresentTicketReq
	if presentTicketReqSize != len(data) {
		return req, newFramingError("invalid ticket presentation payload length %d != %d", len(data), presentTicketReqSize)
	}
	var err error
	req.Authenticator, err = UnpackAuthenticator(data[:AuthenticatorSize])
	if nil != err {
		return req, err
	}
	req.Ticket, err = UnpackTicket(data[AuthenticatorSize:])
	return req, err
}

// SendMessageReq is the payload of an encrypted application message.
// Each message carries its own fresh IV.
type SendMessageReq struct {
	IV         [16]byte
	Ciphertext []byte
}

func (self SendMessageReq) Pack() []byte {
	buf := make([]byte, sendMessageReqMinSize+len(self.Ciphertext))
	binary.LittleEndian.PutUint32(buf, uint32(len(self.Ciphertext)))
	copy(buf[4:], self.IV[:])
	copy(buf[sendMessageReqMinSize:], self.Ciphertext)
	return buf
}

func (self SendMessageReq) isPayload() {}

// UnpackSendMessageReq parses a message payload. The inner messageLen field
// must match the bytes actually present.
func UnpackSendMessageReq(data []byte) (SendMessageReq, error) {
	var req SendMessageReq
	if len(data) < sendMessageReqMinSize {
		return req, newFramingError("message payload too short, %d < %d", len(data), sendMessageReqMinSize)
	}
	msz := binary.LittleEndian.Uint32(data)
	if uint32(len(data)-sendMessageReqMinSize) != msz {
		return req, newFramingError("declared message length %d != available %d", msz, len(data)-sendMessageReqMinSize)
	}
	copy(req.IV[:], data[4:])
	req.Ciphertext = data[sendMessageReqMinSize:]
	return req, nil
}

// ---- response payloads

// RegisterClientResp carries the id assigned to a newly registered client.
type RegisterClientResp struct {
	ClientId [IdSize]byte
}

func (self RegisterClientResp) Pack() []byte {
	buf := make([]byte, IdSize)
	copy(buf, self.ClientId[:])
	return buf
}

func (self RegisterClientResp) isPayload() {}

func UnpackRegisterClientResp(data []byte) (RegisterClientResp, error) {
	var resp RegisterClientResp
	if IdSize != len(data) {
		return resp, newFramingError("invalid client id payload length %d != %d", len(data), IdSize)
	}
	copy(resp.ClientId[:], data)
	return resp, nil
}

// RegisterServerResp carries the id assigned to a newly registered message server.
type RegisterServerResp struct {
	ServerId [IdSize]byte
}

func (self RegisterServerResp) Pack() []byte {
	buf := make([]byte, IdSize)
	copy(buf, self.ServerId[:])
	return buf
}

func (self RegisterServerResp) isPayload() {}

func UnpackRegisterServerResp(data []byte) (RegisterServerResp, error) {
	var resp RegisterServerResp
	if IdSize != len(data) {
		return resp, newFramingError("invalid server id payload length %d != %d", len(data), IdSize)
	}
	copy(resp.ServerId[:], data)
	return resp, nil
}

// SessionKeyResp carries the encrypted session key block and the opaque ticket.
type SessionKeyResp struct {
	ClientId [IdSize]byte
	KeyBlock EncryptedSessionKey
	Ticket   Ticket
}

func (self SessionKeyResp) Pack() []byte {
	buf := make([]byte, 0, sessionKeyRespSize)
	buf = append(buf, self.ClientId[:]...)
	buf = append(buf, self.KeyBlock.Pack()...)
	buf = append(buf, self.Ticket.Pack()...)
	return buf
}

func (self SessionKeyResp) isPayload() {}

func UnpackSessionKeyResp(data []byte) (SessionKeyResp, error) {
	var resp SessionKeyResp
	if sessionKeyRespSize != len(data) {
		return resp, newFramingError("invalid session key response length %d != %d", len(data), sessionKeyRespSize)
	}
	copy(resp.ClientId[:], data[:IdSize])
	var err error
	resp.KeyBlock, err = UnpackEncryptedSessionKey(data[IdSize : IdSize+EncryptedSessionKeySize])
	if nil != err {
		return resp, err
	}
	resp.Ticket, err = UnpackTicket(data[IdSize+EncryptedSessionKeySize:])
	return resp, err
}

// ---- server listing

// ServerEntry is one line of the message server listing.
type ServerEntry struct {
	Id   [IdSize]byte
	Name string
	Ip   string
	Port uint16
}

// ServerListResp is the human-readable message server listing.
// An empty Servers slice is valid and tells the client that no message server
// is registered yet.
type ServerListResp struct {
	Servers []ServerEntry
}

// Pack renders the listing, one "idHex:name:ip:port" line per server.
func (self ServerListResp) Pack() []byte {
	var sb strings.Builder
	for _, srv := range self.Servers {
		fmt.Fprintf(&sb, "%s:%s:%s:%d\n", utils.HexBinary(srv.Id[:]), srv.Name, srv.Ip, srv.Port)
	}
	return []byte(sb.String())
}

func (self ServerListResp) isPayload() {}

// UnpackServerListResp parses the listing back into structured entries.
func UnpackServerListResp(data []byte) (ServerListResp, error) {
	var resp ServerListResp
	if 0 == len(data) {
		return resp, nil
	}
	for pos, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		parts := strings.Split(line, ":")
		if 4 != len(parts) {
			return resp, newFramingError("invalid listing line %d, %d fields != 4", pos, len(parts))
		}
		var entry ServerEntry
		var id utils.HexBinary
		err := id.UnmarshalText([]byte(parts[0]))
		if nil != err || IdSize != len(id) {
			return resp, newFramingError("invalid listing line %d, bad server id", pos)
		}
		copy(entry.Id[:], id)
		entry.Name = parts[1]
		entry.Ip = parts[2]
		var port int
		_, err = fmt.Sscanf(parts[3], "%d", &port)
		if nil != err || port <= 0 || port > 0xFFFF {
			return resp, newFramingError("invalid listing line %d, bad port", pos)
		}
		entry.Port = uint16(port)
		resp.Servers = append(resp.Servers, entry)
	}
	return resp, nil
}

// ---- fixed width strings

// packFixedString copies s into dst, NUL padding or truncating to len(dst).
func packFixedString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// unpackFixedString strips trailing NULs.
func unpackFixedString(src []byte) string {
	end := len(src)
	for end > 0 && 0 == src[end-1] {
		end--
	}
	return string(src[:end])
}

// checkName rejects names that would break the fixed-width fields or the
// colon-separated line formats.
func checkName(name string) error {
	if "" == name || len(name) > NameSize {
		return newError("name length %d out of range [1, %d]", len(name), NameSize)
	}
	if strings.ContainsAny(name, ":\n\x00") {
		return newError("name contains a forbidden character")
	}
	return nil
}
