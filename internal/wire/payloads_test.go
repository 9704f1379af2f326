package wire

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/go-test/deep"
)

func testTicket() Ticket {
	tk := Ticket{
		Version:  Version,
		Creation: time.Unix(1700000000, 0).UTC(),
	}
	copy(tk.ClientId[:], bytes.Repeat([]byte{0x11}, IdSize))
	copy(tk.ServerId[:], bytes.Repeat([]byte{0x22}, IdSize))
	copy(tk.IV[:], bytes.Repeat([]byte{0x33}, 16))
	copy(tk.EncSessionKey[:], bytes.Repeat([]byte{0x44}, EncSessionKeySize))
	copy(tk.EncExpiration[:], bytes.Repeat([]byte{0x55}, EncTimestampSize))
	return tk
}

func testAuthenticator() Authenticator {
	var au Authenticator
	copy(au.IV[:], bytes.Repeat([]byte{0x66}, 16))
	copy(au.EncVersion[:], bytes.Repeat([]byte{0x77}, EncVersionSize))
	copy(au.EncClientId[:], bytes.Repeat([]byte{0x88}, EncIdSize))
	copy(au.EncServerId[:], bytes.Repeat([]byte{0x99}, EncIdSize))
	copy(au.EncCreation[:], bytes.Repeat([]byte{0xAA}, EncTimestampSize))
	return au
}

func TestTicketRoundTrip(t *testing.T) {
	tk := testTicket()
	raw := tk.Pack()
	if TicketSize != len(raw) {
		t.Fatalf("packed ticket length %d != %d", len(raw), TicketSize)
	}
	got, err := UnpackTicket(raw)
	if nil != err {
		t.Fatalf("failed UnpackTicket, got error %v", err)
	}
	if diff := deep.Equal(tk, got); nil != diff {
		t.Errorf("round trip mismatch: %v", diff)
	}

	_, err = UnpackTicket(raw[:TicketSize-1])
	if !errors.Is(err, ErrFraming) {
		t.Errorf("short ticket error is not ErrFraming, got %v", err)
	}
}

func TestAuthenticatorRoundTrip(t *testing.T) {
	au := testAuthenticator()
	raw := au.Pack()
	if AuthenticatorSize != len(raw) {
		t.Fatalf("packed authenticator length %d != %d", len(raw), AuthenticatorSize)
	}
	got, err := UnpackAuthenticator(raw)
	if nil != err {
		t.Fatalf("failed UnpackAuthenticator, got error %v", err)
	}
	if diff := deep.Equal(au, got); nil != diff {
		t.Errorf("round trip mismatch: %v", diff)
	}
}

func TestEncryptedSessionKeyRoundTrip(t *testing.T) {
	var esk EncryptedSessionKey
	copy(esk.IV[:], bytes.Repeat([]byte{0x01}, 16))
	copy(esk.EncNonce[:], bytes.Repeat([]byte{0x02}, EncNonceSize))
	copy(esk.EncSessionKey[:], bytes.Repeat([]byte{0x03}, EncSessionKeySize))

	raw := esk.Pack()
	if EncryptedSessionKeySize != len(raw) {
		t.Fatalf("packed block length %d != %d", len(raw), EncryptedSessionKeySize)
	}
	got, err := UnpackEncryptedSessionKey(raw)
	if nil != err {
		t.Fatalf("failed UnpackEncryptedSessionKey, got error %v", err)
	}
	if diff := deep.Equal(esk, got); nil != diff {
		t.Errorf("round trip mismatch: %v", diff)
	}
}

func TestRequestPayloadRoundTrips(t *testing.T) {
	var serverId [IdSize]byte
	copy(serverId[:], bytes.Repeat([]byte{0xBB}, IdSize))
	var key [SymKeySize]byte
	copy(key[:], bytes.Repeat([]byte{0xCC}, SymKeySize))
	var iv [16]byte
	copy(iv[:], bytes.Repeat([]byte{0xDD}, 16))

	tests := []struct {
		name    string
		code    int16
		payload Payload
	}{
		{
			name:    "register client",
			code:    CodeRegisterClient,
			payload: RegisterClientReq{Name: "alice", Password: "s3cret"},
		},
		{
			name:    "register server",
			code:    CodeRegisterServer,
			payload: RegisterServerReq{Name: "mailbox", Key: key, Port: 1235},
		},
		{
			name:    "session key",
			code:    CodeGetSessionKey,
			payload: SessionKeyReq{ServerId: serverId, Nonce: [NonceSize]byte{1, 2, 3, 4, 5, 6, 7, 8}},
		},
		{
			name:    "present ticket",
			code:    CodePresentTicket,
			payload: PresentTicketReq{Authenticator: testAuthenticator(), Ticket: testTicket()},
		},
		{
			name:    "send message",
			code:    CodeSendMessage,
			payload: SendMessageReq{IV: iv, Ciphertext: []byte("0123456789abcdef")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequestPayload(tt.code, tt.payload.Pack())
			if nil != err {
				t.Fatalf("failed DecodeRequestPayload, got error %v", err)
			}
			if diff := deep.Equal(tt.payload, got); nil != diff {
				t.Errorf("round trip mismatch: %v", diff)
			}
		})
	}
}

func TestResponsePayloadRoundTrips(t *testing.T) {
	var clientId, serverId [IdSize]byte
	copy(clientId[:], bytes.Repeat([]byte{0xE1}, IdSize))
	copy(serverId[:], bytes.Repeat([]byte{0xE2}, IdSize))

	var esk EncryptedSessionKey
	copy(esk.IV[:], bytes.Repeat([]byte{0x0F}, 16))

	tests := []struct {
		name    string
		code    int16
		payload Payload
	}{
		{
			name:    "client registered",
			code:    CodeRegisterClientOK,
			payload: RegisterClientResp{ClientId: clientId},
		},
		{
			name:    "server registered",
			code:    CodeRegisterServerOK,
			payload: RegisterServerResp{ServerId: serverId},
		},
		{
			name:    "session key",
			code:    CodeSessionKey,
			payload: SessionKeyResp{ClientId: clientId, KeyBlock: esk, Ticket: testTicket()},
		},
		{
			name: "server list",
			code: CodeServerList,
			payload: ServerListResp{Servers: []ServerEntry{
				{Id: serverId, Name: "mailbox", Ip: "127.0.0.1", Port: 1235},
				{Id: clientId, Name: "printer", Ip: "10.0.0.7", Port: 9000},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeResponsePayload(tt.code, tt.payload.Pack())
			if nil != err {
				t.Fatalf("failed DecodeResponsePayload, got error %v", err)
			}
			if diff := deep.Equal(tt.payload, got); nil != diff {
				t.Errorf("round trip mismatch: %v", diff)
			}
		})
	}
}

func TestDecodePayloadAbsent(t *testing.T) {
	p, err := DecodeRequestPayload(CodeListServers, nil)
	if nil != err {
		t.Fatalf("failed DecodeRequestPayload, got error %v", err)
	}
	if nil != p {
		t.Errorf("payload-less code decoded to non nil %v", p)
	}

	for _, code := range []int16{CodeRegisterClientFail, CodeTicketAccepted, CodeMessageAccepted, CodeGeneralError} {
		p, err = DecodeResponsePayload(code, nil)
		if nil != err {
			t.Fatalf("code %d: failed DecodeResponsePayload, got error %v", code, err)
		}
		if nil != p {
			t.Errorf("code %d: payload-less code decoded to non nil %v", code, p)
		}
	}

	// data on a payload-less code is a framing error
	_, err = DecodeRequestPayload(CodeListServers, []byte{1})
	if !errors.Is(err, ErrFraming) {
		t.Errorf("error is not ErrFraming, got %v", err)
	}
}

func TestDecodePayloadUnknownCode(t *testing.T) {
	_, err := DecodeRequestPayload(4242, nil)
	if !errors.Is(err, ErrUnknownCode) {
		t.Errorf("error is not ErrUnknownCode, got %v", err)
	}

	// a request code is not a response code
	_, err = DecodeResponsePayload(CodeRegisterClient, nil)
	if !errors.Is(err, ErrUnknownCode) {
		t.Errorf("request code accepted as response code, got %v", err)
	}
}

func TestDecodePayloadBadLength(t *testing.T) {
	_, err := DecodeRequestPayload(CodeRegisterClient, make([]byte, 509))
	if !errors.Is(err, ErrFraming) {
		t.Errorf("short registration error is not ErrFraming, got %v", err)
	}

	// inner message length field disagreeing with available bytes
	msg := SendMessageReq{Ciphertext: []byte("abcd")}.Pack()
	msg[0] = 0xFF
	_, err = DecodeRequestPayload(CodeSendMessage, msg)
	if !errors.Is(err, ErrFraming) {
		t.Errorf("bad inner length error is not ErrFraming, got %v", err)
	}
}

func TestServerListEmpty(t *testing.T) {
	resp, err := UnpackServerListResp(nil)
	if nil != err {
		t.Fatalf("failed UnpackServerListResp, got error %v", err)
	}
	if 0 != len(resp.Servers) {
		t.Errorf("empty listing decoded to %d entries", len(resp.Servers))
	}
}

func TestFixedStringTruncation(t *testing.T) {
	long := string(bytes.Repeat([]byte{'x'}, 300))
	req := RegisterClientReq{Name: long, Password: "p"}
	raw := req.Pack()
	if registerClientReqSize != len(raw) {
		t.Fatalf("packed length %d != %d", len(raw), registerClientReqSize)
	}
	got, err := UnpackRegisterClientReq(raw)
	if nil != err {
		t.Fatalf("failed UnpackRegisterClientReq, got error %v", err)
	}
	if NameSize != len(got.Name) {
		t.Errorf("name was not truncated to %d, got %d", NameSize, len(got.Name))
	}
}

func TestCheckName(t *testing.T) {
	tests := []struct {
		name    string
		req     RegisterClientReq
		wantErr bool
	}{
		{name: "valid", req: RegisterClientReq{Name: "alice", Password: "s3cret"}},
		{name: "empty name", req: RegisterClientReq{Name: "", Password: "p"}, wantErr: true},
		{name: "empty password", req: RegisterClientReq{Name: "alice", Password: ""}, wantErr: true},
		{name: "colon in name", req: RegisterClientReq{Name: "a:b", Password: "p"}, wantErr: true},
		{name: "newline in name", req: RegisterClientReq{Name: "a\nb", Password: "p"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Check()
			if (nil != err) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	buf := EncodeTimestamp(ts)
	got := DecodeTimestamp(buf[:])
	if !ts.Equal(got) {
		t.Errorf("round trip mismatch %v != %v", ts, got)
	}
	if got.Location() != time.UTC {
		t.Errorf("decoded timestamp is not UTC")
	}
}
