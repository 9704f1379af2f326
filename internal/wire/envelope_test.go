package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/go-test/deep"
)

const testMaxPayload = 1 << 20

func TestRequestRoundTrip(t *testing.T) {
	req := Request{
		Version: Version,
		Code:    CodeGetSessionKey,
		Payload: []byte{1, 2, 3, 4, 5},
	}
	copy(req.SenderId[:], bytes.Repeat([]byte{0xA1}, IdSize))

	got, err := ReadRequest(bytes.NewReader(req.Encode()), testMaxPayload)
	if nil != err {
		t.Fatalf("failed ReadRequest, got error %v", err)
	}
	if diff := deep.Equal(req, got); nil != diff {
		t.Errorf("round trip mismatch: %v", diff)
	}
}

func TestRequestRoundTripNoPayload(t *testing.T) {
	req := Request{Version: Version, Code: CodeListServers}

	got, err := ReadRequest(bytes.NewReader(req.Encode()), testMaxPayload)
	if nil != err {
		t.Fatalf("failed ReadRequest, got error %v", err)
	}
	if nil != got.Payload {
		t.Errorf("zero length payload decoded to non nil %v", got.Payload)
	}
	if got.Code != CodeListServers || got.Version != Version {
		t.Errorf("header mismatch, got %+v", got)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		resp Response
	}{
		{name: "with payload", resp: Response{Version: Version, Code: CodeServerList, Payload: []byte("x:y\n")}},
		{name: "no payload", resp: Response{Version: Version, Code: CodeGeneralError}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadResponse(bytes.NewReader(tt.resp.Encode()), testMaxPayload)
			if nil != err {
				t.Fatalf("failed ReadResponse, got error %v", err)
			}
			if diff := deep.Equal(tt.resp, got); nil != diff {
				t.Errorf("round trip mismatch: %v", diff)
			}
		})
	}
}

func TestReadRequestTruncated(t *testing.T) {
	req := Request{Version: Version, Code: CodeSendMessage, Payload: bytes.Repeat([]byte{7}, 64)}
	raw := req.Encode()

	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "empty", raw: nil},
		{name: "partial header", raw: raw[:10]},
		{name: "header only", raw: raw[:23]},
		{name: "partial payload", raw: raw[:40]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadRequest(bytes.NewReader(tt.raw), testMaxPayload)
			if !errors.Is(err, ErrFraming) {
				t.Errorf("error is not ErrFraming, got %v", err)
			}
		})
	}
}

func TestReadRequestPayloadClamp(t *testing.T) {
	req := Request{Version: Version, Code: CodeSendMessage, Payload: bytes.Repeat([]byte{7}, 1024)}

	_, err := ReadRequest(bytes.NewReader(req.Encode()), 512)
	if !errors.Is(err, ErrFraming) {
		t.Errorf("oversized payload error is not ErrFraming, got %v", err)
	}
}

func TestReadResponseTruncated(t *testing.T) {
	resp := Response{Version: Version, Code: CodeSessionKey, Payload: bytes.Repeat([]byte{7}, 32)}
	raw := resp.Encode()

	for _, cut := range []int{0, 3, 7, 20} {
		_, err := ReadResponse(bytes.NewReader(raw[:cut]), testMaxPayload)
		if !errors.Is(err, ErrFraming) {
			t.Errorf("cut %d: error is not ErrFraming, got %v", cut, err)
		}
	}
}
