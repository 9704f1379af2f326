package wire

import (
	"io"
)

// Call writes one Request envelope on rw and reads back one Response.
// It is the synchronous round trip every protocol step of a client or a
// self-registering message server reduces to.
func Call(rw io.ReadWriter, req Request, maxPayload uint32) (Response, error) {
	var resp Response

	_, err := rw.Write(req.Encode())
	if nil != err {
		return resp, wrapFramingError(err, "failed writing request")
	}

	return ReadResponse(rw, maxPayload)
}
