package protocol

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// MaxErrorMessage is the largest error payload, terminator included.
const MaxErrorMessage = 512

// Wire texts for errors the server reports to peers. Protocol errors describe the
// offending field; store failures are always reported as MsgInternal.
const (
	MsgInvalidMagic    = "Invalid magic number"
	MsgInvalidVersion  = "Invalid request version %d"
	MsgUnknownRequest  = "Unknown request id %d"
	MsgPayloadTooLarge = "Payload too large"
	MsgInternal        = "internal server error"
)

// Request is one validated request as seen by the dispatcher.
type Request struct {
	Header  RequestHeader
	Payload []byte
}

// Response is what a handler produces. The header is derived from it at write time,
// so PayloadSize always matches len(Payload).
type Response struct {
	ID      ResponseID
	Payload []byte
}

// Header returns the wire header for the response.
func (r *Response) Header() ResponseHeader {
	return ResponseHeader{
		Magic:       Magic,
		Version:     Version,
		ID:          r.ID,
		PayloadSize: uint32(len(r.Payload)),
	}
}

// IsError reports whether the response is an ERROR response.
func (r *Response) IsError() bool {
	return r.ID == ResponseError
}

// ErrorResponse builds an ERROR response carrying a NUL-terminated message.
func ErrorResponse(format string, args ...any) *Response {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Response{ID: ResponseError, Payload: EncodeErrorMessage(msg)}
}

// EncodeErrorMessage terminates msg with NUL, truncating it on a rune boundary so
// the result never exceeds MaxErrorMessage bytes.
func EncodeErrorMessage(msg string) []byte {
	msg = truncate(msg, MaxErrorMessage-1)
	buf := make([]byte, len(msg)+1)
	copy(buf, msg)
	return buf
}

// DecodeErrorMessage returns the text up to the first NUL.
func DecodeErrorMessage(payload []byte) string {
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		payload = payload[:i]
	}
	return string(payload)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
