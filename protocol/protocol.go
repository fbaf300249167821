// Package protocol implements the binary request/response protocol spoken between
// the order client and the order server.
//
// Every message is a fixed 8-byte header followed by exactly PayloadSize bytes.
// The reader consumes the header first, then reads the declared payload in full.
// All integers are big-endian (network byte order) and nothing is padded.
//
// Header format (identical for requests and responses):
//
//	0       1       2               4                               8
//	┌───────┬───────┬───────────────┬───────────────────────────────┬──────────────┐
//	│ magic │  ver  │   id uint16   │       payloadSize uint32      │ payload ...  │
//	│  64   │  01   │               │                               │              │
//	└───────┴───────┴───────────────┴───────────────────────────────┴──────────────┘
//
// Exchanges are half-duplex: a client sends one request and waits for the complete
// response before sending the next one on the same connection.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic      byte = 64
	Version    byte = 1
	HeaderSize int  = 8 // 1 (magic) + 1 (version) + 2 (id) + 4 (payloadSize)

	// MaxPayloadSize bounds a single payload in either direction.
	MaxPayloadSize uint32 = 20 * 1024 * 1024
)

// RequestID identifies what the client asks for. Unknown values are answered with
// ResponseError and never ignored.
type RequestID uint16

const (
	RequestDisplayOrders RequestID = 0
)

func (id RequestID) String() string {
	switch id {
	case RequestDisplayOrders:
		return "DISPLAY_ORDERS"
	default:
		return fmt.Sprintf("REQUEST(%d)", uint16(id))
	}
}

// ResponseID identifies how the response payload must be interpreted.
type ResponseID uint16

const (
	ResponseError         ResponseID = 0 // NUL-terminated message
	ResponseDisplayOrders ResponseID = 1 // packed FullOrderItem records
)

func (id ResponseID) String() string {
	switch id {
	case ResponseError:
		return "ERROR"
	case ResponseDisplayOrders:
		return "DISPLAY_ORDERS"
	default:
		return fmt.Sprintf("RESPONSE(%d)", uint16(id))
	}
}

var (
	ErrInvalidMagic    = errors.New("protocol: invalid magic number")
	ErrPayloadTooLarge = errors.New("protocol: payload too large")
	ErrPayloadMismatch = errors.New("protocol: payload length does not match header")
)

// VersionError reports a header carrying a protocol version this build does not speak.
type VersionError struct {
	Got byte
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("protocol: unsupported version %d", e.Got)
}

// RequestHeader is the fixed header of a client request.
type RequestHeader struct {
	Magic       byte
	Version     byte
	ID          RequestID
	PayloadSize uint32
}

// NewRequestHeader returns a header with the current magic and version.
func NewRequestHeader(id RequestID, payloadSize uint32) RequestHeader {
	return RequestHeader{Magic: Magic, Version: Version, ID: id, PayloadSize: payloadSize}
}

// Validate checks magic before version; the id is only meaningful once both pass.
func (h RequestHeader) Validate() error {
	if h.Magic != Magic {
		return ErrInvalidMagic
	}
	if h.Version != Version {
		return &VersionError{Got: h.Version}
	}
	return nil
}

// ResponseHeader is the fixed header of a server response.
type ResponseHeader struct {
	Magic       byte
	Version     byte
	ID          ResponseID
	PayloadSize uint32
}

func putHeader(buf []byte, magic, version byte, id uint16, size uint32) {
	buf[0] = magic
	buf[1] = version
	binary.BigEndian.PutUint16(buf[2:4], id)
	binary.BigEndian.PutUint32(buf[4:8], size)
}

// MarshalBinary encodes the header into its 8-byte wire form.
func (h RequestHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	putHeader(buf, h.Magic, h.Version, uint16(h.ID), h.PayloadSize)
	return buf, nil
}

// MarshalBinary encodes the header into its 8-byte wire form.
func (h ResponseHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	putHeader(buf, h.Magic, h.Version, uint16(h.ID), h.PayloadSize)
	return buf, nil
}

func (h *RequestHeader) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return io.ErrUnexpectedEOF
	}
	h.Magic = data[0]
	h.Version = data[1]
	h.ID = RequestID(binary.BigEndian.Uint16(data[2:4]))
	h.PayloadSize = binary.BigEndian.Uint32(data[4:8])
	return nil
}

func (h *ResponseHeader) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return io.ErrUnexpectedEOF
	}
	h.Magic = data[0]
	h.Version = data[1]
	h.ID = ResponseID(binary.BigEndian.Uint16(data[2:4]))
	h.PayloadSize = binary.BigEndian.Uint32(data[4:8])
	return nil
}

// ReadRequestHeader reads exactly HeaderSize bytes from r.
// A connection closed before the first byte yields io.EOF; one closed mid-header
// yields io.ErrUnexpectedEOF. No field is validated here.
func ReadRequestHeader(r io.Reader) (RequestHeader, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return RequestHeader{}, err
	}
	var h RequestHeader
	_ = h.UnmarshalBinary(buf[:])
	return h, nil
}

// ReadResponseHeader reads exactly HeaderSize bytes from r.
func ReadResponseHeader(r io.Reader) (ResponseHeader, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return ResponseHeader{}, err
	}
	var h ResponseHeader
	_ = h.UnmarshalBinary(buf[:])
	return h, nil
}

// ReadPayload reads exactly size bytes following a header.
func ReadPayload(r io.Reader, size uint32) ([]byte, error) {
	if size > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	if size == 0 {
		return nil, nil
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteRequest writes header and payload. h.PayloadSize must equal len(payload).
func WriteRequest(w io.Writer, h RequestHeader, payload []byte) error {
	if int(h.PayloadSize) != len(payload) {
		return ErrPayloadMismatch
	}
	buf, _ := h.MarshalBinary()
	return writeFrame(w, buf, payload)
}

// WriteResponse writes the response header first and then the payload, if any.
// The caller must not share w with another writer while this runs.
func WriteResponse(w io.Writer, resp *Response) error {
	if len(resp.Payload) > int(MaxPayloadSize) {
		return ErrPayloadTooLarge
	}
	buf, _ := resp.Header().MarshalBinary()
	return writeFrame(w, buf, resp.Payload)
}

func writeFrame(w io.Writer, header, payload []byte) error {
	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return nil
}
