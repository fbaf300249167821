package client

import "fmt"

// ServerError is an ERROR response. Message is the server's text with the
// terminating NUL removed.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

// ProtocolError means the exchange broke the wire contract: a short read, a bad
// magic number, a payload size that does not fit the response, or an unknown
// response id. It is never retried.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
