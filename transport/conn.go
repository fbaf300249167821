// Package transport carries framed exchanges over a single TCP connection.
//
// The protocol is half-duplex: a request is written in full, then its response is
// read in full, before the next request may start.
//
//	RoundTrip:  write header+payload ──► read response header ──► check magic ──► read payload
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"order-shop/protocol"
)

type Conn struct {
	conn net.Conn
	// One exchange at a time; a second writer would interleave frames on the stream.
	mu sync.Mutex
}

// Dial connects to addr. ctx bounds the connect only.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(c), nil
}

func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn}
}

// RoundTrip sends one request and reads its response. The ctx deadline, if any,
// bounds the whole exchange and cancelling ctx aborts blocked I/O.
//
// A response with the wrong magic is reported as protocol.ErrInvalidMagic before its
// payload is read. After any error the connection is out of frame and must be closed.
func (c *Conn) RoundTrip(ctx context.Context, h protocol.RequestHeader, payload []byte) (protocol.ResponseHeader, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return protocol.ResponseHeader{}, nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := protocol.WriteRequest(c.conn, h, payload); err != nil {
		return protocol.ResponseHeader{}, nil, c.ctxErr(ctx, fmt.Errorf("write request: %w", err))
	}

	rh, err := protocol.ReadResponseHeader(c.conn)
	if err != nil {
		return protocol.ResponseHeader{}, nil, c.ctxErr(ctx, fmt.Errorf("read response header: %w", err))
	}
	if rh.Magic != protocol.Magic {
		return rh, nil, fmt.Errorf("response magic %d: %w", rh.Magic, protocol.ErrInvalidMagic)
	}

	body, err := protocol.ReadPayload(c.conn, rh.PayloadSize)
	if err != nil {
		return rh, nil, c.ctxErr(ctx, fmt.Errorf("read response payload (%d bytes): %w", rh.PayloadSize, err))
	}
	return rh, body, nil
}

// ctxErr prefers the context error when cancellation caused the I/O failure.
func (c *Conn) ctxErr(ctx context.Context, err error) error {
	cerr := ctx.Err()
	if dl, ok := ctx.Deadline(); ok && cerr == nil && !time.Now().Before(dl) {
		// the socket deadline can fire just ahead of the context timer
		cerr = context.DeadlineExceeded
	}
	if cerr != nil {
		return fmt.Errorf("%w (%v)", cerr, err)
	}
	return err
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
