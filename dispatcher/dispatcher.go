// Package dispatcher serves one connection at a time: it reads framed requests,
// validates them, routes them to a handler and writes framed responses.
//
// Per-connection state machine:
//
//	AWAIT_HEADER ──► VALIDATE ──► DISPATCH ──► RESPOND ──► AWAIT_HEADER
//	     │               │                        │
//	     ▼               └──── ERROR response ───►│
//	   CLOSE ◄───────────────── after any ERROR ──┘
//
// A successful response returns the connection to AWAIT_HEADER; any ERROR response
// closes it. Read errors, the idle timeout and a clean EOF close it silently.
package dispatcher

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"order-shop/codec"
	"order-shop/metrics"
	"order-shop/middleware"
	"order-shop/protocol"
	"order-shop/store"
)

const (
	DefaultIdleTimeout = 10 * time.Second
	DefaultMaxRows     = 10
)

type Config struct {
	// IdleTimeout bounds each header and payload read.
	IdleTimeout time.Duration
	// WriteTimeout bounds each response write. Defaults to IdleTimeout.
	WriteTimeout time.Duration
	// MaxRows is the row limit passed to the store for DISPLAY_ORDERS.
	MaxRows int
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = c.IdleTimeout
	}
	if c.MaxRows <= 0 {
		c.MaxRows = DefaultMaxRows
	}
	if limit := int(protocol.MaxPayloadSize) / codec.RecordSize; c.MaxRows > limit {
		c.MaxRows = limit
	}
	return c
}

// Dispatcher is safe for concurrent use; it keeps no per-connection state.
type Dispatcher struct {
	orders  store.OrderLister
	logger  *zap.Logger
	cfg     Config
	handler middleware.HandlerFunc
}

// New builds a dispatcher whose routing is wrapped by mws, first one outermost.
func New(orders store.OrderLister, logger *zap.Logger, cfg Config, mws ...middleware.Middleware) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Register()
	d := &Dispatcher{
		orders: orders,
		logger: logger,
		cfg:    cfg.withDefaults(),
	}
	d.handler = middleware.Chain(mws...)(d.route)
	return d
}

type state int

const (
	stateAwaitHeader state = iota
	stateValidate
	stateDispatch
	stateRespond
	stateClose
)

// exchange is the state of the request currently being served.
type exchange struct {
	conn   net.Conn
	logger *zap.Logger
	header protocol.RequestHeader
	resp   *protocol.Response
}

// ServeConn runs the state machine until the connection closes. It always closes conn.
func (d *Dispatcher) ServeConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	ex := &exchange{
		conn: conn,
		logger: d.logger.With(
			zap.String("conn_id", uuid.NewString()),
			zap.Stringer("remote", conn.RemoteAddr()),
		),
	}

	st := stateAwaitHeader
	for st != stateClose {
		switch st {
		case stateAwaitHeader:
			st = d.awaitHeader(ctx, ex)
		case stateValidate:
			st = d.validate(ex)
		case stateDispatch:
			st = d.dispatch(ctx, ex)
		case stateRespond:
			st = d.respond(ex)
		}
	}
}

func (d *Dispatcher) awaitHeader(ctx context.Context, ex *exchange) state {
	if ctx.Err() != nil {
		return stateClose
	}
	ex.resp = nil
	if err := ex.conn.SetReadDeadline(time.Now().Add(d.cfg.IdleTimeout)); err != nil {
		ex.logger.Debug("set read deadline", zap.Error(err))
		return stateClose
	}
	h, err := protocol.ReadRequestHeader(ex.conn)
	if err != nil {
		logReadError(ex.logger, "read header", err)
		return stateClose
	}
	ex.header = h
	return stateValidate
}

func (d *Dispatcher) validate(ex *exchange) state {
	err := ex.header.Validate()
	var verr *protocol.VersionError
	switch {
	case errors.Is(err, protocol.ErrInvalidMagic):
		metrics.ProtocolError(metrics.ReasonMagic)
		ex.resp = protocol.ErrorResponse(protocol.MsgInvalidMagic)
		return stateRespond
	case errors.As(err, &verr):
		metrics.ProtocolError(metrics.ReasonVersion)
		ex.resp = protocol.ErrorResponse(protocol.MsgInvalidVersion, verr.Got)
		return stateRespond
	case ex.header.PayloadSize > protocol.MaxPayloadSize:
		metrics.ProtocolError(metrics.ReasonTooLarge)
		ex.resp = protocol.ErrorResponse(protocol.MsgPayloadTooLarge)
		return stateRespond
	}
	return stateDispatch
}

func (d *Dispatcher) dispatch(ctx context.Context, ex *exchange) state {
	// The declared payload is consumed even when the request id takes none, so the
	// next header starts on a frame boundary.
	payload, err := protocol.ReadPayload(ex.conn, ex.header.PayloadSize)
	if err != nil {
		logReadError(ex.logger, "read payload", err)
		return stateClose
	}
	ex.resp = d.handler(ctx, &protocol.Request{Header: ex.header, Payload: payload})
	if ex.resp == nil {
		ex.resp = protocol.ErrorResponse(protocol.MsgInternal)
	}
	return stateRespond
}

func (d *Dispatcher) respond(ex *exchange) state {
	if err := ex.conn.SetWriteDeadline(time.Now().Add(d.cfg.WriteTimeout)); err != nil {
		ex.logger.Debug("set write deadline", zap.Error(err))
		return stateClose
	}
	if err := protocol.WriteResponse(ex.conn, ex.resp); err != nil {
		ex.logger.Warn("write response", zap.Stringer("response", ex.resp.ID), zap.Error(err))
		return stateClose
	}
	if ex.resp.IsError() {
		ex.logger.Info("closing connection after error response",
			zap.String("message", protocol.DecodeErrorMessage(ex.resp.Payload)))
		return stateClose
	}
	return stateAwaitHeader
}

// route is the innermost handler of the middleware chain.
func (d *Dispatcher) route(ctx context.Context, req *protocol.Request) *protocol.Response {
	switch req.Header.ID {
	case protocol.RequestDisplayOrders:
		return d.displayOrders(ctx)
	default:
		return protocol.ErrorResponse(protocol.MsgUnknownRequest, uint16(req.Header.ID))
	}
}

func (d *Dispatcher) displayOrders(ctx context.Context) *protocol.Response {
	items, err := d.orders.ListRecentOrderItems(ctx, d.cfg.MaxRows)
	if err != nil {
		// The store text stays in the log; the peer only learns that it failed.
		d.logger.Error("list recent order items", zap.Error(err))
		return protocol.ErrorResponse(protocol.MsgInternal)
	}
	if len(items) > d.cfg.MaxRows {
		items = items[:d.cfg.MaxRows]
	}
	return &protocol.Response{
		ID:      protocol.ResponseDisplayOrders,
		Payload: codec.EncodeRecords(items),
	}
}

func logReadError(logger *zap.Logger, op string, err error) {
	var nerr net.Error
	switch {
	case errors.Is(err, io.EOF):
		logger.Debug("client closed connection")
	case errors.As(err, &nerr) && nerr.Timeout():
		logger.Debug("idle timeout", zap.String("op", op))
	case errors.Is(err, net.ErrClosed):
		logger.Debug("connection closed locally", zap.String("op", op))
	default:
		logger.Warn(op, zap.Error(err))
	}
}
