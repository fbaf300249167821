// Package client is the requesting side of the order protocol. Every call opens its
// own connection, performs exactly one exchange and closes it.
package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"order-shop/codec"
	"order-shop/loadbalance"
	"order-shop/message"
	"order-shop/protocol"
	"order-shop/registry"
	"order-shop/transport"
)

const DefaultTimeout = 15 * time.Second

var ErrUnknownResponse = errors.New("unknown response id")

type Option func(*Client)

// WithTimeout bounds calls whose context carries no deadline. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithWatch keeps the instance list of a registry-backed client current from
// Registry.Watch until ctx is done, instead of discovering before every call.
// Calls fall back to Discover until the first update arrives.
func WithWatch(ctx context.Context) Option {
	return func(c *Client) { c.watchCtx = ctx }
}

type Client struct {
	addr     string
	registry registry.Registry // find server instances, nil with a fixed address
	balancer loadbalance.Balancer
	timeout  time.Duration
	logger   *zap.Logger

	watchCtx  context.Context
	mu        sync.RWMutex
	instances []registry.ServiceInstance
	watching  bool // instances holds the latest watch update
}

// New returns a client for the server at addr.
func New(addr string, opts ...Option) *Client {
	c := &Client{addr: addr}
	c.apply(opts)
	return c
}

// NewWithRegistry resolves the server through reg and picks one instance with bal
// for every call.
func NewWithRegistry(reg registry.Registry, bal loadbalance.Balancer, opts ...Option) *Client {
	if bal == nil {
		bal = &loadbalance.RoundRobinBalancer{}
	}
	c := &Client{registry: reg, balancer: bal}
	c.apply(opts)
	if c.watchCtx != nil {
		c.watch(c.watchCtx)
	}
	return c
}

func (c *Client) apply(opts []Option) {
	c.timeout = DefaultTimeout
	c.logger = zap.NewNop()
	for _, opt := range opts {
		opt(c)
	}
}

func (c *Client) watch(ctx context.Context) {
	updates := c.registry.Watch(ctx, registry.ServiceOrders)
	go func() {
		for list := range updates {
			c.mu.Lock()
			c.instances = list
			c.watching = true
			c.mu.Unlock()
			c.logger.Debug("instances updated", zap.Int("instances", len(list)))
		}
		c.mu.Lock()
		c.instances = nil
		c.watching = false
		c.mu.Unlock()
	}()
}

func (c *Client) cached() ([]registry.ServiceInstance, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.instances), c.watching
}

func (c *Client) resolve(ctx context.Context) (string, error) {
	if c.registry == nil {
		return c.addr, nil
	}
	instances, ok := c.cached()
	if !ok {
		var err error
		instances, err = c.registry.Discover(ctx, registry.ServiceOrders)
		if err != nil {
			return "", err
		}
	}
	inst, err := c.balancer.Pick(instances)
	if err != nil {
		return "", err
	}
	return inst.Addr, nil
}

// Execute sends h and payload on a fresh connection and returns the response.
//
// An ERROR response returns its header and raw payload together with a *ServerError.
// Wire contract violations return a *ProtocolError. Nothing is retried.
func (c *Client) Execute(ctx context.Context, h protocol.RequestHeader, payload []byte) (protocol.ResponseHeader, []byte, error) {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	addr, err := c.resolve(ctx)
	if err != nil {
		return protocol.ResponseHeader{}, nil, fmt.Errorf("client: resolve server: %w", err)
	}

	conn, err := transport.Dial(ctx, addr)
	if err != nil {
		return protocol.ResponseHeader{}, nil, fmt.Errorf("client: connect %s: %w", addr, err)
	}
	defer conn.Close()

	logger := c.logger.With(zap.String("addr", addr), zap.Stringer("request", h.ID))
	rh, body, err := conn.RoundTrip(ctx, h, payload)
	if err != nil {
		logger.Debug("exchange failed", zap.Error(err))
		if ctx.Err() != nil {
			return rh, nil, fmt.Errorf("client: %w", err)
		}
		return rh, nil, &ProtocolError{Op: "exchange", Err: err}
	}
	logger.Debug("response", zap.Stringer("response", rh.ID), zap.Uint32("payload_size", rh.PayloadSize))

	switch rh.ID {
	case protocol.ResponseError:
		return rh, body, &ServerError{Message: protocol.DecodeErrorMessage(body)}
	case protocol.ResponseDisplayOrders:
		if _, err := codec.RecordCount(len(body)); err != nil {
			return rh, nil, &ProtocolError{Op: "decode", Err: err}
		}
		return rh, body, nil
	default:
		return rh, nil, &ProtocolError{Op: "decode", Err: fmt.Errorf("%w %d", ErrUnknownResponse, uint16(rh.ID))}
	}
}

// DisplayOrders fetches the most recent order items, newest first.
func (c *Client) DisplayOrders(ctx context.Context) ([]message.FullOrderItem, error) {
	rh, body, err := c.Execute(ctx, protocol.NewRequestHeader(protocol.RequestDisplayOrders, 0), nil)
	if err != nil {
		return nil, err
	}
	if rh.ID != protocol.ResponseDisplayOrders {
		return nil, &ProtocolError{Op: "decode", Err: fmt.Errorf("expected %v, got %v", protocol.ResponseDisplayOrders, rh.ID)}
	}
	var items []message.FullOrderItem
	if err := codec.GetCodec(codec.CodecTypeBinary).Decode(body, &items); err != nil {
		return nil, &ProtocolError{Op: "decode", Err: err}
	}
	return items, nil
}
