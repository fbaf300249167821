// Package server runs a fixed pool of workers over one listening socket.
//
// Worker loop:
//
//	acquire accept lock → Accept → release lock → ConnHandler.ServeConn (to completion) → repeat
//
// A worker owns exactly one connection at a time, so the pool size bounds the number
// of connections served concurrently. Further peers wait in the listen backlog.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"order-shop/metrics"
	"order-shop/registry"
)

const (
	DefaultWorkers      = 100
	ListenBacklog       = 10
	DefaultDrainTimeout = 5 * time.Second
)

// ConnHandler serves one accepted connection until it is done with it. It must close conn.
type ConnHandler interface {
	ServeConn(ctx context.Context, conn net.Conn)
}

type ConnHandlerFunc func(ctx context.Context, conn net.Conn)

func (f ConnHandlerFunc) ServeConn(ctx context.Context, conn net.Conn) { f(ctx, conn) }

type Option func(*Server)

// WithWorkers sets the pool size. Values below 1 keep the default.
func WithWorkers(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithSerializedAccept controls whether workers take turns calling Accept.
func WithSerializedAccept(on bool) Option {
	return func(s *Server) { s.serializeAccept = on }
}

// WithDrainTimeout bounds how long shutdown waits for in-flight connections before
// closing them.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.drainTimeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry advertises advertiseAddr under registry.ServiceOrders while serving.
// advertiseAddr differs from the listen address because peers need a routable host.
func WithRegistry(reg registry.Registry, advertiseAddr string, ttl int64) Option {
	return func(s *Server) {
		s.registry = reg
		s.advertiseAddr = advertiseAddr
		s.ttl = ttl
	}
}

type Server struct {
	handler         ConnHandler
	logger          *zap.Logger
	workers         int
	serializeAccept bool
	drainTimeout    time.Duration
	registry        registry.Registry
	advertiseAddr   string
	ttl             int64

	acceptMu sync.Mutex
	wg       sync.WaitGroup // running workers
	started  atomic.Bool
	shutdown atomic.Bool // set before the listener is closed so Accept errors read as intentional

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	conns    map[net.Conn]struct{}
	done     chan struct{}
}

// New builds a server around handler. The server is single use: Run or Serve may be
// called once.
func New(handler ConnHandler, opts ...Option) (*Server, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	s := &Server{
		handler:         handler,
		logger:          zap.NewNop(),
		workers:         DefaultWorkers,
		serializeAccept: true,
		drainTimeout:    DefaultDrainTimeout,
		conns:           make(map[net.Conn]struct{}),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	metrics.Register()
	return s, nil
}

// Run listens on port and serves until ctx is cancelled or an accept fails. Socket
// setup failures are returned as *StartupError.
func (s *Server) Run(ctx context.Context, port int) error {
	ln, err := Listen(port)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve starts the worker pool on ln and blocks. It returns nil after a requested
// shutdown and an *AcceptError if a worker's accept failed. ln is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrServerStarted
	}
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.listener = ln
	s.cancel = cancel
	s.mu.Unlock()

	if s.registry != nil {
		err := s.registry.Register(ctx, registry.ServiceOrders, registry.ServiceInstance{Addr: s.advertiseAddr, Weight: 1}, s.ttl)
		if err != nil {
			ln.Close()
			return &StartupError{Op: "register", Port: listenPort(ln), Err: err}
		}
	}

	s.logger.Info("server listening",
		zap.Stringer("addr", ln.Addr()),
		zap.Int("workers", s.workers),
		zap.Bool("serialize_accept", s.serializeAccept))

	fatal := make(chan error, s.workers)
	for i := range s.workers {
		s.wg.Add(1)
		go s.worker(ctx, i, fatal)
	}

	var err error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
	case err = <-fatal:
		s.logger.Error("accept failed, stopping server", zap.Error(err))
	}
	return multierr.Append(err, s.stop(cancel))
}

// Addr is the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Running reports whether the worker pool is accepting connections.
func (s *Server) Running() bool {
	return s.started.Load() && !s.shutdown.Load()
}

// Shutdown asks Serve to stop and waits up to timeout for it to return.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return ErrNotRunning
	}
	cancel()

	select {
	case <-s.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("server: timeout waiting for workers to stop")
	}
}

// stop deregisters, closes the listener, cancels the serving context and waits for
// the workers. Connections still open after the drain window are closed under them.
func (s *Server) stop(cancel context.CancelFunc) error {
	var errs error
	if s.registry != nil {
		ctx, done := context.WithTimeout(context.Background(), s.drainTimeout)
		errs = multierr.Append(errs, s.registry.Deregister(ctx, registry.ServiceOrders, s.advertiseAddr))
		done()
	}

	s.shutdown.Store(true)
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = multierr.Append(errs, fmt.Errorf("server: close listener: %w", err))
	}
	cancel()

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(s.drainTimeout):
		n := s.closeConns()
		s.logger.Warn("drain window elapsed, closed in-flight connections",
			zap.Duration("drain_timeout", s.drainTimeout), zap.Int("connections", n))
		<-drained
	}
	s.logger.Info("server stopped")
	return errs
}

func (s *Server) worker(ctx context.Context, id int, fatal chan<- error) {
	defer s.wg.Done()
	for {
		conn, err := s.accept()
		if err != nil {
			if s.shutdown.Load() || ctx.Err() != nil {
				return
			}
			metrics.AcceptError()
			fatal <- &AcceptError{Worker: id, Err: err}
			return
		}
		s.serve(ctx, id, conn)
	}
}

func (s *Server) accept() (net.Conn, error) {
	if s.serializeAccept {
		s.acceptMu.Lock()
		defer s.acceptMu.Unlock()
	}
	if s.shutdown.Load() {
		return nil, net.ErrClosed
	}
	return s.listener.Accept()
}

// serve runs the handler for one connection. A panicking handler costs the peer its
// connection, not the worker.
func (s *Server) serve(ctx context.Context, worker int, conn net.Conn) {
	if !s.track(conn) {
		conn.Close()
		return
	}
	metrics.ConnectionOpened()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("connection handler panic",
				zap.Int("worker", worker),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
		s.untrack(conn)
		conn.Close()
		metrics.ConnectionClosed()
	}()
	s.handler.ServeConn(ctx, conn)
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
	return len(s.conns)
}

func listenPort(ln net.Listener) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
