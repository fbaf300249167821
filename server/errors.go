package server

import (
	"errors"
	"fmt"
)

var (
	ErrNilHandler    = errors.New("server: connection handler must not be nil")
	ErrServerStarted = errors.New("server: already started")
	ErrNotRunning    = errors.New("server: not running")
)

// StartupError aborts startup: the listening socket could not be created, configured,
// bound or put into listening state, or the server could not be advertised.
type StartupError struct {
	Op   string // socket, setsockopt(SO_REUSEADDR), bind, listen, register
	Port int
	Err  error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("server: startup failed on port %d: %s: %v", e.Port, e.Op, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// AcceptError is a failure of accept() outside of shutdown. It stops the whole
// server rather than leaving the pool one worker short.
type AcceptError struct {
	Worker int
	Err    error
}

func (e *AcceptError) Error() string {
	return fmt.Sprintf("server: worker %d: accept: %v", e.Worker, e.Err)
}

func (e *AcceptError) Unwrap() error { return e.Err }
