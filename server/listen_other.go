//go:build !linux

package server

import (
	"fmt"
	"net"
)

// Listen opens an IPv4 listening socket on every interface. The runtime sets
// SO_REUSEADDR on Unix platforms; the backlog is the platform default rather
// than ListenBacklog.
func Listen(port int) (net.Listener, error) {
	ln, err := net.Listen("tcp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, &StartupError{Op: "listen", Port: port, Err: err}
	}
	return ln, nil
}
