//go:build linux

package server

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Listen opens an IPv4 listening socket on every interface with SO_REUSEADDR and
// a backlog of ListenBacklog. Port 0 picks an ephemeral port.
func Listen(port int) (net.Listener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, &StartupError{Op: "socket", Port: port, Err: err}
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, &StartupError{Op: "setsockopt(SO_REUSEADDR)", Port: port, Err: err}
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		unix.Close(fd)
		return nil, &StartupError{Op: "bind", Port: port, Err: err}
	}
	if err := unix.Listen(fd, ListenBacklog); err != nil {
		unix.Close(fd)
		return nil, &StartupError{Op: "listen", Port: port, Err: err}
	}

	// FileListener dups the descriptor; ours is closed with f.
	f := os.NewFile(uintptr(fd), fmt.Sprintf("tcp4-listener:%d", port))
	defer f.Close()
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, &StartupError{Op: "listen", Port: port, Err: err}
	}
	return ln, nil
}
