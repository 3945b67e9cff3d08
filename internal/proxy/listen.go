package proxy

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ListenSocket binds and listens a non-blocking TCP socket on
// bindAddress:port, returning the raw fd for registration with a
// reactor.Pool's acceptor (spec.md §4.4: the acceptor owns the listening
// socket's multiplexer, not a reactor).
func ListenSocket(bindAddress string, port uint16, backlog int) (int, error) {
	sa, err := resolveSockaddr(bindAddress, port)
	if err != nil {
		return -1, errors.Wrap(err, "proxy: resolve bind address")
	}
	fd, err := newNonBlockingSocket(sa)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		closeFD(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		closeFD(fd)
		return -1, errors.Wrap(err, "proxy: bind")
	}
	if err := unix.Listen(fd, backlog); err != nil {
		closeFD(fd)
		return -1, errors.Wrap(err, "proxy: listen")
	}
	return fd, nil
}
