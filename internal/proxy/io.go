package proxy

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrWouldBlock is the recoverable "no data/space right now" outcome from
// non-blocking recv/send (spec.md §7).
var ErrWouldBlock = errors.New("proxy: would block")

// ErrTransportClosed signals a clean peer close (spec.md §7's VIO_CLOSE):
// non-error, informational for the teardown path.
var ErrTransportClosed = errors.New("proxy: transport closed")

// nonBlockingRead performs one non-blocking recv, translating EAGAIN to
// ErrWouldBlock and a zero-length successful read to ErrTransportClosed.
func nonBlockingRead(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		if err == unix.EINTR {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	if n == 0 {
		return 0, ErrTransportClosed
	}
	return n, nil
}

// writeAll performs a blocking-from-the-caller's-perspective write loop
// over a non-blocking fd: spec.md §4.5 requires writing the exact number of
// bytes read to the peer before re-arming, so short writes are retried
// immediately (content payloads are bounded by BufSize, so this never spins
// for long in practice).
func writeAll(fd int, buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				continue
			}
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// closeFD closes fd, ignoring errors (best-effort teardown).
func closeFD(fd int) {
	if fd >= 0 {
		_ = unix.Close(fd)
	}
}

// nonBlockingConnect issues a non-blocking connect(2), returning
// errInProgress (not a real error) when the kernel needs more time — the
// caller arms CONN_SERVER_CHECK for write-readiness in that case.
var errInProgress = errors.New("proxy: connect in progress")

func nonBlockingConnect(fd int, sa unix.Sockaddr) error {
	err := unix.Connect(fd, sa)
	if err == nil {
		return nil
	}
	if err == unix.EINPROGRESS {
		return errInProgress
	}
	return err
}

// socketError reads SO_ERROR off fd, the mechanism CONN_SERVER_CHECK uses
// to discover whether an async connect succeeded (spec.md §4.5).
func socketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// newNonBlockingSocket opens a non-blocking TCP socket in the address
// family matching sa (AF_INET for SockaddrInet4, AF_INET6 otherwise).
func newNonBlockingSocket(sa unix.Sockaddr) (int, error) {
	family := unix.AF_INET
	if _, ok := sa.(*unix.SockaddrInet6); ok {
		family = unix.AF_INET6
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		closeFD(fd)
		return -1, err
	}
	return fd, nil
}
