//go:build !linux

package reactor

import "golang.org/x/sys/unix"

func setKeepaliveParams(fd, idle, _, _ int) error {
	// Darwin/BSD lack TCP_KEEPIDLE/TCP_KEEPINTVL/TCP_KEEPCNT; TCP_KEEPALIVE
	// is the closest portable equivalent (idle time only).
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPALIVE, idle)
}
