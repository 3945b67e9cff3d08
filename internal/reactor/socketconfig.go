package reactor

import "golang.org/x/sys/unix"

// SocketConfig holds the per-accepted-connection socket tuning described in
// spec.md §4.4 / §6. Defaults match the spec's stated defaults.
type SocketConfig struct {
	BufSize         int // SNDBUF = RCVBUF, default 8 MiB
	KeepaliveIdle   int // seconds, default 120
	KeepaliveIntvl  int // seconds, default 5
	KeepaliveCount  int // probes, default 3
	LingerSeconds   int // default 1
}

// DefaultSocketConfig returns the spec.md §6 defaults.
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		BufSize:        8 * 1024 * 1024,
		KeepaliveIdle:  120,
		KeepaliveIntvl: 5,
		KeepaliveCount: 3,
		LingerSeconds:  1,
	}
}

// ConfigureAccepted applies the non-blocking, TCP_NODELAY, buffer-size,
// keepalive, and linger settings spec.md §4.4 requires for every accepted
// connection.
func ConfigureAccepted(fd int, cfg SocketConfig) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return err
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, cfg.BufSize); err != nil {
		return err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.BufSize); err != nil {
		return err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return err
	}
	if err := setKeepaliveParams(fd, cfg.KeepaliveIdle, cfg.KeepaliveIntvl, cfg.KeepaliveCount); err != nil {
		return err
	}
	return unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{
		Onoff:  1,
		Linger: int32(cfg.LingerSeconds),
	})
}
