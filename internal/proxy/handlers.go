package proxy

import (
	"github.com/pkg/errors"

	"github.com/holystardb/cos-sub003/internal/reactor"
)

// ErrAuthFailed signals a rejected SOCKS5 username/password sub-negotiation
// (spec.md §4.5 AUTH / RFC 1929).
var ErrAuthFailed = errors.New("proxy: authentication failed")

// ErrBadRequest signals a malformed SOCKS5 greeting or CONNECT request.
var ErrBadRequest = errors.New("proxy: malformed request")

// ErrTunnelAuth signals a tunnel frame (any frame, not only the first)
// whose auth tag does not match the configured credentials (spec.md §4.5
// R_CONN_SERVER_CHECK).
var ErrTunnelAuth = errors.New("proxy: tunnel auth tag mismatch")

// rearmRead re-arms fd for one more read, oneshot, with the machine's
// configured poll timeout.
func (m *Machine) rearmRead(conn *Connection, fd int, side Side) error {
	return conn.Reactor().ModReadOneshot(fd, conn.refFor(side), m.settings.PollTimeout)
}

// handleConn processes the SOCKS5 greeting (RFC 1928 §3): version,
// method count, and method list. It replies with the chosen method and
// advances to AUTH (username/password configured) or HOST (no-auth).
func (m *Machine) handleConn(conn *Connection) error {
	buf := make([]byte, 512)
	n, err := nonBlockingRead(conn.Client.FD, buf)
	if err == ErrWouldBlock {
		return m.rearmRead(conn, conn.Client.FD, SideClient)
	}
	if err != nil {
		return err
	}
	if n < 2 || buf[0] != socksVersion {
		return ErrBadRequest
	}
	nmethods := int(buf[1])
	if n < 2+nmethods {
		return ErrBadRequest
	}

	method := authNoAuth
	if m.settings.Username != "" {
		method = authUserPass
	}
	if err := writeAll(conn.Client.FD, []byte{socksVersion, method}); err != nil {
		return err
	}

	if method == authUserPass {
		conn.State = StateAuth
	} else {
		conn.State = StateHost
	}
	return m.rearmRead(conn, conn.Client.FD, SideClient)
}

// handleAuth processes the username/password sub-negotiation (RFC 1929).
func (m *Machine) handleAuth(conn *Connection) error {
	buf := make([]byte, 512)
	n, err := nonBlockingRead(conn.Client.FD, buf)
	if err == ErrWouldBlock {
		return m.rearmRead(conn, conn.Client.FD, SideClient)
	}
	if err != nil {
		return err
	}
	if n < 2 {
		return ErrBadRequest
	}
	ulen := int(buf[1])
	if n < 2+ulen+1 {
		return ErrBadRequest
	}
	user := string(buf[2 : 2+ulen])
	plen := int(buf[2+ulen])
	if n < 2+ulen+1+plen {
		return ErrBadRequest
	}
	pass := string(buf[3+ulen : 3+ulen+plen])

	ok := user == m.settings.Username && pass == m.settings.Password
	status := authStatusOK
	if !ok {
		status = authStatusFail
	}
	if err := writeAll(conn.Client.FD, []byte{authVersion, status}); err != nil {
		return err
	}
	if !ok {
		return ErrAuthFailed
	}
	conn.State = StateHost
	return m.rearmRead(conn, conn.Client.FD, SideClient)
}

// handleHost processes the SOCKS5 CONNECT request (RFC 1928 §4), then
// starts a non-blocking connect to the real destination (ModeSocks) or the
// fixed remote peer (ModeLocal, spec.md §4.5: the L proxy never resolves
// the client's requested host itself, it forwards the request encrypted).
func (m *Machine) handleHost(conn *Connection) error {
	buf := make([]byte, 512)
	n, err := nonBlockingRead(conn.Client.FD, buf)
	if err == ErrWouldBlock {
		return m.rearmRead(conn, conn.Client.FD, SideClient)
	}
	if err != nil {
		return err
	}
	if n < 4 || buf[0] != socksVersion || buf[1] != cmdConnect {
		return ErrBadRequest
	}
	atyp, host, port, _, err := parseAddr(buf[3:n])
	if err != nil {
		return err
	}
	conn.AddrType, conn.Host, conn.Port = atyp, host, port

	dialHost, dialPort := host, port
	if conn.Mode == ModeLocal {
		dialHost, dialPort = m.settings.RemoteHost, m.settings.RemotePort
	}
	return m.startConnect(conn, dialHost, dialPort, StateConnServerCheck)
}

// startConnect opens a non-blocking outbound socket toward host:port,
// arming the timeout-tracked multiplexer for write-readiness so
// StateConnServerCheck/StateRConnServerCheck can discover the outcome via
// SO_ERROR (spec.md §4.5).
func (m *Machine) startConnect(conn *Connection, host string, port uint16, onReady State) error {
	sa, err := resolveSockaddr(host, port)
	if err != nil {
		return err
	}
	fd, err := newNonBlockingSocket(sa)
	if err != nil {
		return err
	}
	if err := reactor.ConfigureAccepted(fd, m.settings.Socket); err != nil {
		closeFD(fd)
		return err
	}
	conn.Server.FD = fd

	err = nonBlockingConnect(fd, sa)
	if err != nil && err != errInProgress {
		closeFD(fd)
		conn.Server.FD = InvalidFD
		return err
	}
	conn.State = onReady
	return conn.Reactor().AddWrite(fd, conn.refFor(SideServer), m.settings.ConnectTimeout)
}

// handleConnServerCheck discovers whether the ModeSocks/ModeLocal outbound
// connect succeeded, replies to the SOCKS client, and starts content
// forwarding (plain for ModeSocks, the encrypted tunnel for ModeLocal).
func (m *Machine) handleConnServerCheck(conn *Connection) error {
	if err := socketError(conn.Server.FD); err != nil {
		_ = writeAll(conn.Client.FD, []byte{socksVersion, 0x01, 0x00, ATypIPv4, 0, 0, 0, 0, 0, 0})
		return err
	}

	reply := append([]byte{socksVersion, replySuccess, 0x00}, encodeAddr(ATypIPv4, "0.0.0.0", 0)...)
	if err := writeAll(conn.Client.FD, reply); err != nil {
		return err
	}

	if conn.Mode == ModeLocal {
		addrHeader := encodeAddr(conn.AddrType, conn.Host, conn.Port)
		if err := writeTunnelFrame(conn.Server.FD, m.settings.Cipher, m.settings.AuthTag(), true, addrHeader, nil); err != nil {
			return err
		}
		conn.State = StateLContent
	} else {
		conn.State = StateContent
	}

	if err := m.rearmRead(conn, conn.Client.FD, SideClient); err != nil {
		return err
	}
	return m.rearmRead(conn, conn.Server.FD, SideServer)
}

// handleContent is plain bidirectional forwarding for ModeSocks: whichever
// side became readable is copied verbatim to the other (spec.md §4.5
// CONTENT).
func (m *Machine) handleContent(conn *Connection, side Side) error {
	src, dst := conn.Client.FD, conn.Server.FD
	if side == SideServer {
		src, dst = conn.Server.FD, conn.Client.FD
	}
	buf := make([]byte, m.settings.BufSize)
	n, err := nonBlockingRead(src, buf)
	if err == ErrWouldBlock {
		return m.rearmRead(conn, src, side)
	}
	if err != nil {
		return err
	}
	if err := writeAll(dst, buf[:n]); err != nil {
		return err
	}
	return m.rearmRead(conn, src, side)
}

// checkAuthTag compares got against the configured credentials' tag,
// constant-time not being a concern here since both sides of the tunnel
// already share the secret out of band (spec.md §6).
func (m *Machine) checkAuthTag(got [16]byte) bool {
	want := m.settings.AuthTag()
	return got == want
}

// handleLContent forwards ModeLocal traffic: the client leg is plain SOCKS
// content, the server leg is the length-prefixed encrypted tunnel to the
// remote peer (spec.md §4.5 L_CONTENT, §6 wire format — every frame, not
// just the first, carries the auth tag).
func (m *Machine) handleLContent(conn *Connection, side Side) error {
	if side == SideClient {
		buf := make([]byte, m.settings.BufSize)
		n, err := nonBlockingRead(conn.Client.FD, buf)
		if err == ErrWouldBlock {
			return m.rearmRead(conn, conn.Client.FD, SideClient)
		}
		if err != nil {
			return err
		}
		if err := writeTunnelFrame(conn.Server.FD, m.settings.Cipher, m.settings.AuthTag(), false, nil, buf[:n]); err != nil {
			return err
		}
		return m.rearmRead(conn, conn.Client.FD, SideClient)
	}

	return m.drainTunnel(conn, conn.Server.FD, conn.Client.FD, SideServer, false)
}

// drainTunnel reads whatever is available on tunnelFD, extracts every
// complete frame currently buffered, decrypts and authenticates each, and
// forwards the payload to plainFD, before re-arming tunnelFD for the next
// read. expectFirst gates whether an is_first=1 frame is acceptable here
// (only the very first frame ModeRemote receives should set it).
func (m *Machine) drainTunnel(conn *Connection, tunnelFD, plainFD int, side Side, expectFirst bool) error {
	buf := make([]byte, m.settings.BufSize)
	n, err := nonBlockingRead(tunnelFD, buf)
	if err == ErrWouldBlock {
		return m.rearmRead(conn, tunnelFD, side)
	}
	if err != nil {
		return err
	}
	if err := conn.appendScratch(buf[:n]); err != nil {
		return err
	}
	for {
		frame, ok, err := conn.extractFrame()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		plaintext, err := m.settings.Cipher.Decrypt(frame)
		if err != nil {
			return err
		}
		isFirst, tag, payload, err := parseTunnelPlaintext(plaintext)
		if err != nil {
			return err
		}
		if !m.checkAuthTag(tag) {
			return ErrTunnelAuth
		}
		if isFirst {
			if !expectFirst || !conn.FirstContent {
				return ErrBadRequest
			}
			atyp, host, port, _, err := parseAddr(payload)
			if err != nil {
				return err
			}
			conn.AddrType, conn.Host, conn.Port = atyp, host, port
			conn.FirstContent = false
			if err := m.startConnect(conn, host, port, StateRConnServerCheck); err != nil {
				return err
			}
			// The connect is now pending (StateRConnServerCheck): stop
			// draining, any further buffered bytes wait for the next read.
			break
		}
		if err := writeAll(plainFD, payload); err != nil {
			return err
		}
	}
	if conn.State != StateRConnServerCheck {
		return m.rearmRead(conn, tunnelFD, side)
	}
	return nil
}

// handleRContent forwards ModeRemote traffic: the client leg is the
// encrypted tunnel from the local peer (every frame auth-tagged, the first
// also carrying the real destination address), the server leg is plain
// traffic to that destination (spec.md §4.5 R_CONTENT).
func (m *Machine) handleRContent(conn *Connection, side Side) error {
	if side == SideServer {
		buf := make([]byte, m.settings.BufSize)
		n, err := nonBlockingRead(conn.Server.FD, buf)
		if err == ErrWouldBlock {
			return m.rearmRead(conn, conn.Server.FD, SideServer)
		}
		if err != nil {
			return err
		}
		if err := writeTunnelFrame(conn.Client.FD, m.settings.Cipher, m.settings.AuthTag(), false, nil, buf[:n]); err != nil {
			return err
		}
		return m.rearmRead(conn, conn.Server.FD, SideServer)
	}

	return m.drainTunnel(conn, conn.Client.FD, conn.Server.FD, SideClient, conn.FirstContent)
}

// handleRConnServerCheck discovers whether ModeRemote's connect to the real
// destination succeeded and, if so, starts R_CONTENT forwarding on both
// legs.
func (m *Machine) handleRConnServerCheck(conn *Connection) error {
	if err := socketError(conn.Server.FD); err != nil {
		return err
	}
	conn.State = StateRContent
	if err := m.rearmRead(conn, conn.Server.FD, SideServer); err != nil {
		return err
	}
	return m.rearmRead(conn, conn.Client.FD, SideClient)
}
