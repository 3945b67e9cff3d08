package proxy

import (
	"github.com/holystardb/cos-sub003/internal/logging"
	"github.com/holystardb/cos-sub003/internal/reactor"
	"golang.org/x/sys/unix"
)

// Machine is the proxy state machine (spec.md §4.5): it owns the
// connection pool and dispatches reactor callbacks to per-state handlers
// according to the configured Mode.
type Machine struct {
	settings Settings
	pool     *Pool
	log      logging.Logger
}

// NewMachine constructs a Machine for the given settings, connection pool,
// and logger.
func NewMachine(settings Settings, pool *Pool, log logging.Logger) *Machine {
	return &Machine{settings: settings, pool: pool, log: log}
}

// OnAccept is the reactor.AcceptCallback wired into a reactor.Pool's
// acceptor: it allocates a connection, assigns it to the chosen reactor,
// and arms the first state's read per Mode.
func (m *Machine) OnAccept(fd int, remote unix.Sockaddr, r *reactor.Reactor) bool {
	conn, err := m.pool.Alloc()
	if err != nil {
		m.log.Warning().Err(err).Log("proxy: connection pool exhausted, dropping accept")
		return false
	}
	conn.Client.FD = fd
	conn.Client.Remote = remote
	conn.Mode = m.settings.Mode
	conn.SetReactor(r)

	switch m.settings.Mode {
	case ModeRemote:
		conn.State = StateRContent
		conn.FirstContent = true
	default:
		conn.State = StateConn
	}

	if err := r.AddRead(fd, conn.refFor(SideClient), m.settings.PollTimeout); err != nil {
		m.log.Warning().Err(err).Int("conn_id", int(conn.ID())).Log("proxy: failed to arm accepted fd")
		m.pool.Free(conn)
		return false
	}
	return true
}

// Dispatch is the reactor.Callback this Machine drives reactors with.
func (m *Machine) Dispatch(fd int, events reactor.Events, payload reactor.Payload) {
	ref, ok := payload.(*connRef)
	if !ok || ref == nil {
		return
	}
	conn := ref.conn

	if events&reactor.EventError != 0 {
		m.closeConn(conn, "io error")
		return
	}
	if events&reactor.EventTimeout != 0 {
		m.closeConn(conn, "timeout")
		return
	}

	var err error
	switch conn.State {
	case StateConn:
		err = m.handleConn(conn)
	case StateAuth:
		err = m.handleAuth(conn)
	case StateHost:
		err = m.handleHost(conn)
	case StateConnServerCheck:
		err = m.handleConnServerCheck(conn)
	case StateContent:
		err = m.handleContent(conn, ref.side)
	case StateLContent:
		err = m.handleLContent(conn, ref.side)
	case StateRContent:
		err = m.handleRContent(conn, ref.side)
	case StateRConnServerCheck:
		err = m.handleRConnServerCheck(conn)
	}

	if err != nil && err != ErrWouldBlock {
		m.closeConn(conn, err.Error())
	}
}

// closeConn is the uniform error/teardown path (spec.md §4.5): close both
// fds (detaching from whichever multiplexer each belongs to) and return the
// connection to the free list.
func (m *Machine) closeConn(conn *Connection, reason string) {
	if conn.Reactor() != nil {
		if conn.Client.FD != InvalidFD {
			_ = conn.Reactor().Del(conn.Client.FD)
			_ = conn.Reactor().EpollDel(conn.Client.FD)
		}
		if conn.Server.FD != InvalidFD {
			_ = conn.Reactor().Del(conn.Server.FD)
			_ = conn.Reactor().EpollDel(conn.Server.FD)
		}
	}
	closeFD(conn.Client.FD)
	closeFD(conn.Server.FD)
	m.log.Debug().Int("conn_id", int(conn.ID())).Str("reason", reason).Log("proxy: connection closed")
	m.pool.Free(conn)
}
