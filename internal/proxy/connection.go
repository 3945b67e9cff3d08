// Package proxy implements the proxy connection object and the SOCKS5 /
// local-proxy / remote-proxy state machine described in spec.md §4.5. It is
// driven entirely by callbacks dispatched from an internal/reactor.Reactor;
// every read/write here is non-blocking.
package proxy

import (
	"golang.org/x/sys/unix"

	"github.com/holystardb/cos-sub003/internal/reactor"
	"github.com/holystardb/cos-sub003/internal/slotpool"
)

// Side identifies which of a Connection's two transport endpoints an event
// belongs to.
type Side int

const (
	SideClient Side = iota
	SideServer
)

// InvalidFD marks an endpoint with no live file descriptor.
const InvalidFD = -1

// Endpoint is one of a Connection's two transport legs (spec.md §3).
type Endpoint struct {
	FD       int
	Local    unix.Sockaddr
	Remote   unix.Sockaddr
	Err      error
	Inactive bool
}

func (e *Endpoint) reset() {
	e.FD = InvalidFD
	e.Local = nil
	e.Remote = nil
	e.Err = nil
	e.Inactive = false
}

// Connection is the proxy connection object (spec.md §3): two endpoints, a
// scratch buffer, parsed SOCKS request fields, and the current state tag.
// Connections are allocated from a Pool backed by the same slab allocator
// (internal/slotpool) that backs time-wheel timers, giving every connection
// an id-stable slot reference for its lifetime.
type Connection struct {
	node *slotpool.Node

	Client Endpoint
	Server Endpoint

	Scratch      []byte
	Offset       int
	State        State
	Mode         Mode
	FirstContent bool

	AddrType byte
	Host     string
	Port     uint16

	// connRefs are the payloads registered with the reactor for each side,
	// cached so re-arming doesn't need to reallocate them.
	clientRef *connRef
	serverRef *connRef

	reactor *reactor.Reactor
}

// ID returns the connection's stable 32-bit id.
func (c *Connection) ID() uint32 { return c.node.ID() }

// Reactor returns the reactor this connection is pinned to (assigned once,
// at accept time; spec.md §5: "a connection is pinned to the reactor
// assigned at accept").
func (c *Connection) Reactor() *reactor.Reactor { return c.reactor }

// SetReactor pins the connection to r. Called once, by Machine.OnAccept.
func (c *Connection) SetReactor(r *reactor.Reactor) { c.reactor = r }

// connRef is the payload handed to the reactor on Add/Mod calls, so the
// dispatch callback can recover both the connection and which endpoint the
// readiness belongs to.
type connRef struct {
	conn *Connection
	side Side
}

func (c *Connection) refFor(side Side) *connRef {
	if side == SideClient {
		if c.clientRef == nil {
			c.clientRef = &connRef{conn: c, side: SideClient}
		}
		return c.clientRef
	}
	if c.serverRef == nil {
		c.serverRef = &connRef{conn: c, side: SideServer}
	}
	return c.serverRef
}

func (c *Connection) reset() {
	c.Client.reset()
	c.Server.reset()
	c.Offset = 0
	c.State = StateConn
	c.FirstContent = false
	c.AddrType = 0
	c.Host = ""
	c.Port = 0
	c.reactor = nil
	for i := range c.Scratch {
		c.Scratch[i] = 0
	}
}

// Pool is the connection free list (spec.md §3 invariant 3: a connection is
// on exactly one of {free list, in flight}), backed by the slab allocator.
type Pool struct {
	slots      *slotpool.Pool
	scratchLen int
}

// NewPool creates a connection pool sized for capacityHint concurrent
// connections, each with a scratch buffer of scratchLen bytes (sized from
// config per spec.md §3).
func NewPool(capacityHint, scratchLen int) *Pool {
	return &Pool{slots: slotpool.New(capacityHint), scratchLen: scratchLen}
}

// Alloc draws a connection from the free list (growing the pool if
// necessary).
func (p *Pool) Alloc() (*Connection, error) {
	node, err := p.slots.Alloc()
	if err != nil {
		return nil, err
	}
	conn := &Connection{node: node, Scratch: make([]byte, p.scratchLen)}
	conn.Client.FD = InvalidFD
	conn.Server.FD = InvalidFD
	conn.State = StateConn
	return conn, nil
}

// Free returns a connection to the pool. Callers must have already closed
// both endpoints' file descriptors.
func (p *Pool) Free(c *Connection) {
	c.reset()
	p.slots.Free(c.node)
}
