package pat

import (
	"net"
	"sync"
	"time"

	"github.com/holystardb/cos-sub003/internal/logging"
	"github.com/pkg/errors"
)

const tickInterval = 100 * time.Millisecond

// Hub owns a fixed set of numbered peers (spec.md §4.6) and, in server
// mode, the listener that accepts inbound connections and routes each one
// (after its AuthReq handshake) to the matching Peer by pno.
type Hub struct {
	logger logging.Logger

	mu    sync.RWMutex
	peers map[byte]*Peer

	listener net.Listener
	stopCh   chan struct{}
}

// NewHub creates an empty hub.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		logger: logger,
		peers:  make(map[byte]*Peer),
		stopCh: make(chan struct{}),
	}
}

// AddPeer registers and starts a peer. For RoleClient peers this begins the
// dial/reconnect loop immediately; RoleServer peers wait for an inbound
// connection via Listen/Accept.
func (h *Hub) AddPeer(cfg Config, handler Handler) (*Peer, error) {
	if cfg.Pno == 255 {
		return nil, ErrInvalidPno
	}
	p := NewPeer(cfg, handler, h.logger)
	h.mu.Lock()
	h.peers[cfg.Pno] = p
	h.mu.Unlock()
	p.Start()
	return p, nil
}

// Peer looks up a registered peer by number.
func (h *Hub) Peer(pno byte) (*Peer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.peers[pno]
	return p, ok
}

// Listen starts accepting inbound PAT connections on addr, routing each to
// its RoleServer peer once AuthReq/AuthRsp completes.
func (h *Hub) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "pat: listen")
	}
	h.listener = ln
	go h.acceptLoop(ln)
	return nil
}

func (h *Hub) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-h.stopCh:
				return
			default:
				h.logger.Warning().Err(err).Log("pat: accept failed")
				return
			}
		}
		go h.handshake(conn)
	}
}

func (h *Hub) handshake(conn net.Conn) {
	clientPno, user, pass, err := readAuthReq(conn)
	if err != nil {
		conn.Close()
		return
	}

	p, ok := h.Peer(clientPno)
	if !ok {
		writeAuthRsp(conn, false)
		conn.Close()
		h.logger.Warning().Int("pno", int(clientPno)).Log("pat: auth for unknown peer")
		return
	}
	want := p.cfg.authTag()
	got := Config{Username: user, Password: pass}.authTag()
	if want != got {
		writeAuthRsp(conn, false)
		conn.Close()
		h.logger.Warning().Int("pno", int(clientPno)).Log("pat: auth rejected")
		return
	}

	if err := writeAuthRsp(conn, true); err != nil {
		conn.Close()
		return
	}
	p.SetAccepted(conn)
}

// Run drives every registered peer's time wheel at the spec's 100ms tick
// granularity until Close is called.
func (h *Hub) Run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.mu.RLock()
			for _, p := range h.peers {
				p.Tick()
			}
			h.mu.RUnlock()
		}
	}
}

// Close stops the listener, the tick loop, and every registered peer.
func (h *Hub) Close() error {
	close(h.stopCh)
	if h.listener != nil {
		h.listener.Close()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.peers {
		p.Close()
	}
	return nil
}
