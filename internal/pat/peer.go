package pat

import (
	"crypto/md5"
	"net"
	"sync"
	"time"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
	"github.com/holystardb/cos-sub003/internal/logging"
	"github.com/holystardb/cos-sub003/internal/timewheel"
)

// Role distinguishes the two ends of a PAT connection (spec.md §4.6: a
// server accepts, a client dials and reconnects).
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// Config describes one peer's identity and credentials.
type Config struct {
	Pno      byte // peer number, 0..254; 255 reserved
	Role     Role
	Address  string // dial address for RoleClient, listen address for RoleServer
	Username string
	Password string

	// QueueDepth bounds each peer's receive/priority lfq queues.
	QueueDepth int
	// MinBackoff/MaxBackoff bound the client reconnect delay (SPEC_FULL.md
	// §8 Open Question #5: capped exponential backoff with jitter).
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func (c Config) authTag() [16]byte {
	return md5.Sum([]byte(c.Username + c.Password))
}

// event is what flows through a peer's receive queues: either inbound Data
// from the wire, or a fired user timer (pushed onto the priority lane so it
// preempts ordinary data, mirroring the original's head-of-list timer
// insertion).
type event struct {
	kind     eventKind
	srcPno   byte
	payload  []byte
	timerArg any
}

type eventKind int

const (
	eventData eventKind = iota
	eventTimer
)

// Handler processes events drained from a Peer's queues by its worker
// goroutine.
type Handler interface {
	OnData(srcPno byte, payload []byte)
	OnTimer(arg any)
}

// Peer is one numbered PAT endpoint: a connected (or reconnecting) socket,
// a receive side split into priority/normal lfq queues drained by a single
// worker goroutine, a send queue drained by a sender goroutine, and a user
// timer wheel.
type Peer struct {
	cfg     Config
	logger  logging.Logger
	handler Handler

	mu   sync.Mutex
	conn net.Conn

	priority lfq.Queue[event]
	normal   lfq.Queue[event]
	sendQ    lfq.Queue[[]byte]

	wheel *timewheel.Wheel

	closeCh chan struct{}
	closed  bool
}

// NewPeer constructs a Peer; call Start to begin its worker/sender
// goroutines and (for RoleClient) the reconnect loop.
func NewPeer(cfg Config, handler Handler, logger logging.Logger) *Peer {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Peer{
		cfg:      cfg,
		handler:  handler,
		logger:   logger,
		priority: lfq.NewMPMC[event](cfg.QueueDepth),
		normal:   lfq.NewMPMC[event](cfg.QueueDepth),
		sendQ:    lfq.NewMPMC[[]byte](cfg.QueueDepth),
		wheel:    timewheel.New(cfg.QueueDepth),
		closeCh:  make(chan struct{}),
	}
}

// Pno returns the peer's configured number.
func (p *Peer) Pno() byte { return p.cfg.Pno }

// Start launches the worker goroutine that drains received events, the
// sender goroutine that drains the send queue, and (RoleClient only) the
// connect/reconnect loop. RoleServer peers instead wait for SetAccepted.
func (p *Peer) Start() {
	if p.cfg.Role == RoleClient {
		go p.dialLoop()
	}
	go p.worker()
	go p.sender()
}

// SetAccepted installs an already-accepted, already-authenticated
// connection for a server-role peer (called by the listener once the
// AuthReq handshake for this pno has completed).
func (p *Peer) SetAccepted(conn net.Conn) {
	p.setConn(conn)
}

func (p *Peer) setConn(conn net.Conn) {
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	if conn != nil {
		go p.readLoop(conn)
	}
}

func (p *Peer) getConn() net.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

// dialLoop implements the client-role connect/reconnect state with capped
// exponential backoff and jitter (SPEC_FULL.md §8 Open Question #5).
func (p *Peer) dialLoop() {
	backoff := p.cfg.MinBackoff
	for {
		select {
		case <-p.closeCh:
			return
		default:
		}

		conn, err := dialTimeout("tcp", p.cfg.Address, 10*time.Second)
		if err != nil {
			p.logger.Warning().Err(err).Str("addr", p.cfg.Address).Log("pat: dial failed")
			if !p.sleepBackoff(&backoff) {
				return
			}
			continue
		}

		if err := writeAuthReq(conn, p.cfg.Pno, p.cfg.Username, p.cfg.Password); err != nil {
			conn.Close()
			if !p.sleepBackoff(&backoff) {
				return
			}
			continue
		}
		ok, err := readAuthRsp(conn)
		if err != nil || !ok {
			conn.Close()
			p.logger.Warning().Log("pat: auth rejected")
			if !p.sleepBackoff(&backoff) {
				return
			}
			continue
		}

		backoff = p.cfg.MinBackoff
		p.setConn(conn)

		// readLoop clears p.conn on the connection's first read error;
		// poll for that rather than threading a done-channel through, since
		// readLoop already runs as its own goroutine off setConn.
		for p.getConn() == conn {
			select {
			case <-p.closeCh:
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
	}
}

// sleepBackoff waits the current backoff (doubling, capped, jittered) and
// reports whether the peer is still open.
func (p *Peer) sleepBackoff(backoff *time.Duration) bool {
	jitter := time.Duration(float64(*backoff) * (0.5 + 0.5*jitterFraction()))
	select {
	case <-time.After(jitter):
	case <-p.closeCh:
		return false
	}
	*backoff *= 2
	if *backoff > p.cfg.MaxBackoff {
		*backoff = p.cfg.MaxBackoff
	}
	return true
}

// jitterFraction returns a value in [0,1) taken from the wall clock's
// nanoseconds. Grounded on the need for allocation-free jitter without
// reaching for math/rand's global lock on every reconnect attempt.
func jitterFraction() float64 {
	return float64(time.Now().UnixNano()%1000) / 1000
}

func (p *Peer) readLoop(conn net.Conn) {
	for {
		destPno, srcPno, payload, err := readData(conn)
		if err != nil {
			p.mu.Lock()
			if p.conn == conn {
				p.conn = nil
			}
			p.mu.Unlock()
			return
		}
		if destPno != p.cfg.Pno {
			continue
		}
		ev := event{kind: eventData, srcPno: srcPno, payload: payload}
		p.enqueueNormal(ev)
	}
}

func (p *Peer) enqueueNormal(ev event) {
	backoff := iox.Backoff{}
	for p.normal.Enqueue(&ev) != nil {
		backoff.Wait()
	}
}

func (p *Peer) enqueuePriority(ev event) {
	backoff := iox.Backoff{}
	for p.priority.Enqueue(&ev) != nil {
		backoff.Wait()
	}
}

// worker drains the priority lane (user timers, DEL_TIMER-adjacent events)
// ahead of the normal lane (ordinary Data), mirroring the original's
// intrusive-list head-insertion for timer events.
func (p *Peer) worker() {
	backoff := iox.Backoff{}
	for {
		select {
		case <-p.closeCh:
			return
		default:
		}
		if ev, err := p.priority.Dequeue(); err == nil {
			backoff.Reset()
			p.dispatch(ev)
			continue
		}
		if ev, err := p.normal.Dequeue(); err == nil {
			backoff.Reset()
			p.dispatch(ev)
			continue
		}
		backoff.Wait()
	}
}

func (p *Peer) dispatch(ev event) {
	switch ev.kind {
	case eventData:
		p.handler.OnData(ev.srcPno, ev.payload)
	case eventTimer:
		p.handler.OnTimer(ev.timerArg)
	}
}

// Send enqueues payload for delivery to destPno over this peer's
// connection.
func (p *Peer) Send(destPno byte, payload []byte) {
	frame := encodeSendFrame(destPno, p.cfg.Pno, payload)
	backoff := iox.Backoff{}
	for p.sendQ.Enqueue(&frame) != nil {
		backoff.Wait()
	}
}

// encodeSendFrame pre-serializes dest/src/payload so the sender goroutine
// only needs to write bytes, keeping the send queue's element type a plain
// []byte (cheaper to copy through lfq than a struct with a slice field).
func encodeSendFrame(destPno, srcPno byte, payload []byte) []byte {
	out := make([]byte, 2+len(payload))
	out[0], out[1] = destPno, srcPno
	copy(out[2:], payload)
	return out
}

func (p *Peer) sender() {
	backoff := iox.Backoff{}
	for {
		select {
		case <-p.closeCh:
			return
		default:
		}
		frame, err := p.sendQ.Dequeue()
		if err != nil {
			backoff.Wait()
			continue
		}
		backoff.Reset()

		conn := p.getConn()
		if conn == nil {
			// No live connection (client reconnecting); drop rather than
			// block the sender forever, matching the spec's fire-and-forget
			// PAT send semantics under §4.6.
			continue
		}
		if err := writeLenPrefixed(conn, frame); err != nil {
			p.logger.Warning().Err(err).Log("pat: send failed")
		}
	}
}

// SetUserTimer schedules a callback via the peer's time wheel; the fired
// timer is routed onto the priority queue (ahead of ordinary data) as
// eventTimer, consistent with pat_set_timer's head-of-list semantics.
func (p *Peer) SetUserTimer(delay100ms uint32, arg any) (*timewheel.Timer, error) {
	return p.wheel.SetTimer(delay100ms, func(t *timewheel.Timer, a any) {
		p.enqueuePriority(event{kind: eventTimer, timerArg: a})
	}, 0, arg)
}

// DelUserTimer cancels a previously scheduled timer.
func (p *Peer) DelUserTimer(t *timewheel.Timer) {
	p.wheel.DelTimer(t)
}

// Tick advances the peer's time wheel by one 100ms step; fired timers'
// callbacks (set in SetUserTimer) enqueue onto the priority lane, so the
// return value is discarded here.
func (p *Peer) Tick() {
	p.wheel.Tick()
}

// Close stops the peer's goroutines and releases its connection.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()

	close(p.closeCh)
	p.wheel.Destroy()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

