// Package reactor implements the I/O multiplexer, per-reactor fd timeout
// tracking, and the reactor pool + acceptor loop described in spec.md §4.3
// and §4.4. Each Reactor owns two Multiplexer instances: a "timeout" one,
// backed by an embedded time wheel, and a "plain" one for events the
// application does not want expiring.
package reactor

import "github.com/pkg/errors"

// Events is a bitmask of readiness flags delivered to a callback.
type Events uint32

const (
	// EventRead indicates the fd is ready for reading.
	EventRead Events = 1 << iota
	// EventWrite indicates the fd is ready for writing.
	EventWrite
	// EventError indicates an error condition on the fd (delivered as
	// EPOLLERR per spec.md §4.3).
	EventError
	// EventHangup indicates the peer closed its end.
	EventHangup
	// EventTimeout is a pseudo-event: not produced by the multiplexer
	// itself, but synthesized by Reactor.runPass for fds whose time-wheel
	// entry expired (the original design's EPOLLTIMEOUT).
	EventTimeout
)

// Ready is one readiness notification returned from a Wait call.
type Ready struct {
	FD     int
	Events Events
}

// Multiplexer is the one-shot-arming I/O readiness primitive both of a
// Reactor's two event sources implement. "One-shot" means a fd stops being
// reported after a single Wait-delivered readiness until it is re-armed via
// ModReadOneshot/ModWriteOneshot.
type Multiplexer interface {
	// Add registers fd for the given interest set. The registration itself
	// is one-shot: the very next readiness delivery disarms it.
	Add(fd int, events Events) error
	// Mod re-arms an already-registered fd for events (one-shot).
	Mod(fd int, events Events) error
	// Del removes fd from the multiplexer. Safe to call on an fd that was
	// never added (no-op).
	Del(fd int) error
	// Wait blocks up to timeoutMs milliseconds and returns ready fds.
	Wait(timeoutMs int) ([]Ready, error)
	// Close releases the multiplexer's backing OS resource.
	Close() error
}

// ErrClosed is returned by Multiplexer methods after Close.
var ErrClosed = errors.New("reactor: multiplexer closed")

// ErrNotRegistered is returned by the poll(2) fallback's Mod for an fd that
// was never added (or was already removed with Del).
var ErrNotRegistered = errors.New("reactor: fd not registered")
