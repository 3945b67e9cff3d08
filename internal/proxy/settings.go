package proxy

import (
	"github.com/holystardb/cos-sub003/internal/cipher"
	"github.com/holystardb/cos-sub003/internal/reactor"
)

// Settings carries every mode-dependent knob from the [general]/[remote]
// config sections (spec.md §6) that the state machine needs at runtime.
type Settings struct {
	Mode Mode

	Username string
	Password string

	Cipher cipher.Cipher

	// ConnectTimeout / PollTimeout are in 100ms wheel ticks (spec.md §3),
	// already converted from the config's seconds values.
	ConnectTimeout uint32
	PollTimeout    uint32

	BufSize int

	// RemoteHost/RemotePort are used only in ModeLocal: the L proxy skips
	// DNS resolution and always connects here (spec.md §4.5 CONN_SERVER).
	RemoteHost string
	RemotePort uint16

	Socket reactor.SocketConfig
}

// AuthTag returns the 16-byte MD5(user||password) tag every L/R frame and
// the PAT handshake carry.
func (s Settings) AuthTag() [16]byte {
	return cipher.AuthTag(s.Username, s.Password)
}
