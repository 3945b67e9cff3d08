package proxy

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/holystardb/cos-sub003/internal/cipher"
)

// ErrFrameTooLarge signals a tunnel frame that would overflow the
// connection's fixed scratch buffer (sized by [general] socket_buf_size, spec.md
// §6): the tunnel never sends content larger than one BufSize chunk, so
// this indicates a protocol violation rather than a legitimate large frame.
var ErrFrameTooLarge = errors.New("proxy: tunnel frame exceeds buffer size")

// appendScratch accumulates raw tunnel bytes at the connection's scratch
// cursor, growing no further than the pre-sized buffer (spec.md §3: scratch
// is allocated once, sized from config, and reused for the connection's
// lifetime).
func (c *Connection) appendScratch(data []byte) error {
	if c.Offset+len(data) > len(c.Scratch) {
		return ErrFrameTooLarge
	}
	copy(c.Scratch[c.Offset:], data)
	c.Offset += len(data)
	return nil
}

// extractFrame pulls one complete length-prefixed ciphertext frame off the
// front of the scratch buffer, compacting whatever remains to the front.
// ok is false when fewer bytes than the next frame have arrived yet.
func (c *Connection) extractFrame() (frame []byte, ok bool, err error) {
	if c.Offset < 4 {
		return nil, false, nil
	}
	n := binary.BigEndian.Uint32(c.Scratch[:4])
	total := 4 + int(n)
	if total > len(c.Scratch) {
		return nil, false, ErrFrameTooLarge
	}
	if c.Offset < total {
		return nil, false, nil
	}
	frame = make([]byte, n)
	copy(frame, c.Scratch[4:total])
	remaining := c.Offset - total
	copy(c.Scratch[:remaining], c.Scratch[total:c.Offset])
	c.Offset = remaining
	return frame, true, nil
}

// writeFrame encrypts plaintext and writes it to fd as one length-prefixed
// frame (spec.md §6 tunnel wire format: 4-byte big-endian length, followed
// by the ciphertext).
func writeFrame(fd int, c cipher.Cipher, plaintext []byte) error {
	ciphertext, err := c.Encrypt(plaintext)
	if err != nil {
		return errors.Wrap(err, "proxy: encrypt frame")
	}
	buf := make([]byte, 4+len(ciphertext))
	binary.BigEndian.PutUint32(buf, uint32(len(ciphertext)))
	copy(buf[4:], ciphertext)
	return writeAll(fd, buf)
}

// ErrTunnelFrameTooShort signals a decrypted tunnel frame missing even the
// is_first byte plus the 16-byte auth tag (spec.md §6).
var ErrTunnelFrameTooShort = errors.New("proxy: tunnel frame too short")

// buildTunnelPlaintext assembles the L<->R tunnel's plaintext layout
// (spec.md §6): `u8 is_first || 16B md5(user||password) || (is_first ?
// addrHeader : ε) || payload`. Every frame in both directions carries the
// auth tag; only the first carries the target address.
func buildTunnelPlaintext(isFirst bool, authTag [16]byte, addrHeader, payload []byte) []byte {
	first := byte(0)
	if isFirst {
		first = 1
	}
	out := make([]byte, 0, 1+16+len(addrHeader)+len(payload))
	out = append(out, first)
	out = append(out, authTag[:]...)
	if isFirst {
		out = append(out, addrHeader...)
	}
	out = append(out, payload...)
	return out
}

// parseTunnelPlaintext reverses buildTunnelPlaintext, returning the raw
// remainder after is_first+authTag (the address header, when is_first, is
// still at the front of rest; the caller parses it with parseAddr).
func parseTunnelPlaintext(plaintext []byte) (isFirst bool, authTag [16]byte, rest []byte, err error) {
	if len(plaintext) < 17 {
		return false, authTag, nil, ErrTunnelFrameTooShort
	}
	isFirst = plaintext[0] != 0
	copy(authTag[:], plaintext[1:17])
	rest = plaintext[17:]
	return isFirst, authTag, rest, nil
}

// writeTunnelFrame builds, encrypts, and sends one tunnel frame.
func writeTunnelFrame(fd int, c cipher.Cipher, authTag [16]byte, isFirst bool, addrHeader, payload []byte) error {
	return writeFrame(fd, c, buildTunnelPlaintext(isFirst, authTag, addrHeader, payload))
}
