// Package pat implements the PAT messaging layer (spec.md §4.6): numbered
// peers (client or server role) exchanging length-framed, MD5-authenticated
// messages over plain blocking TCP sockets, each peer backed by a worker
// goroutine (receive-queue drain), a sender goroutine (send-queue drain),
// a dial/reconnect goroutine for client peers, and a per-peer time wheel
// for user timers.
package pat

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/pkg/errors"
)

// ErrFrameTooShort signals a frame shorter than its declared header.
var ErrFrameTooShort = errors.New("pat: frame too short")

// ErrInvalidPno signals a peer number outside [0, 254] (255 is reserved,
// spec.md §4.6: pno ∈ [0, 254]).
var ErrInvalidPno = errors.New("pat: invalid peer number")

// writeAuthReq sends `u32 len || u8 client_pno || u8 ulen || user || u8
// plen || pass` (spec.md §6 PAT wire).
func writeAuthReq(w io.Writer, clientPno byte, user, pass string) error {
	body := make([]byte, 0, 2+len(user)+1+len(pass))
	body = append(body, clientPno, byte(len(user)))
	body = append(body, user...)
	body = append(body, byte(len(pass)))
	body = append(body, pass...)
	return writeLenPrefixed(w, body)
}

// readAuthReq reads and parses an AuthReq frame.
func readAuthReq(r io.Reader) (clientPno byte, user, pass string, err error) {
	body, err := readLenPrefixed(r)
	if err != nil {
		return 0, "", "", err
	}
	if len(body) < 2 {
		return 0, "", "", ErrFrameTooShort
	}
	clientPno = body[0]
	ulen := int(body[1])
	if len(body) < 2+ulen+1 {
		return 0, "", "", ErrFrameTooShort
	}
	user = string(body[2 : 2+ulen])
	plen := int(body[2+ulen])
	if len(body) < 2+ulen+1+plen {
		return 0, "", "", ErrFrameTooShort
	}
	pass = string(body[3+ulen : 3+ulen+plen])
	return clientPno, user, pass, nil
}

// writeAuthRsp sends the one-byte AuthRsp status (0 = ok).
func writeAuthRsp(w io.Writer, ok bool) error {
	status := byte(1)
	if ok {
		status = 0
	}
	_, err := w.Write([]byte{status})
	return err
}

func readAuthRsp(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] == 0, nil
}

// writeData sends `u32 len || u8 dest_pno || u8 src_pno || payload`.
func writeData(w io.Writer, destPno, srcPno byte, payload []byte) error {
	body := make([]byte, 2+len(payload))
	body[0], body[1] = destPno, srcPno
	copy(body[2:], payload)
	return writeLenPrefixed(w, body)
}

// readData reads and parses a Data frame.
func readData(r io.Reader) (destPno, srcPno byte, payload []byte, err error) {
	body, err := readLenPrefixed(r)
	if err != nil {
		return 0, 0, nil, err
	}
	if len(body) < 2 {
		return 0, 0, nil, ErrFrameTooShort
	}
	return body[0], body[1], body[2:], nil
}

func writeLenPrefixed(w io.Writer, body []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// dialTimeout is a small indirection so tests can stub out real network
// dialing; production code just calls net.DialTimeout.
var dialTimeout = net.DialTimeout
