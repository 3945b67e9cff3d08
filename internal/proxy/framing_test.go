package proxy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/holystardb/cos-sub003/internal/cipher"
)

func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestExtractFrameWaitsForFullFrame(t *testing.T) {
	c := &Connection{Scratch: make([]byte, 64)}
	require.NoError(t, c.appendScratch([]byte{0, 0, 0, 5}))
	_, ok, err := c.extractFrame()
	require.NoError(t, err)
	require.False(t, ok, "only the length prefix has arrived")

	require.NoError(t, c.appendScratch([]byte("hel")))
	_, ok, err = c.extractFrame()
	require.NoError(t, err)
	require.False(t, ok, "body still incomplete")

	require.NoError(t, c.appendScratch([]byte("lo")))
	frame, ok, err := c.extractFrame()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), frame)
	require.Equal(t, 0, c.Offset, "scratch fully drained")
}

func TestExtractFrameCompactsTrailingBytes(t *testing.T) {
	c := &Connection{Scratch: make([]byte, 64)}
	require.NoError(t, c.appendScratch([]byte{0, 0, 0, 2}))
	require.NoError(t, c.appendScratch([]byte("ab")))
	require.NoError(t, c.appendScratch([]byte{0, 0, 0, 1})) // start of next frame

	frame, ok, err := c.extractFrame()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("ab"), frame)
	require.Equal(t, 4, c.Offset, "next frame's length prefix kept at the front")
}

func TestAppendScratchRejectsOverflow(t *testing.T) {
	c := &Connection{Scratch: make([]byte, 4)}
	err := c.appendScratch([]byte{1, 2, 3, 4, 5})
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestWriteTunnelFrameRoundTripsThroughSocket(t *testing.T) {
	a, b := socketpair(t)
	c, err := cipher.New(cipher.TypeXOR, [16]byte{})
	require.NoError(t, err)

	tag := [16]byte{1, 2, 3}
	addrHeader := encodeAddr(ATypDomain, "example.com", 443)
	require.NoError(t, writeTunnelFrame(a, c, tag, true, addrHeader, nil))

	time.Sleep(10 * time.Millisecond)
	buf := make([]byte, 256)
	n, err := nonBlockingRead(b, buf)
	require.NoError(t, err)

	conn := &Connection{Scratch: make([]byte, 256)}
	require.NoError(t, conn.appendScratch(buf[:n]))
	frame, ok, err := conn.extractFrame()
	require.NoError(t, err)
	require.True(t, ok)

	plaintext, err := c.Decrypt(frame)
	require.NoError(t, err)
	isFirst, gotTag, rest, err := parseTunnelPlaintext(plaintext)
	require.NoError(t, err)
	require.True(t, isFirst)
	require.Equal(t, tag, gotTag)

	atyp, host, port, _, err := parseAddr(rest)
	require.NoError(t, err)
	require.Equal(t, ATypDomain, atyp)
	require.Equal(t, "example.com", host)
	require.EqualValues(t, 443, port)
}

func TestParseTunnelPlaintextTooShort(t *testing.T) {
	_, _, _, err := parseTunnelPlaintext([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrTunnelFrameTooShort)
}
