package pat

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthReqRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeAuthReq(&buf, 3, "alice", "s3cret"))

	pno, user, pass, err := readAuthReq(&buf)
	require.NoError(t, err)
	require.EqualValues(t, 3, pno)
	require.Equal(t, "alice", user)
	require.Equal(t, "s3cret", pass)
}

func TestAuthRspRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeAuthRsp(&buf, true))
	ok, err := readAuthRsp(&buf)
	require.NoError(t, err)
	require.True(t, ok)

	buf.Reset()
	require.NoError(t, writeAuthRsp(&buf, false))
	ok, err = readAuthRsp(&buf)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDataRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeData(&buf, 7, 9, []byte("hello")))

	dest, src, payload, err := readData(&buf)
	require.NoError(t, err)
	require.EqualValues(t, 7, dest)
	require.EqualValues(t, 9, src)
	require.Equal(t, "hello", string(payload))
}

func TestReadAuthReqFrameTooShort(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeLenPrefixed(&buf, []byte{1}))
	_, _, _, err := readAuthReq(&buf)
	require.ErrorIs(t, err, ErrFrameTooShort)
}

func TestReadDataFrameTooShort(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeLenPrefixed(&buf, []byte{1}))
	_, _, _, err := readData(&buf)
	require.ErrorIs(t, err, ErrFrameTooShort)
}
