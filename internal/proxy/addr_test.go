package proxy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeParseAddrIPv4(t *testing.T) {
	wire := encodeAddr(ATypIPv4, "192.0.2.1", 8080)
	atyp, host, port, consumed, err := parseAddr(wire)
	require.NoError(t, err)
	require.Equal(t, ATypIPv4, atyp)
	require.Equal(t, "192.0.2.1", host)
	require.EqualValues(t, 8080, port)
	require.Equal(t, len(wire), consumed)
}

func TestEncodeParseAddrDomain(t *testing.T) {
	wire := encodeAddr(ATypDomain, "example.com", 443)
	atyp, host, port, consumed, err := parseAddr(wire)
	require.NoError(t, err)
	require.Equal(t, ATypDomain, atyp)
	require.Equal(t, "example.com", host)
	require.EqualValues(t, 443, port)
	require.Equal(t, len(wire), consumed)
}

func TestParseAddrTooShort(t *testing.T) {
	_, _, _, _, err := parseAddr([]byte{ATypIPv4, 1, 2, 3})
	require.ErrorIs(t, err, ErrAddrTooShort)
}

func TestParseAddrUnsupportedType(t *testing.T) {
	_, _, _, _, err := parseAddr([]byte{0x7f, 0, 0})
	require.ErrorIs(t, err, ErrUnsupportedAddrType)
}
