package cipher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestXORRoundTrip(t *testing.T) {
	c, err := New(TypeXOR, [16]byte{})
	require.NoError(t, err)
	plain := []byte("GET / HTTP/1.0\r\n\r\n")
	ct, err := c.Encrypt(plain)
	require.NoError(t, err)
	require.NotEqual(t, plain, ct)
	pt, err := c.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, plain, pt)
}

func TestAES128ECBRoundTrip(t *testing.T) {
	var key [16]byte
	copy(key[:], "0123456789abcdef")
	c, err := New(TypeAES, key)
	require.NoError(t, err)

	for _, plain := range [][]byte{
		[]byte(""),
		[]byte("short"),
		[]byte("exactly16bytes!!"),
		[]byte("this payload is definitely longer than one AES block"),
	} {
		ct, err := c.Encrypt(plain)
		require.NoError(t, err)
		require.Equal(t, 0, len(ct)%16)
		pt, err := c.Decrypt(ct)
		require.NoError(t, err)
		require.Equal(t, plain, pt)
	}
}

func TestNoneCipherIsIdentity(t *testing.T) {
	c, err := New(TypeNone, [16]byte{})
	require.NoError(t, err)
	plain := []byte("payload")
	ct, _ := c.Encrypt(plain)
	require.Equal(t, plain, ct)
}

func TestAuthTagMatchesCredentials(t *testing.T) {
	a := AuthTag("u", "p")
	b := AuthTag("u", "p")
	require.Equal(t, a, b)
	c := AuthTag("u", "wrong")
	require.NotEqual(t, a, c)
}
