// Package cipher implements the two tunnel ciphers named by spec.md §6/§9:
// a fixed-key XOR stream and AES-128-ECB with a trailing plaintext-length
// suffix. Both operate on the payload bytes that follow the wire frame's
// 4-byte length prefix; the length prefix itself is never encrypted, so
// peers can always size-read (spec.md §4.5).
package cipher

import (
	"crypto/aes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Type selects which tunnel cipher a deployment uses, matching the
// [general] encrypt_type config values (spec.md §6): 0=none, 1=AES, 2=XOR.
type Type int

const (
	TypeNone Type = 0
	TypeAES  Type = 1
	TypeXOR  Type = 2
)

// defaultXORKey is the fixed XOR key from spec.md §6 ("default 0x86").
const defaultXORKey = 0x86

// ErrCiphertextTooShort is returned by AES decryption when the input is
// shorter than one cipher block (the block carrying the length suffix), is
// not a whole number of blocks, or carries a length suffix larger than the
// data in front of that block.
var ErrCiphertextTooShort = errors.New("cipher: ciphertext too short")

// Cipher encrypts/decrypts tunnel payloads in place, conceptually. Encrypt
// and Decrypt both return a new byte slice; callers assemble the 4-byte
// wire length prefix themselves around the result.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// New constructs the configured Cipher. key is the AES-128 key (exactly 16
// bytes) when typ is TypeAES; it is ignored for TypeXOR and TypeNone.
func New(typ Type, key [16]byte) (Cipher, error) {
	switch typ {
	case TypeNone:
		return noneCipher{}, nil
	case TypeXOR:
		return xorCipher{key: defaultXORKey}, nil
	case TypeAES:
		return newAES128ECB(key)
	default:
		return nil, errors.Errorf("cipher: unknown type %d", typ)
	}
}

// noneCipher is the identity cipher, used when encrypt_type=0.
type noneCipher struct{}

func (noneCipher) Encrypt(p []byte) ([]byte, error) { return p, nil }
func (noneCipher) Decrypt(c []byte) ([]byte, error) { return c, nil }

// xorCipher XORs every payload byte with a fixed key byte (spec.md §6).
type xorCipher struct{ key byte }

func (x xorCipher) xor(in []byte) []byte {
	out := make([]byte, len(in))
	for i, b := range in {
		out[i] = b ^ x.key
	}
	return out
}

func (x xorCipher) Encrypt(p []byte) ([]byte, error) { return x.xor(p), nil }
func (x xorCipher) Decrypt(c []byte) ([]byte, error) { return x.xor(c), nil }

// aes128ECB implements AES-128 operated in ECB mode (spec.md §9 decision:
// AES-128-ECB with the embedded 16-byte key is the most likely original
// intent). The standard library deliberately provides no ECB helper since
// ECB leaks plaintext structure; this package accepts that trade-off to
// match the wire format spec.md §6 specifies, operating the stdlib
// crypto/aes block cipher one 16-byte block at a time.
type aes128ECB struct {
	block cipherBlock
}

// cipherBlock is the subset of cipher.Block this package needs; declared
// locally so this file need not import "crypto/cipher" just for the type
// name (avoids a second identifier named Cipher in scope).
type cipherBlock interface {
	BlockSize() int
	Encrypt(dst, src []byte)
	Decrypt(dst, src []byte)
}

func newAES128ECB(key [16]byte) (Cipher, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return &aes128ECB{block: block}, nil
}

// Encrypt zero-pads the plaintext to a block-size multiple, then appends
// one further full block whose first 4 bytes are the original plaintext
// length (big-endian, per the resolved endianness open question). Because
// the zero-padded plaintext region is always block-aligned, the length
// block always lands at a fixed, recoverable offset: the final block of
// the ciphertext.
func (a *aes128ECB) Encrypt(plaintext []byte) ([]byte, error) {
	bs := a.block.BlockSize()
	padded := len(plaintext)
	if rem := padded % bs; rem != 0 {
		padded += bs - rem
	}
	buf := make([]byte, padded+bs)
	copy(buf, plaintext)
	binary.BigEndian.PutUint32(buf[padded:], uint32(len(plaintext)))

	out := make([]byte, len(buf))
	for off := 0; off < len(buf); off += bs {
		a.block.Encrypt(out[off:off+bs], buf[off:off+bs])
	}
	return out, nil
}

// Decrypt reverses Encrypt: decrypt block by block, read the plaintext
// length from the first 4 bytes of the final block, and trim.
func (a *aes128ECB) Decrypt(ciphertext []byte) ([]byte, error) {
	bs := a.block.BlockSize()
	if len(ciphertext) < bs || len(ciphertext)%bs != 0 {
		return nil, ErrCiphertextTooShort
	}
	out := make([]byte, len(ciphertext))
	for off := 0; off < len(ciphertext); off += bs {
		a.block.Decrypt(out[off:off+bs], ciphertext[off:off+bs])
	}
	lengthBlockOff := len(out) - bs
	n := binary.BigEndian.Uint32(out[lengthBlockOff : lengthBlockOff+4])
	if int(n) > lengthBlockOff {
		return nil, ErrCiphertextTooShort
	}
	return out[:n], nil
}
