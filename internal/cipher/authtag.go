package cipher

import "crypto/md5"

// AuthTag computes the 16-byte MD5(user || password) tag carried in every
// L→R tunnel frame and in the PAT authentication handshake (spec.md §4.5,
// §4.6). MD5 is treated as an external capability per spec.md §1 ("MD5...
// helpers" are a collaborator), but the stdlib crypto/md5 implementation is
// the obvious and only sensible choice for it — there is no ecosystem MD5
// library in the reference corpus worth preferring over the standard one.
func AuthTag(user, password string) [16]byte {
	return md5.Sum([]byte(user + password))
}
