package brasscrypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// H3 is the domain-separated hash from spec §4.1: SHA-256 over the
// length-prefixed concatenation len(p1)||p1||len(p2)||p2||... . The
// 4-byte big-endian length prefix on every part, including zero-length
// ones, is what defeats boundary-shift collisions between adjacent parts
// (e.g. ["a|b","c"] vs ["a","b|c"]) and is used consistently everywhere
// in this repo that needs domain separation, including the idempotency
// key (resolves the "two prefix schemes" ambiguity in spec §9 in favor of
// one scheme).
func H3(parts ...[]byte) [32]byte {
	h := sha256.New()
	var lenBuf [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p)))
		h.Write(lenBuf[:])
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HMACSHA256 computes HMAC-SHA-256(key, msg).
func HMACSHA256(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

// ConstantTimeEqual compares a and b in constant time, for d_client
// equality checks and any other secret-equal comparisons.
func ConstantTimeEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}

// SHA256 hashes msg with SHA-256, used for the HTTP body hash in the
// HTTP-context digest.
func SHA256(msg []byte) [32]byte {
	return sha256.Sum256(msg)
}
