package brasscrypto

import (
	"crypto/rand"
	"io"
	"math/big"
)

// maskForBitSize zeroes the unused high bits of the top byte of a
// byteLen-byte buffer representing a bitSize-bit scalar, mirroring the
// teacher's randScalar mask table (h/t agl).
var maskForBitSize = []byte{0xff, 0x1, 0x3, 0x7, 0xf, 0x1f, 0x3f, 0x7f}

// RandScalar draws a uniform random scalar in [0, n) by rejection
// sampling, exactly as the teacher's crypto.randScalar does for P-256.
func RandScalar() (*big.Int, error) {
	n := CurveN()
	bitLen := n.BitLen()
	byteLen := (bitLen + 7) / 8
	buf := make([]byte, byteLen)
	for {
		if _, err := io.ReadFull(rand.Reader, buf); err != nil {
			return nil, err
		}
		buf[0] &= maskForBitSize[bitLen%8]
		s := new(big.Int).SetBytes(buf)
		if s.Cmp(n) < 0 {
			return s, nil
		}
	}
}

// ModN reduces x modulo the P-256 group order.
func ModN(x *big.Int) *big.Int {
	return new(big.Int).Mod(x, CurveN())
}
