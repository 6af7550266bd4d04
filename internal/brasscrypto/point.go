// Package brasscrypto implements the P-256 point codec, domain-separated
// hashing, and hash-to-curve primitives the rest of the verifier builds on.
package brasscrypto

import (
	"crypto/elliptic"
	"errors"
	"math/big"
)

var (
	// ErrInvalidPointEncoding covers any byte string that does not decode to
	// a canonical compressed P-256 point: wrong length, bad prefix byte,
	// out-of-range x, or no square root for x^3-3x+b.
	ErrInvalidPointEncoding = errors.New("invalid_point_encoding")
	// ErrInvalidPointInfinity is returned for the point at infinity, which
	// never has a valid compressed encoding but is checked explicitly since
	// callers construct Points directly in tests.
	ErrInvalidPointInfinity = errors.New("invalid_point_infinity")
)

// Point is a P-256 curve point. The zero value is not valid; use
// DecodeCompressed or NewPoint.
type Point struct {
	X, Y *big.Int
}

func curve() elliptic.Curve { return elliptic.P256() }

// IsIdentity reports whether p is the point at infinity.
func (p *Point) IsIdentity() bool {
	return p.X == nil || p.Y == nil || (p.X.Sign() == 0 && p.Y.Sign() == 0)
}

// IsOnCurve reports whether p lies on P-256.
func (p *Point) IsOnCurve() bool {
	if p.IsIdentity() {
		return false
	}
	return curve().IsOnCurve(p.X, p.Y)
}

// NewPoint validates (x, y) and wraps it as a Point.
func NewPoint(x, y *big.Int) (*Point, error) {
	p := &Point{X: x, Y: y}
	if p.IsIdentity() {
		return nil, ErrInvalidPointInfinity
	}
	if !p.IsOnCurve() {
		return nil, ErrInvalidPointEncoding
	}
	return p, nil
}

// EncodeCompressed produces the 33-byte SEC1 compressed encoding: a
// 0x02/0x03 prefix carrying the parity of Y, followed by the 32-byte X
// coordinate.
func (p *Point) EncodeCompressed() []byte {
	byteLen := (curve().Params().BitSize + 7) / 8
	out := make([]byte, 1+byteLen)
	if p.Y.Bit(0) == 0 {
		out[0] = 0x02
	} else {
		out[0] = 0x03
	}
	xBytes := p.X.Bytes()
	copy(out[1+byteLen-len(xBytes):], xBytes)
	return out
}

// DecodeCompressed parses a 33-byte SEC1 compressed point. It enforces
// canonical form, on-curve membership, and rejects the point at infinity;
// any failure is ErrInvalidPointEncoding so callers need not distinguish
// the sub-cases (ErrInvalidPointInfinity is reserved for Points built
// in-process).
//
// This mirrors the decompression branch of the teacher's Point.Unmarshal
// but narrows it to compressed-only input, since the wire format here never
// carries uncompressed points.
func DecodeCompressed(data []byte) (*Point, error) {
	c := curve()
	byteLen := (c.Params().BitSize + 7) / 8
	if len(data) != byteLen+1 {
		return nil, ErrInvalidPointEncoding
	}
	if data[0] != 0x02 && data[0] != 0x03 {
		return nil, ErrInvalidPointEncoding
	}
	fieldOrder := c.Params().P
	x := new(big.Int).SetBytes(data[1:])
	if x.Cmp(fieldOrder) >= 0 {
		return nil, ErrInvalidPointEncoding
	}

	// y^2 = x^3 - 3x + b (mod p)
	rhs := new(big.Int).Mul(x, x)
	rhs.Mul(rhs, x)
	threeX := new(big.Int).Lsh(x, 1)
	threeX.Add(threeX, x)
	rhs.Sub(rhs, threeX)
	rhs.Add(rhs, c.Params().B)
	rhs.Mod(rhs, fieldOrder)

	y := new(big.Int).ModSqrt(rhs, fieldOrder)
	if y == nil {
		return nil, ErrInvalidPointEncoding
	}
	wantOdd := data[0] == 0x03
	if (y.Bit(0) == 1) != wantOdd {
		y.Sub(fieldOrder, y)
	}

	if x.Sign() == 0 && y.Sign() == 0 {
		return nil, ErrInvalidPointEncoding
	}
	if !c.IsOnCurve(x, y) {
		return nil, ErrInvalidPointEncoding
	}

	// Reject non-canonical encodings: re-encoding the recovered point must
	// reproduce the exact input bytes.
	p := &Point{X: x, Y: y}
	if string(p.EncodeCompressed()) != string(data) {
		return nil, ErrInvalidPointEncoding
	}
	return p, nil
}

// ScalarMult computes k*p.
func (p *Point) ScalarMult(k *big.Int) *Point {
	x, y := curve().ScalarMult(p.X, p.Y, k.Bytes())
	return &Point{X: x, Y: y}
}

// ScalarBaseMult computes k*G.
func ScalarBaseMult(k *big.Int) *Point {
	x, y := curve().ScalarBaseMult(k.Bytes())
	return &Point{X: x, Y: y}
}

// Add computes p+q.
func (p *Point) Add(q *Point) *Point {
	x, y := curve().Add(p.X, p.Y, q.X, q.Y)
	return &Point{X: x, Y: y}
}

// Equal reports whether p and q represent the same affine point.
func (p *Point) Equal(q *Point) bool {
	if p.IsIdentity() || q.IsIdentity() {
		return false
	}
	return p.X.Cmp(q.X) == 0 && p.Y.Cmp(q.Y) == 0
}

// CurveN returns the order of the P-256 base point subgroup.
func CurveN() *big.Int {
	return curve().Params().N
}
