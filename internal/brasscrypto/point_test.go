package brasscrypto

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPointRoundTrip(t *testing.T) {
	for i := 0; i < 20; i++ {
		k, err := RandScalar()
		require.NoError(t, err)
		if k.Sign() == 0 {
			continue
		}
		p := ScalarBaseMult(k)
		enc := p.EncodeCompressed()
		require.Len(t, enc, 33)

		decoded, err := DecodeCompressed(enc)
		require.NoError(t, err)
		require.True(t, p.Equal(decoded))
	}
}

func TestDecodeCompressed_RejectsInfinity(t *testing.T) {
	// SEC1 encodes the point at infinity as the single octet 0x00. (An
	// all-zero x with a 0x02 prefix is not infinity: x=0 is on P-256.)
	_, err := DecodeCompressed([]byte{0x00})
	require.ErrorIs(t, err, ErrInvalidPointEncoding)
}

func TestDecodeCompressed_RejectsBadPrefix(t *testing.T) {
	k, err := RandScalar()
	require.NoError(t, err)
	p := ScalarBaseMult(k)
	enc := p.EncodeCompressed()
	enc[0] = 0x04 // uncompressed prefix is not accepted here
	_, err = DecodeCompressed(enc)
	require.ErrorIs(t, err, ErrInvalidPointEncoding)
}

func TestDecodeCompressed_RejectsOffCurve(t *testing.T) {
	// An x for which x^3-3x+b has no square root mod p will fail; brute
	// force a small set of x values looking for one (overwhelmingly
	// likely on the first few tries since half of all x lack a root).
	byteLen := 32
	for x := int64(1); x < 64; x++ {
		buf := make([]byte, byteLen+1)
		buf[0] = 0x02
		xb := big.NewInt(x).Bytes()
		copy(buf[1+byteLen-len(xb):], xb)
		if _, err := DecodeCompressed(buf); err != nil {
			require.ErrorIs(t, err, ErrInvalidPointEncoding)
			return
		}
	}
	t.Fatal("expected at least one small x to be off-curve")
}

func TestDecodeCompressed_RejectsWrongLength(t *testing.T) {
	_, err := DecodeCompressed([]byte{0x02, 0x01, 0x02})
	require.ErrorIs(t, err, ErrInvalidPointEncoding)
}

func TestNewPoint_RejectsInfinity(t *testing.T) {
	_, err := NewPoint(big.NewInt(0), big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidPointInfinity)
}
