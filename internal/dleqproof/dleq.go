// Package dleqproof verifies the non-interactive discrete-log-equality
// proofs used for both the issuer's and the client's halves of a BRASS
// presentation. It generalizes the teacher's crypto.Proof (Chaum-Pedersen
// DLEQ over Go's crypto/elliptic) from a fixed empty binding to an
// explicit, caller-supplied binding transcript, matching spec §4.3's
// FS(g1,h1,g2,h2,A1,A2,bind,label) challenge.
package dleqproof

import (
	"errors"
	"math/big"

	"github.com/tomjwxf/brass-proof-public/internal/brasscrypto"
)

// ErrVerificationFailed is returned when the recomputed challenge does not
// match the proof's claimed challenge.
var ErrVerificationFailed = errors.New("dleq verification failed")

// Proof is a Schnorr-style Chaum-Pedersen DLEQ proof: (C, R) such that
// log_g1(h1) == log_g2(h2).
type Proof struct {
	C *big.Int
	R *big.Int
}

// Generators bundles the four curve points a DLEQ proof relates:
// log_G1(H1) == log_G2(H2).
type Generators struct {
	G1, H1, G2, H2 *brasscrypto.Point
}

// Challenge computes c = H3("BRASS:"+label+":", enc(g1), enc(h1), enc(g2),
// enc(h2), enc(A1), enc(A2), bind) mod n, per spec §4.1.
func Challenge(label string, g Generators, a1, a2 *brasscrypto.Point, bind []byte) *big.Int {
	sum := brasscrypto.H3(
		[]byte("BRASS:"+label+":"),
		g.G1.EncodeCompressed(), g.H1.EncodeCompressed(),
		g.G2.EncodeCompressed(), g.H2.EncodeCompressed(),
		a1.EncodeCompressed(), a2.EncodeCompressed(),
		bind,
	)
	c := new(big.Int).SetBytes(sum[:])
	return brasscrypto.ModN(c)
}

// Verify checks a DLEQ proof over the given generators, label, and binding
// transcript. It reconstructs A1' = g1^r * h1^c, A2' = g2^r * h2^c (additive
// notation: A1' = r*G1 + c*H1), recomputes the challenge, and accepts iff
// it matches p.C — the same equation as the teacher's Proof.Verify,
// generalized to a non-empty bind.
func Verify(label string, g Generators, bind []byte, p Proof) error {
	if g.G1 == nil || g.H1 == nil || g.G2 == nil || g.H2 == nil || p.C == nil || p.R == nil {
		return ErrVerificationFailed
	}

	cH1 := g.H1.ScalarMult(p.C)
	rG1 := g.G1.ScalarMult(p.R)
	a1 := rG1.Add(cH1)

	cH2 := g.H2.ScalarMult(p.C)
	rG2 := g.G2.ScalarMult(p.R)
	a2 := rG2.Add(cH2)

	cPrime := Challenge(label, g, a1, a2, bind)
	if cPrime.Cmp(brasscrypto.ModN(p.C)) != 0 {
		return ErrVerificationFailed
	}
	return nil
}
