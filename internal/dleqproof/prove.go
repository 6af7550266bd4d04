package dleqproof

import (
	"math/big"

	"github.com/tomjwxf/brass-proof-public/internal/brasscrypto"
)

// Prove constructs a DLEQ proof that log_G1(H1) == log_G2(H2) == x, bound
// to the given transcript. This is the prover side of the teacher's
// NewProof, used by this repo's tests to build end-to-end fixtures (the
// issuer and the client are both external collaborators in production;
// nothing in the shipped binary calls Prove).
func Prove(label string, g Generators, bind []byte, x *big.Int) (Proof, error) {
	s, err := brasscrypto.RandScalar()
	if err != nil {
		return Proof{}, err
	}
	a1 := g.G1.ScalarMult(s)
	a2 := g.G2.ScalarMult(s)

	c := Challenge(label, g, a1, a2, bind)

	r := new(big.Int).Mul(c, x)
	r.Neg(r)
	r.Add(r, s)
	r = brasscrypto.ModN(r)

	return Proof{C: c, R: r}, nil
}
