// Package zkp implements the two non-interactive zero-knowledge
// proofs the core relies on: knowledge of a discrete log (PoK-DL) and
// equality of two discrete logs (PoK-EqDL), both made non-interactive
// via the Fiat-Shamir transform over SHA-256.
package zkp

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/pangea-net/consensus-core/internal/groupmath"
)

// KnowledgeProof proves knowledge of x such that y = g^x, without
// revealing x.
type KnowledgeProof struct {
	T *groupmath.Element // commitment g^z
	R *big.Int           // response z + c*x mod q
}

// ProveKnowledge proves knowledge of x where y = g.Pow(x).
func ProveKnowledge(ctx *groupmath.Context, g, y *groupmath.Element, x *big.Int) (*KnowledgeProof, error) {
	z, err := ctx.RandomExponent()
	if err != nil {
		return nil, fmt.Errorf("zkp: sample commitment randomness: %w", err)
	}
	t := g.Pow(z)
	c := fiatShamir(ctx.Q, g.Bytes(), y.Bytes(), t.Bytes())

	r := new(big.Int).Mul(c, x)
	r.Add(r, z)
	r.Mod(r, ctx.Q)

	return &KnowledgeProof{T: t, R: r}, nil
}

// VerifyKnowledge checks g^r == t * y^c for c = H(g || y || t).
func VerifyKnowledge(ctx *groupmath.Context, g, y *groupmath.Element, proof *KnowledgeProof) bool {
	if proof == nil || proof.T == nil || proof.R == nil {
		return false
	}
	c := fiatShamir(ctx.Q, g.Bytes(), y.Bytes(), proof.T.Bytes())

	lhs := g.Pow(proof.R)
	rhs := proof.T.Mul(y.Pow(c))
	return lhs.Equal(rhs)
}

// EqualityProof proves that d = a^x and e = b^x share the same
// exponent x, without revealing x.
type EqualityProof struct {
	Gp *groupmath.Element // a^z
	Hp *groupmath.Element // b^z
	R  *big.Int
}

// ProveEquality proves d = a.Pow(x) and e = b.Pow(x) use the same x.
func ProveEquality(ctx *groupmath.Context, a, b, d, e *groupmath.Element, x *big.Int) (*EqualityProof, error) {
	z, err := ctx.RandomExponent()
	if err != nil {
		return nil, fmt.Errorf("zkp: sample commitment randomness: %w", err)
	}
	gp := a.Pow(z)
	hp := b.Pow(z)
	c := fiatShamir(ctx.Q, a.Bytes(), b.Bytes(), d.Bytes(), e.Bytes(), gp.Bytes(), hp.Bytes())

	r := new(big.Int).Mul(c, x)
	r.Add(r, z)
	r.Mod(r, ctx.Q)

	return &EqualityProof{Gp: gp, Hp: hp, R: r}, nil
}

// VerifyEquality checks a^r == g' * d^c and b^r == h' * e^c.
func VerifyEquality(ctx *groupmath.Context, a, b, d, e *groupmath.Element, proof *EqualityProof) bool {
	if proof == nil || proof.Gp == nil || proof.Hp == nil || proof.R == nil {
		return false
	}
	c := fiatShamir(ctx.Q, a.Bytes(), b.Bytes(), d.Bytes(), e.Bytes(), proof.Gp.Bytes(), proof.Hp.Bytes())

	lhsA := a.Pow(proof.R)
	rhsA := proof.Gp.Mul(d.Pow(c))
	if !lhsA.Equal(rhsA) {
		return false
	}

	lhsB := b.Pow(proof.R)
	rhsB := proof.Hp.Mul(e.Pow(c))
	return lhsB.Equal(rhsB)
}

// fiatShamir hashes the concatenation of all byte slices with SHA-256
// and reduces the digest mod q to produce the challenge.
func fiatShamir(q *big.Int, parts ...[]byte) *big.Int {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	digest := h.Sum(nil)
	c := new(big.Int).SetBytes(digest)
	return c.Mod(c, q)
}
