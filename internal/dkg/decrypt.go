package dkg

import (
	"fmt"

	"github.com/pangea-net/consensus-core/internal/groupmath"
	"github.com/pangea-net/consensus-core/internal/zkp"
)

// Ciphertext is a standard ElGamal pair (c1, c2) = (g^k, m*Y^k) over
// the same group as the keygen session that produced Y.
type Ciphertext struct {
	C1, C2 *groupmath.Element
}

// EncryptElGamal encrypts m under the joint public key Y.
func EncryptElGamal(ctx *groupmath.Context, y, m *groupmath.Element) (Ciphertext, error) {
	k, err := ctx.RandomExponent()
	if err != nil {
		return Ciphertext{}, fmt.Errorf("dkg: sample encryption randomness: %w", err)
	}
	c1 := ctx.G.Pow(k)
	c2 := m.Mul(y.Pow(k))
	return Ciphertext{C1: c1, C2: c2}, nil
}

// MakeDecryptShare computes this node's partial decryption of ct and
// a PoK-EqDL proving the share was derived from the same secret as
// the node's accepted public share y_i (share.Yi).
func MakeDecryptShare(ctx *groupmath.Context, share *KeyShare, ct Ciphertext) (*groupmath.Element, *zkp.EqualityProof, error) {
	d := ct.C1.Pow(share.X)
	proof, err := zkp.ProveEquality(ctx, ctx.G, ct.C1, share.Yi, d, share.X)
	if err != nil {
		return nil, nil, fmt.Errorf("dkg: prove decrypt share equality: %w", err)
	}
	return d, proof, nil
}

// VerifyDecryptShare checks that d is a valid decrypt share of ct for
// the peer whose accepted keygen opening was yi.
func VerifyDecryptShare(ctx *groupmath.Context, ct Ciphertext, yi, d *groupmath.Element, proof *zkp.EqualityProof) bool {
	return zkp.VerifyEquality(ctx, ctx.G, ct.C1, yi, d, proof)
}

// CombineDecryptShares recovers the plaintext from ct given decrypt
// shares from exactly the peer set accepted during the keygen
// session. Shares that failed VerifyDecryptShare must already be
// excluded by the caller before this is invoked.
func CombineDecryptShares(ctx *groupmath.Context, ct Ciphertext, shares map[int]*groupmath.Element) *groupmath.Element {
	product := ctx.Identity()
	for _, d := range shares {
		product = product.Mul(d)
	}
	return ct.C2.Mul(product.Inverse())
}
