// Package groupmath implements the prime-order multiplicative group
// arithmetic the rest of the core is built on: a safe prime p, its
// order q = (p-1)/2, a fixed generator g, and operations on elements
// of Z_p^*.
package groupmath

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Context holds the public parameters of the group: the safe prime p,
// its order q = (p-1)/2, and a fixed generator g of the order-q
// subgroup. A Context is immutable after construction and safe for
// concurrent use.
type Context struct {
	P *big.Int
	Q *big.Int
	G *Element

	byteLen int
}

// NewContext builds a Context from a safe prime p and generator g.
// It does not verify primality of p or that (p-1)/2 is prime; callers
// are expected to supply vetted parameters (this is a public,
// well-known group setup step, not a runtime negotiation).
func NewContext(p, g *big.Int) (*Context, error) {
	if p == nil || p.Sign() <= 0 {
		return nil, fmt.Errorf("groupmath: p must be positive")
	}
	q := new(big.Int).Rsh(new(big.Int).Sub(p, big.NewInt(1)), 1)

	ctx := &Context{
		P:       new(big.Int).Set(p),
		Q:       q,
		byteLen: (p.BitLen() + 7) / 8,
	}
	ctx.G = ctx.newElement(g)
	return ctx, nil
}

// Element is a member of Z_p^* for a particular Context, always kept
// reduced mod p. Elements from different Contexts must never be mixed;
// operations assume the receiver and any arguments share a Context.
type Element struct {
	ctx *Context
	v   *big.Int
}

func (c *Context) newElement(v *big.Int) *Element {
	reduced := new(big.Int).Mod(v, c.P)
	return &Element{ctx: c, v: reduced}
}

// Element wraps an arbitrary integer as a group element reduced mod p.
func (c *Context) Element(v *big.Int) *Element {
	return c.newElement(v)
}

// Identity returns the multiplicative identity (1) of the group.
func (c *Context) Identity() *Element {
	return c.newElement(big.NewInt(1))
}

// RandomExponent samples a uniform exponent in [1, q).
func (c *Context) RandomExponent() (*big.Int, error) {
	qMinus1 := new(big.Int).Sub(c.Q, big.NewInt(1))
	if qMinus1.Sign() <= 0 {
		return nil, fmt.Errorf("groupmath: q too small")
	}
	r, err := rand.Int(rand.Reader, qMinus1)
	if err != nil {
		return nil, fmt.Errorf("groupmath: sample exponent: %w", err)
	}
	return r.Add(r, big.NewInt(1)), nil
}

// Mul returns e*other mod p.
func (e *Element) Mul(other *Element) *Element {
	return e.ctx.newElement(new(big.Int).Mul(e.v, other.v))
}

// Pow returns e^k mod p via constant-time-preferred modular
// exponentiation (math/big.Exp already avoids data-dependent branching
// on the exponent bits for the Montgomery path it selects for odd
// moduli, which p is).
func (e *Element) Pow(k *big.Int) *Element {
	exp := k
	if exp.Sign() < 0 {
		exp = new(big.Int).Mod(k, e.ctx.Q)
	}
	return e.ctx.newElement(new(big.Int).Exp(e.v, exp, e.ctx.P))
}

// Inverse returns e^-1 mod p.
func (e *Element) Inverse() *Element {
	return e.ctx.newElement(new(big.Int).ModInverse(e.v, e.ctx.P))
}

// Equal reports whether e and other represent the same integer mod p.
func (e *Element) Equal(other *Element) bool {
	if other == nil {
		return false
	}
	return e.v.Cmp(other.v) == 0
}

// Int returns the element's canonical big.Int representation.
// Callers must not mutate the result.
func (e *Element) Int() *big.Int {
	return e.v
}

// Bytes encodes the element as fixed-width big-endian, padded to the
// byte length of p.
func (e *Element) Bytes() []byte {
	out := make([]byte, e.ctx.byteLen)
	b := e.v.Bytes()
	copy(out[len(out)-len(b):], b)
	return out
}

// ElementFromBytes decodes a fixed-width big-endian encoding produced
// by Bytes, rejecting values >= p.
func (c *Context) ElementFromBytes(b []byte) (*Element, error) {
	v := new(big.Int).SetBytes(b)
	if v.Cmp(c.P) >= 0 {
		return nil, fmt.Errorf("groupmath: encoded value >= p")
	}
	return c.newElement(v), nil
}
