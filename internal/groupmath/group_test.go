package groupmath

import (
	"math/big"
	"testing"
)

// A small safe prime for fast tests: p = 2*11 + 1 = 23, q = 11, g = 2
// (2 generates a subgroup of order 11 in Z_23^*).
func testContext(t *testing.T) *Context {
	t.Helper()
	ctx, err := NewContext(big.NewInt(23), big.NewInt(2))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return ctx
}

func TestPowMulInverse(t *testing.T) {
	ctx := testContext(t)
	g := ctx.G

	a := g.Pow(big.NewInt(3))
	b := g.Pow(big.NewInt(4))
	prod := a.Mul(b)
	expected := g.Pow(big.NewInt(7))

	if !prod.Equal(expected) {
		t.Fatalf("g^3 * g^4 != g^7: %v vs %v", prod.Int(), expected.Int())
	}

	inv := a.Inverse()
	if !a.Mul(inv).Equal(ctx.Identity()) {
		t.Fatalf("a * a^-1 != 1")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ctx := testContext(t)
	for k := int64(0); k < 11; k++ {
		e := ctx.G.Pow(big.NewInt(k))
		enc := e.Bytes()
		if len(enc) != 1 {
			t.Fatalf("expected 1-byte encoding for p=23, got %d", len(enc))
		}
		dec, err := ctx.ElementFromBytes(enc)
		if err != nil {
			t.Fatalf("ElementFromBytes: %v", err)
		}
		if !dec.Equal(e) {
			t.Fatalf("round trip mismatch for k=%d", k)
		}
	}
}

func TestElementFromBytesRejectsOutOfRange(t *testing.T) {
	ctx := testContext(t)
	if _, err := ctx.ElementFromBytes([]byte{23}); err == nil {
		t.Fatalf("expected error decoding value == p")
	}
}

func TestRandomExponentInRange(t *testing.T) {
	ctx := testContext(t)
	for i := 0; i < 50; i++ {
		x, err := ctx.RandomExponent()
		if err != nil {
			t.Fatalf("RandomExponent: %v", err)
		}
		if x.Sign() <= 0 || x.Cmp(ctx.Q) >= 0 {
			t.Fatalf("exponent %v out of range [1,%v)", x, ctx.Q)
		}
	}
}
