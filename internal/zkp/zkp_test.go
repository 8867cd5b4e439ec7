package zkp

import (
	"math/big"
	"testing"

	"github.com/pangea-net/consensus-core/internal/groupmath"
)

func testContext(t *testing.T) *groupmath.Context {
	t.Helper()
	ctx, err := groupmath.NewContext(big.NewInt(23), big.NewInt(2))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return ctx
}

// largeContext returns the 2048-bit default group. The rejection tests
// use it because in the order-11 test group a forged statement passes
// the challenge check with probability about 1/11.
func largeContext(t *testing.T) *groupmath.Context {
	t.Helper()
	ctx, err := groupmath.DefaultContext()
	if err != nil {
		t.Fatalf("DefaultContext: %v", err)
	}
	return ctx
}

func TestKnowledgeProofRoundTrip(t *testing.T) {
	ctx := testContext(t)
	x, err := ctx.RandomExponent()
	if err != nil {
		t.Fatalf("RandomExponent: %v", err)
	}
	y := ctx.G.Pow(x)

	proof, err := ProveKnowledge(ctx, ctx.G, y, x)
	if err != nil {
		t.Fatalf("ProveKnowledge: %v", err)
	}
	if !VerifyKnowledge(ctx, ctx.G, y, proof) {
		t.Fatalf("VerifyKnowledge rejected a valid proof")
	}
}

func TestKnowledgeProofRejectsWrongClaim(t *testing.T) {
	ctx := largeContext(t)
	x, _ := ctx.RandomExponent()
	y := ctx.G.Pow(x)

	wrongY := ctx.G.Pow(big.NewInt(1))
	proof, err := ProveKnowledge(ctx, ctx.G, y, x)
	if err != nil {
		t.Fatalf("ProveKnowledge: %v", err)
	}
	if VerifyKnowledge(ctx, ctx.G, wrongY, proof) {
		t.Fatalf("VerifyKnowledge accepted a proof against a mismatched claim")
	}
}

func TestEqualityProofRoundTrip(t *testing.T) {
	ctx := testContext(t)
	a := ctx.G
	b := ctx.G.Pow(big.NewInt(3))

	x, err := ctx.RandomExponent()
	if err != nil {
		t.Fatalf("RandomExponent: %v", err)
	}
	d := a.Pow(x)
	e := b.Pow(x)

	proof, err := ProveEquality(ctx, a, b, d, e, x)
	if err != nil {
		t.Fatalf("ProveEquality: %v", err)
	}
	if !VerifyEquality(ctx, a, b, d, e, proof) {
		t.Fatalf("VerifyEquality rejected a valid proof")
	}
}

func TestEqualityProofRejectsUnequalExponents(t *testing.T) {
	ctx := largeContext(t)
	a := ctx.G
	b := ctx.G.Pow(big.NewInt(3))

	x1, _ := ctx.RandomExponent()
	x2, _ := ctx.RandomExponent()
	for x2.Cmp(x1) == 0 {
		x2, _ = ctx.RandomExponent()
	}

	d := a.Pow(x1)
	e := b.Pow(x2)

	proof, err := ProveEquality(ctx, a, b, d, e, x1)
	if err != nil {
		t.Fatalf("ProveEquality: %v", err)
	}
	if VerifyEquality(ctx, a, b, d, e, proof) {
		t.Fatalf("VerifyEquality accepted proof for unequal exponents")
	}
}

func TestKnowledgeProofNilRejected(t *testing.T) {
	ctx := testContext(t)
	y := ctx.G.Pow(big.NewInt(5))
	if VerifyKnowledge(ctx, ctx.G, y, nil) {
		t.Fatalf("VerifyKnowledge accepted a nil proof")
	}
}
