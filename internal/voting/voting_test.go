package voting

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/pangea-net/consensus-core/internal/cryptomsg"
	"github.com/pangea-net/consensus-core/internal/dkg"
	"github.com/pangea-net/consensus-core/internal/groupmath"
	"github.com/pangea-net/consensus-core/internal/zkp"
	"github.com/pangea-net/consensus-core/pkg/transport"
)

// p = 2*83+1 = 167, q = 83, g = 2 generates the order-83 subgroup of
// Z_167^* (verified: 2^83 mod 167 == 1, 2^1 mod 167 != 1).
func testContext(t *testing.T) *groupmath.Context {
	t.Helper()
	ctx, err := groupmath.NewContext(big.NewInt(167), big.NewInt(2))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return ctx
}

func TestSinkTalliesPostVotesInOrder(t *testing.T) {
	ctx := testContext(t)
	sink := NewSink(ctx)

	y := ctx.G.Pow(big.NewInt(5))
	m1 := ctx.G.Pow(big.NewInt(7))
	m2 := ctx.G.Pow(big.NewInt(9))

	ct1, err := dkg.EncryptElGamal(ctx, y, m1)
	if err != nil {
		t.Fatalf("encrypt 1: %v", err)
	}
	ct2, err := dkg.EncryptElGamal(ctx, y, m2)
	if err != nil {
		t.Fatalf("encrypt 2: %v", err)
	}

	p1, err := EncodePostVote(ctx, "election-1", ct1)
	if err != nil {
		t.Fatalf("encode vote 1: %v", err)
	}
	p2, err := EncodePostVote(ctx, "election-1", ct2)
	if err != nil {
		t.Fatalf("encode vote 2: %v", err)
	}

	sink.Deliver([]byte("not json at all"))
	sink.Deliver(p1)
	sink.Deliver(p2)

	results := sink.Results()
	if len(results) != 2 {
		t.Fatalf("expected 2 tallied ciphertexts, got %d", len(results))
	}
	if !results[0].C1.Equal(ct1.C1) || !results[0].C2.Equal(ct1.C2) {
		t.Fatalf("first tallied entry does not match first cast vote")
	}
	if !results[1].C1.Equal(ct2.C1) || !results[1].C2.Equal(ct2.C2) {
		t.Fatalf("second tallied entry does not match second cast vote")
	}
}

func TestCollectorRecoversPlaintextFromThreeShares(t *testing.T) {
	ctx := testContext(t)

	x := []*big.Int{big.NewInt(3), big.NewInt(11), big.NewInt(17)}
	y := make([]*groupmath.Element, 3)
	jointY := ctx.Identity()
	for i, xi := range x {
		y[i] = ctx.G.Pow(xi)
		jointY = jointY.Mul(y[i])
	}

	m := ctx.G.Pow(big.NewInt(42))
	ct, err := dkg.EncryptElGamal(ctx, jointY, m)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	peerY := map[transport.PeerID]*groupmath.Element{0: y[0], 1: y[1], 2: y[2]}
	collector := NewCollector(ctx, "election-1", ct, peerY)

	for i, xi := range x {
		share := &dkg.KeyShare{X: xi, Yi: y[i]}
		d, proof, err := dkg.MakeDecryptShare(ctx, share, ct)
		if err != nil {
			t.Fatalf("make decrypt share %d: %v", i, err)
		}
		collector.HandleMessage(transport.PeerID(i), decryptShareMessage(d, proof))
	}

	recovered, err := collector.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !recovered.Equal(m) {
		t.Fatalf("recovered plaintext does not match cast vote")
	}
}

func TestCollectorExcludesBadShare(t *testing.T) {
	ctx := testContext(t)

	x0, x1 := big.NewInt(3), big.NewInt(11)
	y0, y1 := ctx.G.Pow(x0), ctx.G.Pow(x1)
	jointY := y0.Mul(y1)

	m := ctx.G.Pow(big.NewInt(13))
	ct, err := dkg.EncryptElGamal(ctx, jointY, m)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	peerY := map[transport.PeerID]*groupmath.Element{0: y0, 1: y1}
	collector := NewCollector(ctx, "election-1", ct, peerY)

	share0 := &dkg.KeyShare{X: x0, Yi: y0}
	d0, proof0, err := dkg.MakeDecryptShare(ctx, share0, ct)
	if err != nil {
		t.Fatalf("make decrypt share 0: %v", err)
	}
	collector.HandleMessage(0, decryptShareMessage(d0, proof0))

	forgedShare := ct.C1.Pow(big.NewInt(999))
	collector.HandleMessage(1, decryptShareMessage(forgedShare, proof0))

	ctx2, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = collector.Wait(ctx2)
	if err == nil {
		t.Fatalf("expected Wait to time out: forged share must never be counted")
	}
}

func decryptShareMessage(share *groupmath.Element, proof *zkp.EqualityProof) cryptomsg.Message {
	return cryptomsg.Message{
		Kind:      cryptomsg.DecryptShare,
		SessionID: "election-1",
		Share:     share,
		EqProof:   proof,
	}
}
