// Package dkg implements the per-node commit/open distributed key
// generation protocol: each participant commits to a public share,
// opens it once every participant has committed, and the accepted
// openings are combined into a joint public key. The local secret
// exponent is never transmitted or reconstructed anywhere.
package dkg

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"
	"sync"

	"github.com/pangea-net/consensus-core/internal/cryptomsg"
	"github.com/pangea-net/consensus-core/internal/groupmath"
	"github.com/pangea-net/consensus-core/internal/zkp"
	"github.com/pangea-net/consensus-core/pkg/transport"
)

// KeyShare is the per-node output of a completed DKG run.
type KeyShare struct {
	Y        *groupmath.Element  // joint public key, product over the accepted set
	X        *big.Int            // local secret exponent x_i (never transmitted)
	Yi       *groupmath.Element  // local public component y_i = g^x_i
	Accepted []transport.PeerID  // peers (including self) whose opening contributed to Y
}

// Coordinator runs one DKG session to completion. A Coordinator is
// single-use: construct one per session id and discard it once Run
// returns.
type Coordinator struct {
	ctx       *groupmath.Context
	selfID    transport.PeerID
	peers     []transport.PeerID
	sessionID string
	tr        transport.Transport

	mu   sync.Mutex
	cond *sync.Cond

	commits  map[transport.PeerID][]byte
	openings map[transport.PeerID]*groupmath.Element
	proofs   map[transport.PeerID]*zkp.KnowledgeProof

	done bool
}

// NewCoordinator builds a Coordinator for sessionID among peers
// (which must include selfID). tr is used to broadcast this node's
// own commit and opening messages.
func NewCoordinator(ctx *groupmath.Context, selfID transport.PeerID, peers []transport.PeerID, sessionID string, tr transport.Transport) *Coordinator {
	c := &Coordinator{
		ctx:       ctx,
		selfID:    selfID,
		peers:     peers,
		sessionID: sessionID,
		tr:        tr,
		commits:   make(map[transport.PeerID][]byte),
		openings:  make(map[transport.PeerID]*groupmath.Element),
		proofs:    make(map[transport.PeerID]*zkp.KnowledgeProof),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// HandleMessage feeds an inbound KEYGEN_COMMIT or KEYGEN_OPENING
// message from src into this session. Messages for a different
// session, or of any other kind, are ignored — routing to the right
// Coordinator by session id is the caller's responsibility.
func (c *Coordinator) HandleMessage(src transport.PeerID, m cryptomsg.Message) {
	if m.SessionID != c.sessionID {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	switch m.Kind {
	case cryptomsg.KeygenCommit:
		if _, opened := c.openings[src]; opened {
			// A commit arriving after the same peer's opening is late.
			return
		}
		c.commits[src] = m.Commitment
		c.cond.Broadcast()
	case cryptomsg.KeygenOpening:
		c.openings[src] = m.Y
		c.proofs[src] = m.Proof
		c.cond.Broadcast()
	}
}

// Run executes the three-round protocol and returns this node's
// KeyShare. It blocks on a condition variable while waiting for peer
// commits and openings (never a spin loop); ctx cancellation wakes the
// wait early and Run returns ctx.Err().
func (c *Coordinator) Run(ctx context.Context) (*KeyShare, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		c.mu.Lock()
		c.done = true
		c.cond.Broadcast()
		c.mu.Unlock()
	}()

	x, err := c.ctx.RandomExponent()
	if err != nil {
		return nil, fmt.Errorf("dkg: sample local secret: %w", err)
	}
	y := c.ctx.G.Pow(x)
	proof, err := zkp.ProveKnowledge(c.ctx, c.ctx.G, y, x)
	if err != nil {
		return nil, fmt.Errorf("dkg: prove knowledge of local secret: %w", err)
	}
	commitment := commitTo(y)

	c.mu.Lock()
	c.commits[c.selfID] = commitment
	c.mu.Unlock()

	commitMsg, err := cryptomsg.Encode(cryptomsg.Message{
		Kind:       cryptomsg.KeygenCommit,
		SessionID:  c.sessionID,
		Commitment: commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("dkg: encode commit message: %w", err)
	}
	c.tr.Broadcast(commitMsg)

	if err := c.waitUntil(ctx, func() bool { return len(c.commits) >= len(c.peers) }); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.openings[c.selfID] = y
	c.proofs[c.selfID] = proof
	c.mu.Unlock()

	openMsg, err := cryptomsg.Encode(cryptomsg.Message{
		Kind:      cryptomsg.KeygenOpening,
		SessionID: c.sessionID,
		Y:         y,
		Proof:     proof,
	})
	if err != nil {
		return nil, fmt.Errorf("dkg: encode opening message: %w", err)
	}
	c.tr.Broadcast(openMsg)

	if err := c.waitUntil(ctx, func() bool { return len(c.openings) >= len(c.peers) }); err != nil {
		return nil, err
	}

	c.mu.Lock()
	joint := c.ctx.Identity()
	var accepted []transport.PeerID
	for _, peer := range c.peers {
		yj := c.openings[peer]
		if yj == nil {
			continue
		}
		if peer != c.selfID && !verifyPeer(c.ctx, c.commits[peer], yj, c.proofs[peer]) {
			continue
		}
		joint = joint.Mul(yj)
		accepted = append(accepted, peer)
	}
	c.mu.Unlock()

	return &KeyShare{Y: joint, X: x, Yi: y, Accepted: accepted}, nil
}

// waitUntil blocks on the condition variable until ready() is true or
// ctx is done, returning ctx.Err() in the latter case.
func (c *Coordinator) waitUntil(ctx context.Context, ready func() bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !ready() && !c.done {
		c.cond.Wait()
	}
	if c.done && !ready() {
		return ctx.Err()
	}
	return nil
}

// commitTo computes the binding commitment H(y) for a public share.
func commitTo(y *groupmath.Element) []byte {
	sum := sha256.Sum256(y.Bytes())
	return sum[:]
}

// verifyPeer checks that a peer's opened y matches its earlier
// commitment and that its proof of knowledge of the corresponding
// secret is valid. HandleMessage drops a commit that arrives after the
// same peer's opening, and Run only inspects openings after every
// commit has been collected, so the commit checked here was always
// observed before the opening it is checked against.
func verifyPeer(ctx *groupmath.Context, commitment []byte, y *groupmath.Element, proof *zkp.KnowledgeProof) bool {
	if commitment == nil || y == nil || proof == nil {
		return false
	}
	want := commitTo(y)
	if len(want) != len(commitment) {
		return false
	}
	for i := range want {
		if want[i] != commitment[i] {
			return false
		}
	}
	return zkp.VerifyKnowledge(ctx, ctx.G, y, proof)
}
