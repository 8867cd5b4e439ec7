// Package voting is a demonstration client sink: it tallies committed
// POST_VOTE ciphertexts in commit order and, once voting closes, opens
// them by cooperating with peers over the DECRYPT_SHARE protocol. It
// sits outside the core the way spec.md's own demonstration
// blockchain/wallet/miner consumer does — nothing in internal/raft or
// internal/dkg depends on it.
package voting

import (
	"context"
	"fmt"
	"sync"

	"github.com/pangea-net/consensus-core/internal/cryptomsg"
	"github.com/pangea-net/consensus-core/internal/dkg"
	"github.com/pangea-net/consensus-core/internal/groupmath"
	"github.com/pangea-net/consensus-core/pkg/transport"
)

// Sink implements transport.ClientSink, decoding each committed entry
// as a POST_VOTE crypto message and appending its ciphertext to the
// tally in commit order. A payload that doesn't decode as a POST_VOTE
// is dropped, mirroring the codec's total-decode contract.
type Sink struct {
	ctx *groupmath.Context

	mu      sync.Mutex
	tallied []dkg.Ciphertext
}

// NewSink builds an empty tally over ctx's group.
func NewSink(ctx *groupmath.Context) *Sink {
	return &Sink{ctx: ctx}
}

// Deliver implements transport.ClientSink.
func (s *Sink) Deliver(payload []byte) {
	m, ok := cryptomsg.Decode(s.ctx, payload)
	if !ok || m.Kind != cryptomsg.PostVote {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tallied = append(s.tallied, dkg.Ciphertext{C1: m.C1, C2: m.C2})
}

// Results returns a snapshot of every committed ciphertext, in commit
// order.
func (s *Sink) Results() []dkg.Ciphertext {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dkg.Ciphertext, len(s.tallied))
	copy(out, s.tallied)
	return out
}

// EncodePostVote builds the Raft log entry payload for casting one
// vote: ct is the ElGamal encryption of a group-element encoding of
// the voter's choice.
func EncodePostVote(ctx *groupmath.Context, sessionID string, ct dkg.Ciphertext) ([]byte, error) {
	return cryptomsg.Encode(cryptomsg.Message{
		Kind:      cryptomsg.PostVote,
		SessionID: sessionID,
		C1:        ct.C1,
		C2:        ct.C2,
	})
}

// Collector gathers DECRYPT_SHARE messages for a single ciphertext
// from the peer set accepted during keygen, verifying each against
// that peer's accepted y_i before counting it. It waits on a
// condition variable rather than a spin loop, matching the DKG
// coordinator's own waiting discipline.
type Collector struct {
	ctx       *groupmath.Context
	sessionID string
	ct        dkg.Ciphertext
	peerY     map[transport.PeerID]*groupmath.Element // accepted y_i by peer, from KeyShare.Accepted

	mu     sync.Mutex
	cond   *sync.Cond
	shares map[transport.PeerID]*groupmath.Element
	done   bool
}

// NewCollector builds a Collector for ct, accepting shares only from
// peers in peerY (the accepted set from the keygen session sessionID
// refers to).
func NewCollector(ctx *groupmath.Context, sessionID string, ct dkg.Ciphertext, peerY map[transport.PeerID]*groupmath.Element) *Collector {
	c := &Collector{
		ctx:       ctx,
		sessionID: sessionID,
		ct:        ct,
		peerY:     peerY,
		shares:    make(map[transport.PeerID]*groupmath.Element),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// HandleMessage feeds an inbound DECRYPT_SHARE message from src. A
// share whose proof fails verification, or whose session id doesn't
// match, or whose sender isn't in the accepted set, is silently
// excluded — the same disposition as a failing keygen opening.
func (c *Collector) HandleMessage(src transport.PeerID, m cryptomsg.Message) {
	if m.Kind != cryptomsg.DecryptShare || m.SessionID != c.sessionID {
		return
	}
	yi, ok := c.peerY[src]
	if !ok {
		return
	}
	if !dkg.VerifyDecryptShare(c.ctx, c.ct, yi, m.Share, m.EqProof) {
		return
	}
	c.mu.Lock()
	c.shares[src] = m.Share
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Wait blocks until a share has arrived from every accepted peer (or
// ctx is cancelled) and returns the recovered plaintext.
func (c *Collector) Wait(ctx context.Context) (*groupmath.Element, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		c.mu.Lock()
		c.done = true
		c.cond.Broadcast()
		c.mu.Unlock()
	}()

	c.mu.Lock()
	for len(c.shares) < len(c.peerY) && !c.done {
		c.cond.Wait()
	}
	if c.done && len(c.shares) < len(c.peerY) {
		c.mu.Unlock()
		return nil, fmt.Errorf("voting: tally cancelled before all decrypt shares arrived: %w", ctx.Err())
	}
	shares := make(map[int]*groupmath.Element, len(c.shares))
	for peer, share := range c.shares {
		shares[int(peer)] = share
	}
	c.mu.Unlock()

	return dkg.CombineDecryptShares(c.ctx, c.ct, shares), nil
}
