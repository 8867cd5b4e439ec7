// Package raft implements the replicated log state machine: role
// transitions between Follower, Candidate and Leader, log replication
// with conflict truncation, election and heartbeat timing, commit
// advancement, and in-order delivery of committed entries to a client
// sink.
package raft

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pangea-net/consensus-core/internal/raftrpc"
	"github.com/pangea-net/consensus-core/pkg/transport"
)

// Role is the node's current position in the Raft protocol. Rather
// than one type per role, the node is a single RaftContext-shaped
// struct and Role is just a field transitions overwrite — there is no
// separate object to keep in sync across a transition.
type Role int

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

const (
	baseElectionTimeout = 150 * time.Millisecond
	heartbeatInterval   = baseElectionTimeout / 3
	tickQuantum         = 10 * time.Millisecond
)

// callback is a pending-RPC registry entry (C7): an action to run when
// a matching RESULT arrives, and how many more replies are expected
// before the entry is dropped. term is the caller's term snapshot at
// send time, so a stale reply arriving after a role/term change can be
// recognized and ignored by the action itself.
type callback struct {
	remaining int
	term      int
	action    func(result raftrpc.ResultArgs, from transport.PeerID)
}

// Node is one Raft participant. A single mutex guards every piece of
// persistent state, volatile state, leader-only state, and the
// pending-call registry. The only outbound calls made while holding it
// are Transport.Send and Transport.Broadcast; whether those block is up
// to the Transport (internal/transport's TCP writes to the socket
// synchronously, with no outbound queue).
type Node struct {
	mu sync.Mutex

	selfID transport.PeerID
	peers  []transport.PeerID // every other participant
	quorum int

	tr   transport.Transport
	sink transport.ClientSink

	// persistent
	currentTerm  int
	votedFor     *transport.PeerID
	log          map[int]raftrpc.Entry
	lastLogIndex int
	lastLogTerm  int

	// volatile
	commitIndex          int
	lastApplied          int
	leaderID             *transport.PeerID
	role                 Role
	shouldBecomeFollower bool

	// leader-only
	nextIndex  map[transport.PeerID]int
	matchIndex map[transport.PeerID]int

	calls map[string]*callback

	electionDeadline  time.Time
	heartbeatDeadline time.Time

	rng *rand.Rand
}

// NewNode builds a Follower node. allPeers must include selfID; the
// node derives quorum from its length.
func NewNode(selfID transport.PeerID, allPeers []transport.PeerID, tr transport.Transport, sink transport.ClientSink) *Node {
	others := make([]transport.PeerID, 0, len(allPeers))
	for _, p := range allPeers {
		if p != selfID {
			others = append(others, p)
		}
	}

	n := &Node{
		selfID: selfID,
		peers:  others,
		quorum: len(allPeers)/2 + 1,
		tr:     tr,
		sink:   sink,
		log:    make(map[int]raftrpc.Entry),
		calls:  make(map[string]*callback),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano() + int64(selfID))),
	}
	n.resetElectionDeadlineLocked()
	return n
}

// Run drives the tick thread until ctx is cancelled.
func (n *Node) Run(ctx context.Context) {
	ticker := time.NewTicker(tickQuantum)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.tick()
		}
	}
}

// tick drives timeouts, heartbeats, and commit application. It is
// also callable directly by tests that want deterministic control
// over timing instead of Run's wall-clock ticker.
func (n *Node) tick() {
	n.mu.Lock()
	n.finishLocked()

	now := time.Now()
	if n.role != Leader && now.After(n.electionDeadline) {
		n.startElectionLocked()
	}
	if n.role == Leader && now.After(n.heartbeatDeadline) {
		n.sendAppendEntriesLocked()
		n.heartbeatDeadline = now.Add(heartbeatInterval)
	}

	toDeliver := n.collectCommittedLocked()
	n.mu.Unlock()

	for _, payload := range toDeliver {
		n.sink.Deliver(payload)
	}
}

func (n *Node) collectCommittedLocked() [][]byte {
	var out [][]byte
	for n.commitIndex > n.lastApplied {
		n.lastApplied++
		if e, ok := n.log[n.lastApplied]; ok {
			out = append(out, e.Payload)
		}
	}
	return out
}

// finishLocked honors shouldBecomeFollower "at every lock release": it
// must be called, while still holding mu, at the top of tick() and at
// the end of every RPC handler before unlocking.
func (n *Node) finishLocked() {
	if n.shouldBecomeFollower {
		n.becomeFollowerLocked()
	}
}

func (n *Node) becomeFollowerLocked() {
	n.role = Follower
	n.shouldBecomeFollower = false
	n.resetElectionDeadlineLocked()
}

func (n *Node) resetElectionDeadlineLocked() {
	jitter := time.Duration(n.rng.Int63n(int64(baseElectionTimeout)))
	n.electionDeadline = time.Now().Add(baseElectionTimeout + jitter)
}

func (n *Node) termAt(index int) int {
	if index <= 0 {
		return 0
	}
	if e, ok := n.log[index]; ok {
		return e.Term
	}
	return 0
}

// startElectionLocked begins a new term's election, broadcasting a
// single RequestVote under one correlation id shared by every peer,
// with remainingCalls = N-1 per the correlation contract for
// broadcasts (C7).
func (n *Node) startElectionLocked() {
	n.currentTerm++
	self := n.selfID
	n.votedFor = &self
	n.role = Candidate
	n.resetElectionDeadlineLocked()

	term := n.currentTerm
	votes := 1 // self
	if votes >= n.quorum {
		n.becomeLeaderLocked()
		return
	}

	id := uuid.New().String()
	args := raftrpc.RequestVoteArgs{
		UUID:         id,
		Term:         term,
		CandidateID:  int(n.selfID),
		LastLogIndex: n.lastLogIndex,
		LastLogTerm:  n.lastLogTerm,
	}
	payload, err := raftrpc.Encode(raftrpc.Envelope{Kind: raftrpc.RequestVote, RequestVote: &args})
	if err != nil {
		return
	}

	n.calls[id] = &callback{
		remaining: len(n.peers),
		term:      term,
		action: func(result raftrpc.ResultArgs, from transport.PeerID) {
			if result.Term > n.currentTerm {
				n.currentTerm = result.Term
				n.votedFor = nil
				n.shouldBecomeFollower = true
				return
			}
			if n.role != Candidate || n.currentTerm != term {
				return
			}
			if result.VoteGranted {
				votes++
				if votes >= n.quorum {
					n.becomeLeaderLocked()
				}
			}
		},
	}

	if len(n.peers) > 0 {
		n.tr.Broadcast(payload)
	}
}

func (n *Node) becomeLeaderLocked() {
	n.role = Leader
	self := n.selfID
	n.leaderID = &self
	n.nextIndex = make(map[transport.PeerID]int, len(n.peers))
	n.matchIndex = make(map[transport.PeerID]int, len(n.peers))
	for _, p := range n.peers {
		n.nextIndex[p] = n.lastLogIndex + 1
		n.matchIndex[p] = 0
	}
	n.sendAppendEntriesLocked()
	n.heartbeatDeadline = time.Now().Add(heartbeatInterval)
}

// sendAppendEntriesLocked replicates to each follower individually,
// since prevLogIndex/entries depend on that follower's own nextIndex;
// each unicast carries its own correlation id with remainingCalls = 1.
func (n *Node) sendAppendEntriesLocked() {
	term := n.currentTerm
	for _, p := range n.peers {
		next := n.nextIndex[p]
		if next < 1 {
			next = 1
		}
		prevIndex := next - 1
		var entries []raftrpc.Entry
		for i := next; i <= n.lastLogIndex; i++ {
			if e, ok := n.log[i]; ok {
				entries = append(entries, e)
			}
		}

		id := uuid.New().String()
		args := raftrpc.AppendEntriesArgs{
			UUID:         id,
			Term:         term,
			LeaderID:     int(n.selfID),
			PrevLogIndex: prevIndex,
			PrevLogTerm:  n.termAt(prevIndex),
			Entries:      entries,
			LeaderCommit: n.commitIndex,
		}
		payload, err := raftrpc.Encode(raftrpc.Envelope{Kind: raftrpc.AppendEntries, AppendEntries: &args})
		if err != nil {
			continue
		}

		peer := p
		n.calls[id] = &callback{
			remaining: 1,
			term:      term,
			action: func(result raftrpc.ResultArgs, from transport.PeerID) {
				if result.Term > n.currentTerm {
					n.currentTerm = result.Term
					n.votedFor = nil
					n.shouldBecomeFollower = true
					return
				}
				if n.role != Leader || n.currentTerm != term {
					return
				}
				if result.Success {
					if result.LastLogIndex+1 > n.nextIndex[peer] {
						n.nextIndex[peer] = result.LastLogIndex + 1
					}
					if result.LastLogIndex > n.matchIndex[peer] {
						n.matchIndex[peer] = result.LastLogIndex
					}
					n.advanceCommitIndexLocked()
				} else if n.nextIndex[peer] > 1 {
					n.nextIndex[peer]--
				}
			},
		}
		n.tr.Send(payload, p)
	}
}

// advanceCommitIndexLocked implements the leader-completeness-guarded
// commit rule: the highest index replicated to a quorum whose term
// matches the current term.
func (n *Node) advanceCommitIndexLocked() {
	for idx := n.lastLogIndex; idx > n.commitIndex; idx-- {
		e, ok := n.log[idx]
		if !ok || e.Term != n.currentTerm {
			continue
		}
		count := 1 // self has every entry up to lastLogIndex
		for _, p := range n.peers {
			if n.matchIndex[p] >= idx {
				count++
			}
		}
		if count >= n.quorum {
			n.commitIndex = idx
			return
		}
	}
}

func (n *Node) appendLocalEntryLocked(payload []byte) {
	idx := n.lastLogIndex + 1
	n.log[idx] = raftrpc.Entry{Index: idx, Term: n.currentTerm, Payload: payload}
	n.lastLogIndex = idx
	n.lastLogTerm = n.currentTerm
}

// Submit accepts a client payload on any role: a Leader appends it
// directly, a non-Leader forwards it to the believed leader (dropped
// if no leader is currently known).
func (n *Node) Submit(payload []byte) {
	n.mu.Lock()
	if n.role == Leader {
		n.appendLocalEntryLocked(payload)
		n.mu.Unlock()
		return
	}
	leader := n.leaderID
	n.mu.Unlock()

	if leader == nil {
		return
	}
	enc, err := raftrpc.Encode(raftrpc.Envelope{
		Kind:        raftrpc.ClientEntry,
		ClientEntry: &raftrpc.ClientEntryArgs{UUID: uuid.New().String(), Payload: payload},
	})
	if err != nil {
		return
	}
	n.tr.Send(enc, *leader)
}

func freshnessAtLeastAsUpToDate(candTerm, candIndex, selfTerm, selfIndex int) bool {
	if candTerm != selfTerm {
		return candTerm > selfTerm
	}
	return candIndex >= selfIndex
}

// HandleRequestVote runs the RequestVote handler and returns the
// reply to send back to the candidate.
func (n *Node) HandleRequestVote(args raftrpc.RequestVoteArgs) raftrpc.ResultArgs {
	n.mu.Lock()
	defer func() {
		n.finishLocked()
		n.mu.Unlock()
	}()

	if args.Term < n.currentTerm {
		return raftrpc.ResultArgs{UUID: args.UUID, Term: n.currentTerm, LastLogIndex: n.lastLogIndex}
	}
	if args.Term > n.currentTerm {
		n.currentTerm = args.Term
		n.votedFor = nil
		n.shouldBecomeFollower = true
	}

	candidate := transport.PeerID(args.CandidateID)
	canVote := n.votedFor == nil || *n.votedFor == candidate
	fresh := freshnessAtLeastAsUpToDate(args.LastLogTerm, args.LastLogIndex, n.lastLogTerm, n.lastLogIndex)

	grant := canVote && fresh
	if grant {
		n.votedFor = &candidate
		n.resetElectionDeadlineLocked()
	}

	return raftrpc.ResultArgs{
		UUID:         args.UUID,
		Term:         n.currentTerm,
		VoteGranted:  grant,
		LastLogIndex: n.lastLogIndex,
	}
}

// HandleAppendEntries runs the AppendEntries handler and returns the
// reply to send back to the leader.
func (n *Node) HandleAppendEntries(args raftrpc.AppendEntriesArgs) raftrpc.ResultArgs {
	n.mu.Lock()
	defer func() {
		n.finishLocked()
		n.mu.Unlock()
	}()

	if args.Term < n.currentTerm {
		return raftrpc.ResultArgs{UUID: args.UUID, Term: n.currentTerm, Success: false, LastLogIndex: n.lastLogIndex}
	}
	if args.Term > n.currentTerm {
		n.currentTerm = args.Term
		n.votedFor = nil
		n.shouldBecomeFollower = true
	}
	if n.role != Follower {
		n.shouldBecomeFollower = true
	}

	leader := transport.PeerID(args.LeaderID)
	n.leaderID = &leader
	n.resetElectionDeadlineLocked()

	if args.PrevLogIndex > 0 {
		e, ok := n.log[args.PrevLogIndex]
		if !ok || e.Term != args.PrevLogTerm {
			return raftrpc.ResultArgs{UUID: args.UUID, Term: n.currentTerm, Success: false, LastLogIndex: n.lastLogIndex}
		}
	}

	for _, entry := range args.Entries {
		if existing, ok := n.log[entry.Index]; ok && existing.Term != entry.Term {
			for i := entry.Index; i <= n.lastLogIndex; i++ {
				delete(n.log, i)
			}
			n.lastLogIndex = entry.Index - 1
			n.lastLogTerm = n.termAt(n.lastLogIndex)
		}
		n.log[entry.Index] = entry
		if entry.Index > n.lastLogIndex {
			n.lastLogIndex = entry.Index
			n.lastLogTerm = entry.Term
		}
	}

	if args.LeaderCommit > n.commitIndex {
		newCommit := args.LeaderCommit
		if n.lastLogIndex < newCommit {
			newCommit = n.lastLogIndex
		}
		if newCommit > n.commitIndex {
			n.commitIndex = newCommit
		}
	}

	return raftrpc.ResultArgs{UUID: args.UUID, Term: n.currentTerm, Success: true, LastLogIndex: n.lastLogIndex}
}

func (n *Node) handleResult(result raftrpc.ResultArgs, from transport.PeerID) {
	n.mu.Lock()
	defer func() {
		n.finishLocked()
		n.mu.Unlock()
	}()

	cb, ok := n.calls[result.UUID]
	if !ok {
		return
	}
	cb.action(result, from)
	cb.remaining--
	if cb.remaining <= 0 {
		delete(n.calls, result.UUID)
	}
}

func (n *Node) handleClientEntry(args raftrpc.ClientEntryArgs) {
	n.mu.Lock()
	defer func() {
		n.finishLocked()
		n.mu.Unlock()
	}()

	if n.role == Leader {
		n.appendLocalEntryLocked(args.Payload)
	}
}

func (n *Node) reply(result raftrpc.ResultArgs, dest transport.PeerID) {
	payload, err := raftrpc.Encode(raftrpc.Envelope{Kind: raftrpc.Result, Result: &result})
	if err != nil {
		return
	}
	n.tr.Send(payload, dest)
}

// OnReceive implements transport.Receiver: it decodes the inbound
// payload and dispatches to the matching handler.
func (n *Node) OnReceive(payload []byte, src transport.PeerID) {
	env, ok := raftrpc.Decode(payload)
	if !ok {
		return
	}
	switch env.Kind {
	case raftrpc.AppendEntries:
		result := n.HandleAppendEntries(*env.AppendEntries)
		n.reply(result, src)
	case raftrpc.RequestVote:
		result := n.HandleRequestVote(*env.RequestVote)
		n.reply(result, src)
	case raftrpc.Result:
		n.handleResult(*env.Result, src)
	case raftrpc.ClientEntry:
		n.handleClientEntry(*env.ClientEntry)
	}
}

// Snapshot is a consistent, lock-protected read of the node's current
// state, for tests and diagnostics.
type Snapshot struct {
	Role         Role
	CurrentTerm  int
	VotedFor     *transport.PeerID
	LastLogIndex int
	LastLogTerm  int
	CommitIndex  int
	LastApplied  int
	LeaderID     *transport.PeerID
}

func (n *Node) Snapshot() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Snapshot{
		Role:         n.role,
		CurrentTerm:  n.currentTerm,
		VotedFor:     n.votedFor,
		LastLogIndex: n.lastLogIndex,
		LastLogTerm:  n.lastLogTerm,
		CommitIndex:  n.commitIndex,
		LastApplied:  n.lastApplied,
		LeaderID:     n.leaderID,
	}
}
