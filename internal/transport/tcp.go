// Package transport is the demo collaborator that gives the core a
// real network: a TCP listener per node, a Noise XX handshake to
// derive a per-connection cipher, and length-prefixed framing so a
// stream socket carries whole messages. None of this is part of the
// measured core (C1-C7); it exists so the core can run end-to-end in
// the demo binary and its own tests.
package transport

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/flynn/noise"

	"github.com/pangea-net/consensus-core/internal/utils"
	"github.com/pangea-net/consensus-core/pkg/transport"
)

const dialRetryInterval = 500 * time.Millisecond

// peerConn is an established, handshaked connection to one peer.
type peerConn struct {
	conn net.Conn
	send *noise.CipherState
	recv *noise.CipherState
	mu   sync.Mutex // serializes writes; CipherState.Encrypt is not safe for concurrent use
}

// TCP is a concrete, Noise-encrypted implementation of
// pkg/transport.Transport over plain TCP sockets.
type TCP struct {
	selfID     transport.PeerID
	listenAddr string
	peerAddrs  map[transport.PeerID]string
	staticKey  noise.DHKey

	mu       sync.RWMutex
	conns    map[transport.PeerID]*peerConn
	receiver transport.Receiver

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a TCP transport for selfID. peerAddrs must contain every
// other participant's host:port, keyed by peer id.
func New(selfID transport.PeerID, listenAddr string, peerAddrs map[transport.PeerID]string) (*TCP, error) {
	staticKey, err := noise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("transport: generate noise keypair: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TCP{
		selfID:     selfID,
		listenAddr: listenAddr,
		peerAddrs:  peerAddrs,
		staticKey:  staticKey,
		conns:      make(map[transport.PeerID]*peerConn),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// SetReceiver installs the handler driven on every inbound message.
// Must be called before Start.
func (t *TCP) SetReceiver(r transport.Receiver) {
	t.receiver = r
}

// Start opens the listener and begins dialing every configured peer.
func (t *TCP) Start() error {
	if err := utils.CheckPortAvailable(t.listenAddr); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	listener, err := net.Listen("tcp", t.listenAddr)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", t.listenAddr, err)
	}
	log.Printf("📡 node %d listening on %s", t.selfID, t.listenAddr)

	go t.acceptLoop(listener)
	for id, addr := range t.peerAddrs {
		go t.dialLoop(id, addr)
	}
	return nil
}

// Stop tears down the listener and every open connection, then waits
// best-effort for the listen address to actually free up before
// returning.
func (t *TCP) Stop() {
	t.cancel()
	t.mu.Lock()
	for _, c := range t.conns {
		c.conn.Close()
	}
	t.mu.Unlock()

	if err := utils.CleanupPort(t.listenAddr); err != nil {
		log.Printf("⚠️  %v", err)
	}
}

func (t *TCP) acceptLoop(listener net.Listener) {
	go func() {
		<-t.ctx.Done()
		listener.Close()
	}()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			log.Printf("⚠️  accept error: %v", err)
			continue
		}
		go t.handleInbound(conn)
	}
}

func (t *TCP) handleInbound(conn net.Conn) {
	pc, peerID, err := t.handshake(conn, false)
	if err != nil {
		log.Printf("⚠️  handshake (responder) failed: %v", err)
		conn.Close()
		return
	}
	t.mu.Lock()
	t.conns[peerID] = pc
	t.mu.Unlock()
	log.Printf("🔗 connected to node %d (inbound)", peerID)
	t.readLoop(pc, peerID)
}

func (t *TCP) dialLoop(id transport.PeerID, addr string) {
	ticker := time.NewTicker(dialRetryInterval)
	defer ticker.Stop()
	for {
		t.mu.RLock()
		_, connected := t.conns[id]
		t.mu.RUnlock()
		if !connected {
			if err := t.dial(id, addr); err != nil {
				log.Printf("⚠️  dial node %d at %s failed: %v", id, addr, err)
			}
		}
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *TCP) dial(id transport.PeerID, addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	pc, _, err := t.handshake(conn, true)
	if err != nil {
		conn.Close()
		return fmt.Errorf("handshake (initiator): %w", err)
	}
	t.mu.Lock()
	t.conns[id] = pc
	t.mu.Unlock()
	log.Printf("🔗 connected to node %d (outbound)", id)
	go t.readLoop(pc, id)
	return nil
}

// handshake runs the Noise XX pattern and returns the resulting
// connection plus the peer id carried in the handshake payload. Noise
// hands back two cipher states after the final message: cs1 always
// encrypts messages flowing from the initiator to the responder, cs2
// the reverse; which one is "send" vs "recv" depends on which side we
// are.
func (t *TCP) handshake(conn net.Conn, isInitiator bool) (*peerConn, transport.PeerID, error) {
	cfg := noise.Config{
		CipherSuite:   noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2b),
		Random:        rand.Reader,
		Pattern:       noise.HandshakeXX,
		Initiator:     isInitiator,
		StaticKeypair: t.staticKey,
	}
	hs, err := noise.NewHandshakeState(cfg)
	if err != nil {
		return nil, 0, fmt.Errorf("new handshake state: %w", err)
	}

	selfIDPayload := make([]byte, 4)
	binary.BigEndian.PutUint32(selfIDPayload, uint32(t.selfID))

	var cs1, cs2 *noise.CipherState
	var peerID transport.PeerID

	if isInitiator {
		msg, _, _, err := hs.WriteMessage(nil, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("write message 1: %w", err)
		}
		if err := writeFrame(conn, msg); err != nil {
			return nil, 0, err
		}

		reply, err := readFrame(conn)
		if err != nil {
			return nil, 0, fmt.Errorf("read message 2: %w", err)
		}
		payload, _, _, err := hs.ReadMessage(nil, reply)
		if err != nil {
			return nil, 0, fmt.Errorf("read message 2: %w", err)
		}
		peerID = decodePeerID(payload)

		msg3, c1, c2, err := hs.WriteMessage(nil, selfIDPayload)
		if err != nil {
			return nil, 0, fmt.Errorf("write message 3: %w", err)
		}
		if err := writeFrame(conn, msg3); err != nil {
			return nil, 0, err
		}
		cs1, cs2 = c1, c2
	} else {
		msg1, err := readFrame(conn)
		if err != nil {
			return nil, 0, fmt.Errorf("read message 1: %w", err)
		}
		if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
			return nil, 0, fmt.Errorf("read message 1: %w", err)
		}

		msg2, _, _, err := hs.WriteMessage(nil, selfIDPayload)
		if err != nil {
			return nil, 0, fmt.Errorf("write message 2: %w", err)
		}
		if err := writeFrame(conn, msg2); err != nil {
			return nil, 0, err
		}

		msg3, err := readFrame(conn)
		if err != nil {
			return nil, 0, fmt.Errorf("read message 3: %w", err)
		}
		payload, c1, c2, err := hs.ReadMessage(nil, msg3)
		if err != nil {
			return nil, 0, fmt.Errorf("read message 3: %w", err)
		}
		peerID = decodePeerID(payload)
		cs1, cs2 = c1, c2
	}

	pc := &peerConn{conn: conn}
	if isInitiator {
		pc.send, pc.recv = cs1, cs2
	} else {
		pc.send, pc.recv = cs2, cs1
	}
	return pc, peerID, nil
}

func decodePeerID(payload []byte) transport.PeerID {
	if len(payload) < 4 {
		return 0
	}
	return transport.PeerID(binary.BigEndian.Uint32(payload))
}

func (t *TCP) readLoop(pc *peerConn, peerID transport.PeerID) {
	defer func() {
		t.mu.Lock()
		delete(t.conns, peerID)
		t.mu.Unlock()
		pc.conn.Close()
	}()
	for {
		frame, err := readFrame(pc.conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("⚠️  read error from node %d: %v", peerID, err)
			}
			return
		}
		plaintext, err := pc.recv.Decrypt(nil, nil, frame)
		if err != nil {
			log.Printf("⚠️  decrypt failed from node %d: %v", peerID, err)
			continue
		}
		if t.receiver != nil {
			t.receiver.OnReceive(plaintext, peerID)
		}
	}
}

// Send implements transport.Transport.
func (t *TCP) Send(payload []byte, dest transport.PeerID) {
	t.mu.RLock()
	pc := t.conns[dest]
	t.mu.RUnlock()
	if pc == nil {
		return
	}
	t.sendOn(pc, payload, dest)
}

// Broadcast implements transport.Transport.
func (t *TCP) Broadcast(payload []byte) {
	t.mu.RLock()
	targets := make(map[transport.PeerID]*peerConn, len(t.conns))
	for id, pc := range t.conns {
		targets[id] = pc
	}
	t.mu.RUnlock()
	for id, pc := range targets {
		t.sendOn(pc, payload, id)
	}
}

func (t *TCP) sendOn(pc *peerConn, payload []byte, dest transport.PeerID) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	ciphertext, err := pc.send.Encrypt(nil, nil, payload)
	if err != nil {
		log.Printf("⚠️  encrypt failed for node %d: %v", dest, err)
		return
	}
	if err := writeFrame(pc.conn, ciphertext); err != nil {
		log.Printf("⚠️  send to node %d failed: %v", dest, err)
	}
}

func writeFrame(conn net.Conn, payload []byte) error {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	if _, err := conn.Write(header); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

func readFrame(conn net.Conn) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header)
	body := make([]byte, n)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return body, nil
}
