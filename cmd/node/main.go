package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/pangea-net/consensus-core/internal/config"
	"github.com/pangea-net/consensus-core/internal/dkg"
	"github.com/pangea-net/consensus-core/internal/groupmath"
	"github.com/pangea-net/consensus-core/internal/raft"
	nettransport "github.com/pangea-net/consensus-core/internal/transport"
	"github.com/pangea-net/consensus-core/internal/voting"
	"github.com/pangea-net/consensus-core/pkg/transport"
)

func main() {
	var (
		nodeID     = flag.Uint("node-id", 0, "this node's id (index into -peers)")
		peerAddrs  = flag.String("peers", "", "comma-separated host:port list for every node, ordered by id")
		listenAddr = flag.String("listen", "", "address to listen on (defaults to this node's own entry in -peers)")
		runKeygen  = flag.Bool("keygen", false, "run a distributed key generation session on startup")
		testMode   = flag.Bool("test", false, "enable debug logging")
	)
	flag.Parse()

	if *testMode {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		log.Printf("🧪 TESTING MODE ENABLED")
	}

	log.Printf("🚀 starting node (ID: %d)", *nodeID)

	mgr := config.NewManager(uint32(*nodeID))
	cfg, err := mgr.Load()
	if err != nil {
		log.Fatalf("❌ failed to load config: %v", err)
	}
	if *peerAddrs != "" {
		cfg.Peers = splitPeers(*peerAddrs)
	}
	cfg.NodeID = uint32(*nodeID)
	cfg.Debug = *testMode
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ invalid configuration: %v", err)
	}
	if err := mgr.Save(cfg); err != nil {
		log.Printf("⚠️  failed to persist configuration: %v", err)
	}

	self := transport.PeerID(cfg.NodeID)
	peerTable := make(map[transport.PeerID]string, len(cfg.Peers)-1)
	var allPeers []transport.PeerID
	for i, addr := range cfg.Peers {
		id := transport.PeerID(i)
		allPeers = append(allPeers, id)
		if id != self {
			peerTable[id] = addr
		}
	}

	addr := *listenAddr
	if addr == "" {
		addr = cfg.Peers[cfg.NodeID]
	}

	tr, err := nettransport.New(self, addr, peerTable)
	if err != nil {
		log.Fatalf("❌ failed to build transport: %v", err)
	}

	groupCtx, err := groupmath.DefaultContext()
	if err != nil {
		log.Fatalf("❌ failed to build group context: %v", err)
	}
	sink := voting.NewSink(groupCtx)

	node := raft.NewNode(self, allPeers, tr, sink)
	tr.SetReceiver(node)

	if err := tr.Start(); err != nil {
		log.Fatalf("❌ failed to start transport: %v", err)
	}
	defer tr.Stop()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go node.Run(runCtx)

	if *runKeygen {
		go runDistributedKeygen(runCtx, groupCtx, self, allPeers, tr)
	}

	log.Println("🌐 node running. Press Ctrl+C to stop.")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("🛑 shutting down...")
	cancel()
	log.Println("✅ shutdown complete")
}

// runDistributedKeygen is a convenience demonstration path: it runs one
// DKG session across the whole cluster and logs the resulting joint
// public key. Production use would wire the returned KeyShare into a
// longer-lived component instead of discarding it at the end of main.
func runDistributedKeygen(ctx context.Context, groupCtx *groupmath.Context, self transport.PeerID, peers []transport.PeerID, tr transport.Transport) {
	sessionID := uuid.New().String()
	coordinator := dkg.NewCoordinator(groupCtx, self, peers, sessionID, tr)

	deadline, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	share, err := coordinator.Run(deadline)
	if err != nil {
		log.Printf("⚠️  key generation session %s failed: %v", sessionID, err)
		return
	}
	log.Printf("✅ key generation session %s complete: %d peers accepted, joint key = %x", sessionID, len(share.Accepted), share.Y.Bytes())
}

func splitPeers(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
